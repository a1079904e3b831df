package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/sdk"
	"github.com/desertthunder/playsync/internal/shared"
	"github.com/gorilla/websocket"
)

var (
	// ErrHostNotConnected is returned when no host page is connected
	ErrHostNotConnected = fmt.Errorf("%w: player host not connected", shared.ErrNotConnected)
	// ErrHostDisconnected is returned when the host page goes away while a command is in flight
	ErrHostDisconnected = fmt.Errorf("%w: player host disconnected", shared.ErrNotConnected)
	// ErrCommandTimeout is returned when the host page does not answer in time
	ErrCommandTimeout = fmt.Errorf("%w: player command", shared.ErrTimeout)
)

type pendingRequest struct {
	requestID string
	command   string
	resultCh  chan commandResponse
	createdAt time.Time
}

type commandResponse struct {
	result json.RawMessage
	err    error
}

// ManagerOpts configures a [Manager]. Zero durations use the defaults.
type ManagerOpts struct {
	Logger         *log.Logger
	CommandTimeout time.Duration
	PingInterval   time.Duration
}

// Manager owns the websocket to the host page and multiplexes every bridged [sdk.Player] over it.
type Manager struct {
	mu             sync.RWMutex
	conn           *websocket.Conn
	pending        map[string]*pendingRequest
	players        map[string]*Player
	connected      chan struct{}
	stopPing       chan struct{}
	commandTimeout time.Duration
	pingInterval   time.Duration

	writeMu  sync.Mutex
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewManager creates a manager with no host attached.
func NewManager(opts ManagerOpts) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	m := &Manager{
		pending:        make(map[string]*pendingRequest),
		players:        make(map[string]*Player),
		connected:      make(chan struct{}),
		commandTimeout: 15 * time.Second,
		pingInterval:   30 * time.Second,
		logger:         shared.WithLogger(logger, "component", "bridge"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	if opts.CommandTimeout > 0 {
		m.commandTimeout = opts.CommandTimeout
	}
	if opts.PingInterval > 0 {
		m.pingInterval = opts.PingInterval
	}
	return m
}

// Routes implements the server package's Handler interface.
func (m *Manager) Routes() []string {
	return []string{"/bridge"}
}

// ServeHTTP upgrades the request and attaches the host page.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	m.SetConnection(conn)
}

// SetConnection registers a host connection, replacing any previous one. Players that were connected
// through an earlier host are connected again on this one.
func (m *Manager) SetConnection(conn *websocket.Conn) {
	m.mu.Lock()
	if m.conn != nil {
		m.conn.Close()
	}
	m.stopPingLocked()

	m.conn = conn
	m.stopPing = make(chan struct{})
	select {
	case <-m.connected:
	default:
		close(m.connected)
	}
	stop := m.stopPing

	var reconnect []*Player
	for _, p := range m.players {
		if p.wasConnected() {
			reconnect = append(reconnect, p)
		}
	}
	m.mu.Unlock()

	go m.pingLoop(conn, stop)
	go m.readMessages(conn)

	m.logger.Info("player host connected", "remote", conn.RemoteAddr().String(), "players", len(reconnect))
	for _, p := range reconnect {
		go p.reconnect()
	}
}

// IsConnected reports whether a host page is attached.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn != nil
}

// Inject waits until a host page is attached. It is the script-load step for bridged players.
func (m *Manager) Inject(ctx context.Context) error {
	m.mu.RLock()
	connected := m.connected
	m.mu.RUnlock()

	select {
	case <-connected:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for player host: %v", shared.ErrTimeout, ctx.Err())
	}
}

// NewPlayer implements [sdk.Factory].
func (m *Manager) NewPlayer(opts sdk.Options) (sdk.Player, error) {
	p := &Player{
		id:        shared.GenerateID(),
		manager:   m,
		opts:      opts,
		listeners: make(map[sdk.Event]map[int]sdk.Listener),
	}

	m.mu.Lock()
	m.players[p.id] = p
	m.mu.Unlock()
	return p, nil
}

func (m *Manager) removePlayer(id string) {
	m.mu.Lock()
	delete(m.players, id)
	m.mu.Unlock()
}

func (m *Manager) write(conn *websocket.Conn, frame Frame) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteJSON(frame)
}

func (m *Manager) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.write(conn, Frame{Type: TypePing}); err != nil {
				m.logger.Warn("failed to send ping", "error", err)
			}
		case <-stop:
			return
		}
	}
}

func (m *Manager) readMessages(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(conn)
			return
		}
		m.handleMessage(conn, message)
	}
}

func (m *Manager) handleMessage(conn *websocket.Conn, message []byte) {
	var frame Frame
	if err := json.Unmarshal(message, &frame); err != nil {
		m.logger.Warn("failed to parse host frame", "error", err)
		return
	}

	switch frame.Type {
	case TypePong:
		return
	case TypePing:
		if err := m.write(conn, Frame{Type: TypePong}); err != nil {
			m.logger.Warn("failed to send pong", "error", err)
		}
	case TypeResult:
		m.handleResult(frame)
	case TypeEvent:
		m.handleEvent(frame)
	case TypeTokenRequest:
		m.handleTokenRequest(conn, frame)
	default:
		m.logger.Debug("unknown frame type", "type", frame.Type)
	}
}

func (m *Manager) handleResult(frame Frame) {
	m.mu.Lock()
	pending, ok := m.pending[frame.RequestID]
	if ok {
		delete(m.pending, frame.RequestID)
	}
	m.mu.Unlock()

	if !ok {
		m.logger.Debug("result for unknown request", "request_id", frame.RequestID)
		return
	}

	m.logger.Debug("command completed", "command", pending.command, "took", time.Since(pending.createdAt))
	if frame.Error != "" {
		pending.resultCh <- commandResponse{err: fmt.Errorf("%s: %s", pending.command, frame.Error)}
		return
	}
	pending.resultCh <- commandResponse{result: frame.Result}
}

func (m *Manager) handleEvent(frame Frame) {
	m.mu.RLock()
	p, ok := m.players[frame.PlayerID]
	m.mu.RUnlock()

	if !ok {
		m.logger.Debug("event for unknown player", "player_id", frame.PlayerID, "event", frame.Event)
		return
	}

	payload := sdk.Payload{}
	if frame.Payload != nil {
		payload = *frame.Payload
	}
	p.emit(frame.Event, payload)
}

func (m *Manager) handleTokenRequest(conn *websocket.Conn, frame Frame) {
	m.mu.RLock()
	p, ok := m.players[frame.PlayerID]
	m.mu.RUnlock()

	reply := func(token string) {
		if err := m.write(conn, Frame{Type: TypeToken, RequestID: frame.RequestID, PlayerID: frame.PlayerID, Token: token}); err != nil {
			m.logger.Warn("failed to send token", "error", err)
		}
	}

	if !ok || p.opts.GetOAuthToken == nil {
		reply("")
		return
	}
	p.opts.GetOAuthToken(reply)
}

func (m *Manager) handleDisconnect(conn *websocket.Conn) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}

	m.conn = nil
	m.connected = make(chan struct{})
	m.stopPingLocked()

	pending := m.pending
	m.pending = make(map[string]*pendingRequest)

	players := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		players = append(players, p)
	}
	m.mu.Unlock()

	m.logger.Warn("player host disconnected", "pending", len(pending))

	for _, req := range pending {
		req.resultCh <- commandResponse{err: ErrHostDisconnected}
	}
	for _, p := range players {
		p.emit(sdk.EventNotReady, sdk.Payload{DeviceID: p.DeviceID()})
	}
}

func (m *Manager) stopPingLocked() {
	if m.stopPing == nil {
		return
	}
	select {
	case <-m.stopPing:
	default:
		close(m.stopPing)
	}
	m.stopPing = nil
}

// request sends a command and waits for its result.
func (m *Manager) request(ctx context.Context, playerID, command string, params any) (json.RawMessage, error) {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil {
		return nil, ErrHostNotConnected
	}

	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s params: %w", command, err)
		}
		raw = data
	}

	pending := &pendingRequest{
		requestID: shared.GenerateID(),
		command:   command,
		resultCh:  make(chan commandResponse, 1),
		createdAt: time.Now(),
	}

	m.mu.Lock()
	m.pending[pending.requestID] = pending
	m.mu.Unlock()

	frame := Frame{Type: TypeCommand, RequestID: pending.requestID, PlayerID: playerID, Command: command, Params: raw}
	if err := m.write(conn, frame); err != nil {
		m.forget(pending.requestID)
		return nil, fmt.Errorf("failed to send %s: %w", command, err)
	}

	timer := time.NewTimer(m.commandTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		m.forget(pending.requestID)
		return nil, ctx.Err()
	case <-timer.C:
		m.forget(pending.requestID)
		return nil, ErrCommandTimeout
	case resp := <-pending.resultCh:
		return resp.result, resp.err
	}
}

func (m *Manager) forget(requestID string) {
	m.mu.Lock()
	delete(m.pending, requestID)
	m.mu.Unlock()
}

// Close detaches the host page.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		m.conn.Close()
	}
	m.stopPingLocked()
}
