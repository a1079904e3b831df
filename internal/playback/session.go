package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/sdk"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
)

// Phase is the embedded session's lifecycle phase.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseScriptLoading
	PhaseScriptLoaded
	PhaseConnecting
	PhaseReady
	PhaseNotReady // was ready, device went offline; the device id is kept
	PhaseDisconnected
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseScriptLoading:
		return "script_loading"
	case PhaseScriptLoaded:
		return "script_loaded"
	case PhaseConnecting:
		return "connecting"
	case PhaseReady:
		return "ready"
	case PhaseNotReady:
		return "not_ready"
	case PhaseDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

var eventKinds = map[sdk.Event]Kind{
	sdk.EventInitializationError: KindInitialization,
	sdk.EventAuthenticationError: KindAuthentication,
	sdk.EventAccountError:        KindAccount,
	sdk.EventPlaybackError:       KindPlayback,
}

// SessionOpts configures a [Session].
type SessionOpts struct {
	Script    *sdk.Script
	Factory   sdk.Factory
	Tokens    services.TokenProvider
	Name      string
	Volume    float64
	Store     *Store
	Registry  *Registry
	Discovery *Discovery
	Notifier  *Notifier
	Logger    *log.Logger
}

// Session owns the embedded player's lifecycle and republishes its events to the [Store] and [Registry].
type Session struct {
	opts   SessionOpts
	logger *log.Logger

	mu         sync.Mutex
	phase      Phase
	localID    string
	lastError  *Error
	player     sdk.Player
	removers   []func()
	generation int

	lifetime        context.Context
	cancelLifetime  context.CancelFunc
	cancelDiscovery context.CancelFunc
	discoveryWG     sync.WaitGroup
}

// NewSession creates an uninitialized session.
func NewSession(opts SessionOpts) *Session {
	if opts.Script == nil {
		opts.Script = sdk.NewScript(nil)
	}
	if opts.Notifier == nil {
		opts.Notifier = NewNotifier()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Session{
		opts:   opts,
		logger: shared.WithLogger(opts.Logger, "component", "session"),
	}
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// LocalDeviceID is the SDK-assigned device id, empty before ready and after teardown.
func (s *Session) LocalDeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localID
}

// LastError is the most recent lifecycle error, or nil.
func (s *Session) LastError() *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Player returns the constructed player, or nil when there is none.
func (s *Session) Player() sdk.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
	s.opts.Notifier.Notify()
}

func (s *Session) fail(gen int, kind Kind, op string, err error) error {
	e := newError(kind, op, err.Error(), err)

	s.mu.Lock()
	if s.generation == gen {
		s.lastError = e
		s.phase = PhaseDisconnected
		if s.cancelLifetime != nil {
			s.cancelLifetime()
			s.cancelLifetime = nil
		}
	}
	s.mu.Unlock()

	s.logger.Error("session initialization failed", "op", op, "error", err)
	s.opts.Notifier.Notify()
	return e
}

// Initialize loads the script, builds the player, subscribes to its events and connects.
// It is a no-op unless the session is uninitialized or disconnected.
//
// ctx bounds the initialization steps only; the session lives until [Session.Teardown].
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseUninitialized && s.phase != PhaseDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.generation++
	gen := s.generation
	s.phase = PhaseScriptLoading
	s.lifetime, s.cancelLifetime = context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Unlock()
	s.opts.Notifier.Notify()

	if err := s.opts.Script.Load(ctx); err != nil {
		return s.fail(gen, KindInitialization, "load script", err)
	}
	if !s.advance(gen, PhaseScriptLoaded) {
		return nil
	}

	if s.opts.Factory == nil {
		return s.fail(gen, KindInitialization, "create player", fmt.Errorf("%w: no player factory", shared.ErrInvalidConfig))
	}
	player, err := s.opts.Factory(sdk.Options{
		Name:          s.opts.Name,
		Volume:        s.opts.Volume,
		GetOAuthToken: s.getOAuthToken,
	})
	if err != nil {
		return s.fail(gen, KindInitialization, "create player", err)
	}

	removers := []func(){
		player.AddListener(sdk.EventReady, s.onReady(gen)),
		player.AddListener(sdk.EventNotReady, s.onNotReady(gen)),
		player.AddListener(sdk.EventPlayerStateChanged, s.onStateChanged(gen)),
	}
	for _, event := range sdk.ErrorEvents {
		removers = append(removers, player.AddListener(event, s.onError(gen, event)))
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		release(player, removers)
		return nil
	}
	s.player = player
	s.removers = removers
	s.phase = PhaseConnecting
	s.mu.Unlock()
	s.opts.Notifier.Notify()

	ok, err := player.Connect(ctx)
	if err == nil && !ok {
		err = fmt.Errorf("player refused to connect")
	}
	if err != nil {
		s.mu.Lock()
		current := s.generation == gen
		if current {
			s.player, s.removers = nil, nil
		}
		s.mu.Unlock()
		if current {
			release(player, removers)
		}
		return s.fail(gen, KindInitialization, "connect", err)
	}

	s.logger.Info("player connected, waiting for ready", "name", s.opts.Name)
	return nil
}

// advance moves to phase p unless a teardown happened since gen.
func (s *Session) advance(gen int, p Phase) bool {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return false
	}
	s.phase = p
	s.mu.Unlock()
	s.opts.Notifier.Notify()
	return true
}

func release(player sdk.Player, removers []func()) {
	for _, remove := range removers {
		remove()
	}
	player.Disconnect()
}

// getOAuthToken answers the SDK's token requests. Failures hand back an empty token.
func (s *Session) getOAuthToken(cb sdk.TokenCallback) {
	s.mu.Lock()
	ctx := s.lifetime
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	go func() {
		if s.opts.Tokens == nil {
			cb("")
			return
		}

		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		token, err := s.opts.Tokens.GetValidToken(ctx)
		if err != nil {
			s.logger.Warn("token provider failed", "error", err)
			cb("")
			return
		}
		cb(token)
	}()
}

// Listeners are bound to the generation they were registered under. Events delivered after a teardown,
// including ones already in flight when it ran, are dropped.
func (s *Session) onReady(gen int) sdk.Listener {
	return func(p sdk.Payload) {
		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			return
		}
		if s.cancelDiscovery != nil {
			s.cancelDiscovery()
		}
		s.localID = p.DeviceID
		s.phase = PhaseReady
		s.lastError = nil
		if s.opts.Registry != nil {
			s.opts.Registry.SetLocal(p.DeviceID)
		}
		if s.opts.Store != nil {
			s.opts.Store.SetDeviceID(p.DeviceID)
		}

		var ctx context.Context
		ctx, s.cancelDiscovery = context.WithCancel(s.lifetime)
		if s.opts.Discovery != nil {
			s.discoveryWG.Add(1)
			go func() {
				defer s.discoveryWG.Done()
				_ = s.opts.Discovery.Run(ctx, p.DeviceID)
			}()
		}
		s.mu.Unlock()

		s.logger.Info("player ready", "device_id", p.DeviceID)
		s.opts.Notifier.Notify()
	}
}

// onNotReady keeps the device id but drops the session's playback state: the SDK instance is gone.
func (s *Session) onNotReady(gen int) sdk.Listener {
	return func(p sdk.Payload) {
		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			return
		}
		if s.phase == PhaseReady {
			s.phase = PhaseNotReady
		}
		if s.opts.Store != nil {
			s.opts.Store.ApplySDKState(nil)
		}
		s.mu.Unlock()

		s.logger.Info("player went offline", "device_id", p.DeviceID)
		s.opts.Notifier.Notify()
	}
}

func (s *Session) onStateChanged(gen int) sdk.Listener {
	return func(p sdk.Payload) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.generation != gen || s.opts.Store == nil {
			return
		}
		s.opts.Store.ApplySDKState(p.State)
	}
}

func (s *Session) onError(gen int, event sdk.Event) sdk.Listener {
	kind := eventKinds[event]
	return func(p sdk.Payload) {
		message := p.Message
		if message == "" {
			message = kind.String() + " error"
		}

		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			return
		}
		s.lastError = newError(kind, string(event), message, nil)
		s.mu.Unlock()

		s.logger.Error("player error", "kind", kind, "message", message)
		s.opts.Notifier.Notify()
	}
}

// Teardown stops discovery, drops every listener, disconnects the player and resets the store.
// It is safe to call repeatedly and on a session that never initialized.
func (s *Session) Teardown() {
	s.mu.Lock()
	if s.phase == PhaseDisconnected && s.player == nil {
		s.mu.Unlock()
		return
	}
	s.generation++
	if s.cancelDiscovery != nil {
		s.cancelDiscovery()
		s.cancelDiscovery = nil
	}
	if s.cancelLifetime != nil {
		s.cancelLifetime()
		s.cancelLifetime = nil
	}
	player, removers := s.player, s.removers
	s.player, s.removers = nil, nil
	s.localID = ""
	s.phase = PhaseDisconnected
	s.mu.Unlock()

	if player != nil {
		release(player, removers)
	}
	s.discoveryWG.Wait()

	if s.opts.Registry != nil {
		s.opts.Registry.SetLocal("")
	}
	if s.opts.Store != nil {
		s.opts.Store.Reset()
	}

	s.logger.Info("session torn down")
	s.opts.Notifier.Notify()
}
