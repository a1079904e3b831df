package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/desertthunder/playsync/internal/sdk"
)

// Player is an [sdk.Player] whose SDK instance lives in the host page.
type Player struct {
	id      string
	manager *Manager
	opts    sdk.Options

	mu        sync.Mutex
	nextID    int
	listeners map[sdk.Event]map[int]sdk.Listener
	deviceID  string
	connected bool
}

// ID returns the bridge-local player id, not the Spotify device id.
func (p *Player) ID() string { return p.id }

// DeviceID returns the device id from the last ready event.
func (p *Player) DeviceID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deviceID
}

func (p *Player) AddListener(event sdk.Event, fn sdk.Listener) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.listeners[event] == nil {
		p.listeners[event] = make(map[int]sdk.Listener)
	}
	id := p.nextID
	p.nextID++
	p.listeners[event][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.listeners[event], id)
		})
	}
}

func (p *Player) emit(event sdk.Event, payload sdk.Payload) {
	p.mu.Lock()
	if event == sdk.EventReady {
		p.deviceID = payload.DeviceID
	}
	fns := make([]sdk.Listener, 0, len(p.listeners[event]))
	for _, fn := range p.listeners[event] {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(payload)
	}
}

func (p *Player) Connect(ctx context.Context) (bool, error) {
	raw, err := p.manager.request(ctx, p.id, CommandConnect, connectParams{Name: p.opts.Name, Volume: p.opts.Volume})
	if err != nil {
		return false, err
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return false, fmt.Errorf("failed to decode connect result: %w", err)
	}
	if ok {
		p.mu.Lock()
		p.connected = true
		p.mu.Unlock()
	}
	return ok, nil
}

func (p *Player) wasConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// reconnect recreates the SDK instance on a newly attached host page. The host answers with a fresh ready event.
func (p *Player) reconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), p.manager.commandTimeout)
	defer cancel()

	ok, err := p.Connect(ctx)
	if err != nil || !ok {
		p.manager.logger.Warn("failed to reconnect player", "player_id", p.id, "error", err)
		return
	}
	p.manager.logger.Info("player reconnected", "player_id", p.id)
}

// Disconnect tells the host page to drop the SDK instance and unregisters the player. Errors are ignored.
func (p *Player) Disconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), p.manager.commandTimeout)
	defer cancel()

	if _, err := p.manager.request(ctx, p.id, CommandDisconnect, nil); err != nil {
		p.manager.logger.Debug("disconnect not acknowledged", "player_id", p.id, "error", err)
	}
	p.manager.removePlayer(p.id)
}

func (p *Player) TogglePlay(ctx context.Context) error {
	_, err := p.manager.request(ctx, p.id, CommandTogglePlay, nil)
	return err
}

func (p *Player) Seek(ctx context.Context, positionMS int) error {
	_, err := p.manager.request(ctx, p.id, CommandSeek, seekParams{PositionMS: positionMS})
	return err
}

func (p *Player) PreviousTrack(ctx context.Context) error {
	_, err := p.manager.request(ctx, p.id, CommandPreviousTrack, nil)
	return err
}

func (p *Player) NextTrack(ctx context.Context) error {
	_, err := p.manager.request(ctx, p.id, CommandNextTrack, nil)
	return err
}

func (p *Player) SetVolume(ctx context.Context, volume float64) error {
	if volume < 0 || volume > 1 {
		return fmt.Errorf("volume %.2f out of range 0..1", volume)
	}
	_, err := p.manager.request(ctx, p.id, CommandSetVolume, volumeParams{Volume: volume})
	return err
}

func (p *Player) GetCurrentState(ctx context.Context) (*sdk.State, error) {
	raw, err := p.manager.request(ctx, p.id, CommandGetCurrentState, nil)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var state sdk.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to decode player state: %w", err)
	}
	return &state, nil
}

var _ sdk.Player = (*Player)(nil)
