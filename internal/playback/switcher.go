package playback

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
)

// Switcher moves playback between devices without losing the queue position.
type Switcher struct {
	api      services.PlayerAPI
	session  SessionView
	registry *Registry
	settle   time.Duration
	wait     WaitFunc
	logger   *log.Logger
}

// NewSwitcher creates a switcher. session may be nil; settle defaults to 500ms and wait to [Sleep].
func NewSwitcher(api services.PlayerAPI, session SessionView, registry *Registry, settle time.Duration, wait WaitFunc, logger *log.Logger) *Switcher {
	if settle <= 0 {
		settle = 500 * time.Millisecond
	}
	if wait == nil {
		wait = Sleep
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Switcher{
		api:      api,
		session:  session,
		registry: registry,
		settle:   settle,
		wait:     wait,
		logger:   shared.WithLogger(logger, "component", "switcher"),
	}
}

type capturedState struct {
	contextURI string
	playing    bool
	positionMS int
}

// Switch transfers playback to targetID.
//
// When the target is the local session and a context was playing before, the SDK often comes up empty after the
// transfer; in that case the captured context is replayed once at the captured position.
func (s *Switcher) Switch(ctx context.Context, targetID string) error {
	const op = "switch device"
	if targetID == "" {
		return newError(KindNoDeviceAvailable, op, HintNoDevice, nil)
	}

	captured := s.capture(ctx)

	if err := s.api.TransferPlayback(ctx, targetID, captured.playing); err != nil {
		classified := Classify(op, err)
		if classified.Kind == KindDeviceNotFound && s.registry != nil {
			if _, rerr := s.registry.Refresh(ctx); rerr != nil {
				s.logger.Warn("device refresh failed", "error", rerr)
			}
		}
		return classified
	}

	if err := s.wait(ctx, s.settle); err != nil {
		return err
	}

	if s.registry != nil {
		if _, err := s.registry.Refresh(ctx); err != nil {
			s.logger.Warn("device refresh after transfer failed", "error", err)
		}
	}

	if s.session == nil || captured.contextURI == "" || targetID != s.session.LocalDeviceID() {
		s.logger.Info("playback transferred", "device_id", targetID)
		return nil
	}
	return s.restore(ctx, op, targetID, captured)
}

// capture reads the remote state; a failed read just means nothing to restore.
func (s *Switcher) capture(ctx context.Context) capturedState {
	state, err := s.api.GetPlaybackState(ctx)
	if err != nil {
		s.logger.Debug("could not capture playback state", "error", err)
		return capturedState{}
	}
	if state == nil {
		return capturedState{}
	}
	return capturedState{
		contextURI: state.ContextURI,
		playing:    state.IsPlaying,
		positionMS: state.ProgressMS,
	}
}

func (s *Switcher) restore(ctx context.Context, op, targetID string, captured capturedState) error {
	if player := s.session.Player(); player != nil {
		state, err := player.GetCurrentState(ctx)
		if err == nil && state != nil && state.Context.URI != "" {
			s.logger.Info("playback transferred with context", "device_id", targetID, "context", state.Context.URI)
			return nil
		}
	}

	position := captured.positionMS
	opts := services.PlayOptions{ContextURI: captured.contextURI, PositionMS: &position}
	if err := s.api.Play(ctx, targetID, opts); err != nil {
		return newError(KindPlayback, op, HintNotRestored, err)
	}

	s.logger.Info("restored playback context", "device_id", targetID, "context", captured.contextURI, "position_ms", position)
	return nil
}
