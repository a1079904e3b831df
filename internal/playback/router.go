package playback

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/sdk"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
)

// SessionView is what the router and switcher read from the embedded session.
type SessionView interface {
	Player() sdk.Player
	LocalDeviceID() string
}

// RouterOpts configures a [Router].
type RouterOpts struct {
	API      services.PlayerAPI
	Session  SessionView // nil in headless mode
	Store    *Store
	Registry *Registry
	DeviceID string // fallback target when the session has no device id
	Logger   *log.Logger
}

// Router dispatches transport commands to the SDK or the Web API.
//
// Toggle, next, previous and seek use the SDK when the session is active with a context loaded and fall back to
// the Web API when it is not or when the SDK call fails. Volume has one channel per configuration (SDK with a
// session, Web API headless); shuffle and repeat always use the Web API.
type Router struct {
	api      services.PlayerAPI
	session  SessionView
	store    *Store
	registry *Registry
	logger   *log.Logger

	mu       sync.RWMutex
	deviceID string

	bg       context.Context
	cancelBG context.CancelFunc
	wg       sync.WaitGroup
}

// NewRouter creates a router.
func NewRouter(opts RouterOpts) *Router {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Store == nil {
		opts.Store = NewStore(StoreOpts{Logger: opts.Logger})
	}
	bg, cancel := context.WithCancel(context.Background())
	return &Router{
		api:      opts.API,
		session:  opts.Session,
		store:    opts.Store,
		registry: opts.Registry,
		deviceID: opts.DeviceID,
		logger:   shared.WithLogger(opts.Logger, "component", "router"),
		bg:       bg,
		cancelBG: cancel,
	}
}

func (r *Router) player() sdk.Player {
	if r.session == nil {
		return nil
	}
	return r.session.Player()
}

// DeviceID is the last known device id: the session's own device, else the configured fallback.
func (r *Router) DeviceID() string {
	if r.session != nil {
		if id := r.session.LocalDeviceID(); id != "" {
			return id
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.deviceID
}

// SetDeviceID changes the fallback target.
func (r *Router) SetDeviceID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deviceID = id
}

type sdkCall func(ctx context.Context, p sdk.Player) error
type restCall func(ctx context.Context, deviceID string) error

// dispatch runs the channel selection for the dual-channel commands.
// onSDK runs after a successful SDK call and onREST after a successful Web API call, with the store version
// read before dispatch.
func (r *Router) dispatch(ctx context.Context, op string, viaSDK sdkCall, viaREST restCall, onSDK func(), onREST func(version uint64)) error {
	player := r.player()
	deviceID := r.DeviceID()
	if player == nil && deviceID == "" {
		return newError(KindNoDeviceAvailable, op, HintNoDevice, nil)
	}

	snap := r.store.Snapshot()
	version := r.store.Version()

	if player != nil && viaSDK != nil && snap.IsActive && snap.HasContext {
		err := viaSDK(ctx, player)
		if err == nil {
			if onSDK != nil {
				onSDK()
			}
			return nil
		}
		r.logger.Debug("sdk command failed, falling back to web api", "op", op, "error", err)
	}

	if err := viaREST(ctx, deviceID); err != nil {
		return r.fail(op, err)
	}
	if onREST != nil {
		onREST(version)
	}
	return nil
}

// fail classifies a Web API error and schedules a registry refresh for stale device ids.
func (r *Router) fail(op string, err error) error {
	classified := Classify(op, err)
	if classified.Kind == KindDeviceNotFound {
		r.refreshAsync()
	}
	r.logger.Debug("command failed", "op", op, "kind", classified.Kind, "error", err)
	return classified
}

func (r *Router) refreshAsync() {
	if r.registry == nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(r.bg, 10*time.Second)
		defer cancel()

		if _, err := r.registry.Refresh(ctx); err != nil {
			r.logger.Warn("device refresh failed", "error", err)
		}
	}()
}

// TogglePlay pauses or resumes playback. With a uri it starts that content over the Web API instead.
//
// A Web API resume without content resumes whatever the remote side last played.
func (r *Router) TogglePlay(ctx context.Context, uri string) error {
	if uri != "" {
		return r.playURI(ctx, uri)
	}

	var playing bool
	return r.dispatch(ctx, "toggle play",
		func(ctx context.Context, p sdk.Player) error { return p.TogglePlay(ctx) },
		func(ctx context.Context, deviceID string) error {
			playing = r.isPlaying(ctx)
			if playing {
				return r.api.Pause(ctx, deviceID)
			}
			return r.api.Play(ctx, deviceID, services.PlayOptions{})
		},
		nil,
		func(version uint64) {
			r.store.ApplyOptimistic(version, func(s *models.PlaybackSnapshot) { s.IsPlaying = !playing })
		},
	)
}

// isPlaying answers "is something playing" from the session when it has focus, else from the Web API.
func (r *Router) isPlaying(ctx context.Context) bool {
	if snap := r.store.Snapshot(); snap.IsActive {
		return snap.IsPlaying
	}

	state, err := r.api.GetPlaybackState(ctx)
	if err != nil {
		r.logger.Debug("playback state unavailable, assuming paused", "error", err)
		return false
	}
	return state != nil && state.IsPlaying
}

func (r *Router) playURI(ctx context.Context, uri string) error {
	const op = "play"
	deviceID := r.DeviceID()
	if r.player() == nil && deviceID == "" {
		return newError(KindNoDeviceAvailable, op, HintNoDevice, nil)
	}

	opts := services.PlayOptions{ContextURI: uri}
	if strings.HasPrefix(uri, "spotify:track:") || strings.HasPrefix(uri, "spotify:episode:") {
		opts = services.PlayOptions{URIs: []string{uri}}
	}

	version := r.store.Version()
	if err := r.api.Play(ctx, deviceID, opts); err != nil {
		return r.fail(op, err)
	}
	r.store.ApplyOptimistic(version, func(s *models.PlaybackSnapshot) { s.IsPlaying = true })
	return nil
}

func (r *Router) Next(ctx context.Context) error {
	return r.dispatch(ctx, "next",
		func(ctx context.Context, p sdk.Player) error { return p.NextTrack(ctx) },
		func(ctx context.Context, deviceID string) error { return r.api.SkipNext(ctx, deviceID) },
		nil, nil,
	)
}

func (r *Router) Previous(ctx context.Context) error {
	return r.dispatch(ctx, "previous",
		func(ctx context.Context, p sdk.Player) error { return p.PreviousTrack(ctx) },
		func(ctx context.Context, deviceID string) error { return r.api.SkipPrevious(ctx, deviceID) },
		nil, nil,
	)
}

// Seek moves to positionMS. The new position shows immediately and holds until the next SDK event.
func (r *Router) Seek(ctx context.Context, positionMS int) error {
	if positionMS < 0 {
		return newError(KindPlayback, "seek", "Position must not be negative.", shared.ErrInvalidArgument)
	}
	return r.dispatch(ctx, "seek",
		func(ctx context.Context, p sdk.Player) error { return p.Seek(ctx, positionMS) },
		func(ctx context.Context, deviceID string) error { return r.api.Seek(ctx, positionMS, deviceID) },
		func() { r.store.ApplyExplicitSeek(positionMS) },
		func(version uint64) {
			r.store.ApplyOptimistic(version, func(s *models.PlaybackSnapshot) { s.PositionMS = positionMS })
		},
	)
}

// SetVolume sets the volume in percent, through the SDK when a session is configured, else the Web API.
func (r *Router) SetVolume(ctx context.Context, percent int) error {
	const op = "volume"
	if percent < 0 || percent > 100 {
		return newError(KindPlayback, op, "Volume must be between 0 and 100.", shared.ErrInvalidArgument)
	}

	if r.session != nil {
		player := r.player()
		if player == nil {
			return newError(KindNoDeviceAvailable, op, HintNoDevice, nil)
		}
		if err := player.SetVolume(ctx, float64(percent)/100); err != nil {
			return newError(KindPlayback, op, HintCommandFailed, err)
		}
		return nil
	}

	deviceID := r.DeviceID()
	if deviceID == "" {
		return newError(KindNoDeviceAvailable, op, HintNoDevice, nil)
	}
	if err := r.api.SetVolume(ctx, percent, deviceID); err != nil {
		return r.fail(op, err)
	}
	return nil
}

func (r *Router) SetShuffle(ctx context.Context, shuffle bool) error {
	return r.restOnly(ctx, "shuffle",
		func(ctx context.Context, deviceID string) error { return r.api.SetShuffle(ctx, shuffle, deviceID) },
		func(s *models.PlaybackSnapshot) { s.Shuffle = shuffle },
	)
}

func (r *Router) SetRepeat(ctx context.Context, mode models.RepeatMode) error {
	if _, err := models.ParseRepeatMode(string(mode)); err != nil {
		return newError(KindPlayback, "repeat", fmt.Sprintf("Unknown repeat mode %q.", mode), err)
	}
	return r.restOnly(ctx, "repeat",
		func(ctx context.Context, deviceID string) error { return r.api.SetRepeat(ctx, mode, deviceID) },
		func(s *models.PlaybackSnapshot) { s.Repeat = mode },
	)
}

func (r *Router) restOnly(ctx context.Context, op string, call restCall, apply func(*models.PlaybackSnapshot)) error {
	deviceID := r.DeviceID()
	if deviceID == "" {
		return newError(KindNoDeviceAvailable, op, HintNoDevice, nil)
	}

	version := r.store.Version()
	if err := call(ctx, deviceID); err != nil {
		return r.fail(op, err)
	}
	r.store.ApplyOptimistic(version, apply)
	return nil
}

// Wait blocks until background refreshes finish.
func (r *Router) Wait() {
	r.wg.Wait()
}

// Close cancels background refreshes and waits for them.
func (r *Router) Close() {
	r.cancelBG()
	r.wg.Wait()
}
