package playback

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/sdk"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
	tu "github.com/desertthunder/playsync/internal/testing"
)

// fakeSession is a fixed [SessionView].
type fakeSession struct {
	player   sdk.Player
	deviceID string
}

func (f *fakeSession) Player() sdk.Player    { return f.player }
func (f *fakeSession) LocalDeviceID() string { return f.deviceID }

type routerFixture struct {
	api      *tu.MockPlayerAPI
	player   *tu.MockPlayer
	store    *Store
	registry *Registry
	router   *Router
}

func newRouterFixture(t *testing.T, session SessionView, player *tu.MockPlayer) *routerFixture {
	t.Helper()
	f := &routerFixture{api: &tu.MockPlayerAPI{}, player: player, store: newTestStore(nil)}
	f.registry = NewRegistry(f.api, nil)
	f.router = NewRouter(RouterOpts{
		API:      f.api,
		Session:  session,
		Store:    f.store,
		Registry: f.registry,
		Logger:   shared.NewLogger(io.Discard),
	})
	t.Cleanup(func() {
		f.router.Close()
		f.store.Close()
	})
	return f
}

// connected returns a fixture with a ready session on device "local".
func connected(t *testing.T) *routerFixture {
	player := tu.NewMockPlayer()
	return newRouterFixture(t, &fakeSession{player: player, deviceID: "local"}, player)
}

func TestRouterNoDevice(t *testing.T) {
	ops := map[string]func(*Router) error{
		"toggle":   func(r *Router) error { return r.TogglePlay(context.Background(), "") },
		"play uri": func(r *Router) error { return r.TogglePlay(context.Background(), "spotify:album:1") },
		"next":     func(r *Router) error { return r.Next(context.Background()) },
		"previous": func(r *Router) error { return r.Previous(context.Background()) },
		"seek":     func(r *Router) error { return r.Seek(context.Background(), 1000) },
		"volume":   func(r *Router) error { return r.SetVolume(context.Background(), 50) },
		"shuffle":  func(r *Router) error { return r.SetShuffle(context.Background(), true) },
		"repeat":   func(r *Router) error { return r.SetRepeat(context.Background(), models.RepeatTrack) },
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			f := newRouterFixture(t, &fakeSession{}, nil)
			before := f.store.Snapshot()

			err := op(f.router)
			if KindOf(err) != KindNoDeviceAvailable {
				t.Fatalf("expected no device available, got %v", err)
			}
			var e *Error
			if !errors.As(err, &e) || e.Message != HintNoDevice {
				t.Errorf("expected hint %q, got %v", HintNoDevice, err)
			}
			if len(f.api.Calls()) != 0 {
				t.Errorf("expected no remote calls, got %+v", f.api.Calls())
			}
			after := f.store.Snapshot()
			if after.IsPlaying != before.IsPlaying || after.PositionMS != before.PositionMS || after.Shuffle != before.Shuffle {
				t.Error("a failed command must leave the snapshot unchanged")
			}
		})
	}
}

func TestRouterChannelSelection(t *testing.T) {
	t.Run("Active With Context Uses SDK", func(t *testing.T) {
		tests := []struct {
			name    string
			call    func(*Router) error
			sdkCall string
		}{
			{"toggle", func(r *Router) error { return r.TogglePlay(context.Background(), "") }, "TogglePlay"},
			{"next", func(r *Router) error { return r.Next(context.Background()) }, "NextTrack"},
			{"previous", func(r *Router) error { return r.Previous(context.Background()) }, "PreviousTrack"},
			{"seek", func(r *Router) error { return r.Seek(context.Background(), 1000) }, "Seek"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := connected(t)
				f.store.ApplySDKState(tu.PlayingState("spotify:album:1", 0, 10000, false))

				if err := tt.call(f.router); err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if len(f.player.CallsTo(tt.sdkCall)) != 1 {
					t.Errorf("expected one SDK %s call", tt.sdkCall)
				}
				if len(f.api.Calls()) != 0 {
					t.Errorf("expected no web api calls, got %+v", f.api.Calls())
				}
			})
		}
	})

	t.Run("Active Without Context Toggles Over REST", func(t *testing.T) {
		f := connected(t)
		f.store.ApplySDKState(tu.PlayingState("", 0, 10000, false))

		if err := f.router.TogglePlay(context.Background(), ""); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(f.player.CallsTo("TogglePlay")) != 0 {
			t.Error("must not call the SDK without a context")
		}
		pauses := f.api.CallsTo("Pause")
		if len(pauses) != 1 || pauses[0].DeviceID != "local" {
			t.Errorf("expected REST pause on local, got %+v", f.api.Calls())
		}
		if f.store.Snapshot().IsPlaying {
			t.Error("expected optimistic pause")
		}

		f.api.Reset()
		if err := f.router.TogglePlay(context.Background(), ""); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		plays := f.api.CallsTo("Play")
		if len(plays) != 1 {
			t.Fatalf("expected REST resume, got %+v", f.api.Calls())
		}
		if opts := plays[0].Args[0].(services.PlayOptions); !opts.Empty() {
			t.Errorf("resume must not carry content, got %+v", opts)
		}
	})

	t.Run("SDK Failure Falls Back To REST", func(t *testing.T) {
		tests := []struct {
			name     string
			call     func(*Router) error
			sdkCall  string
			restCall string
		}{
			{"toggle", func(r *Router) error { return r.TogglePlay(context.Background(), "") }, "TogglePlay", "Pause"},
			{"next", func(r *Router) error { return r.Next(context.Background()) }, "NextTrack", "SkipNext"},
			{"previous", func(r *Router) error { return r.Previous(context.Background()) }, "PreviousTrack", "SkipPrevious"},
			{"seek", func(r *Router) error { return r.Seek(context.Background(), 1000) }, "Seek", "Seek"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := connected(t)
				f.store.ApplySDKState(tu.PlayingState("spotify:album:1", 0, 10000, false))
				f.player.SetError(tt.sdkCall, errors.New("sdk exploded"))

				if err := tt.call(f.router); err != nil {
					t.Fatalf("SDK failure must not surface when REST succeeds, got %v", err)
				}
				if len(f.player.CallsTo(tt.sdkCall)) != 1 {
					t.Error("expected the SDK to be tried first")
				}
				if len(f.api.CallsTo(tt.restCall)) != 1 {
					t.Errorf("expected REST %s, got %+v", tt.restCall, f.api.Calls())
				}
			})
		}
	})

	t.Run("Both Channels Fail", func(t *testing.T) {
		f := connected(t)
		f.store.ApplySDKState(tu.PlayingState("spotify:album:1", 0, 10000, false))
		f.player.SetError("NextTrack", errors.New("sdk exploded"))
		f.api.SetError("SkipNext", &services.APIError{StatusCode: 404, Reason: services.ReasonNoSpecificTrack, Message: "no track"})

		err := f.router.Next(context.Background())
		var e *Error
		if !errors.As(err, &e) || e.Kind != KindPlayback || e.Message != HintNoTrack {
			t.Errorf("expected classified REST error with hint, got %v", err)
		}
	})

	t.Run("Inactive Uses REST With Remote State", func(t *testing.T) {
		f := connected(t)
		f.api.State = &services.PlaybackState{IsPlaying: true}

		if err := f.router.TogglePlay(context.Background(), ""); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(f.api.CallsTo("GetPlaybackState")) != 1 || len(f.api.CallsTo("Pause")) != 1 {
			t.Errorf("expected remote state lookup then pause, got %+v", f.api.Calls())
		}
	})

	t.Run("Remote State Error Assumes Paused", func(t *testing.T) {
		f := connected(t)
		f.api.SetError("GetPlaybackState", errors.New("boom"))

		if err := f.router.TogglePlay(context.Background(), ""); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(f.api.CallsTo("Play")) != 1 {
			t.Errorf("expected resume, got %+v", f.api.Calls())
		}
	})

	t.Run("Fallback Device Without Session", func(t *testing.T) {
		f := newRouterFixture(t, nil, nil)
		f.router.SetDeviceID("speaker")

		if err := f.router.Next(context.Background()); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		calls := f.api.CallsTo("SkipNext")
		if len(calls) != 1 || calls[0].DeviceID != "speaker" {
			t.Errorf("expected skip on speaker, got %+v", f.api.Calls())
		}
	})
}

func TestRouterSeek(t *testing.T) {
	t.Run("Optimistic Via SDK", func(t *testing.T) {
		f := connected(t)
		f.store.ApplySDKState(tu.PlayingState("spotify:album:1", 1000, 10000, true))

		if err := f.router.Seek(context.Background(), 5000); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := f.store.Snapshot().PositionMS; got != 5000 {
			t.Errorf("expected position 5000 immediately, got %d", got)
		}
	})

	t.Run("Optimistic Via REST", func(t *testing.T) {
		f := connected(t)
		f.store.ApplySDKState(tu.PlayingState("", 1000, 10000, true))

		if err := f.router.Seek(context.Background(), 4000); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := f.store.Snapshot().PositionMS; got != 4000 {
			t.Errorf("expected position 4000, got %d", got)
		}
	})

	t.Run("Failure Leaves Snapshot", func(t *testing.T) {
		f := connected(t)
		f.store.ApplySDKState(tu.PlayingState("", 1000, 10000, true))
		f.api.SetError("Seek", &services.APIError{StatusCode: 500})

		if err := f.router.Seek(context.Background(), 4000); err == nil {
			t.Fatal("expected error")
		}
		if got := f.store.Snapshot().PositionMS; got != 1000 {
			t.Errorf("expected unchanged position, got %d", got)
		}
	})

	t.Run("Negative", func(t *testing.T) {
		f := connected(t)
		if err := f.router.Seek(context.Background(), -1); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestRouterDeviceNotFound(t *testing.T) {
	f := connected(t)
	f.api.Devices = []models.Device{{ID: "fresh"}}
	f.api.SetError("SkipNext", &services.APIError{StatusCode: 404, Message: "Device not found", DeviceID: "local"})

	err := f.router.Next(context.Background())
	if KindOf(err) != KindDeviceNotFound {
		t.Fatalf("expected device not found, got %v", err)
	}

	f.router.Wait()
	if !f.registry.Has("fresh") {
		t.Error("expected an asynchronous registry refresh")
	}
}

func TestRouterSingleChannel(t *testing.T) {
	t.Run("Volume Uses SDK With Session", func(t *testing.T) {
		f := connected(t)
		if err := f.router.SetVolume(context.Background(), 40); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		calls := f.player.CallsTo("SetVolume")
		if len(calls) != 1 || calls[0].Args[0] != 0.4 {
			t.Errorf("expected SDK volume 0.4, got %+v", calls)
		}
		if len(f.api.Calls()) != 0 {
			t.Error("volume must not use REST when a session is configured")
		}
	})

	t.Run("Volume SDK Failure Is Not Retried", func(t *testing.T) {
		f := connected(t)
		f.player.SetError("SetVolume", errors.New("nope"))
		if err := f.router.SetVolume(context.Background(), 40); KindOf(err) != KindPlayback {
			t.Errorf("expected playback error, got %v", err)
		}
		if len(f.api.Calls()) != 0 {
			t.Error("volume has a single channel")
		}
	})

	t.Run("Volume Uses REST Headless", func(t *testing.T) {
		f := newRouterFixture(t, nil, nil)
		f.router.SetDeviceID("speaker")
		if err := f.router.SetVolume(context.Background(), 40); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		calls := f.api.CallsTo("SetVolume")
		if len(calls) != 1 || calls[0].Args[0] != 40 || calls[0].DeviceID != "speaker" {
			t.Errorf("expected REST volume 40 on speaker, got %+v", calls)
		}
	})

	t.Run("Volume Range", func(t *testing.T) {
		f := connected(t)
		if err := f.router.SetVolume(context.Background(), 101); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("Shuffle And Repeat Use REST", func(t *testing.T) {
		f := connected(t)
		f.store.ApplySDKState(tu.PlayingState("spotify:album:1", 0, 10000, false))

		if err := f.router.SetShuffle(context.Background(), true); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := f.router.SetRepeat(context.Background(), models.RepeatContext); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if calls := f.api.CallsTo("SetShuffle"); len(calls) != 1 || calls[0].DeviceID != "local" {
			t.Errorf("expected REST shuffle on local, got %+v", calls)
		}
		if calls := f.api.CallsTo("SetRepeat"); len(calls) != 1 || calls[0].Args[0] != models.RepeatContext {
			t.Errorf("expected REST repeat context, got %+v", calls)
		}
		snap := f.store.Snapshot()
		if !snap.Shuffle || snap.Repeat != models.RepeatContext {
			t.Errorf("expected optimistic shuffle/repeat, got %+v", snap)
		}
	})

	t.Run("Unknown Repeat Mode", func(t *testing.T) {
		f := connected(t)
		if err := f.router.SetRepeat(context.Background(), "sometimes"); KindOf(err) != KindPlayback {
			t.Errorf("expected playback error, got %v", err)
		}
		if len(f.api.Calls()) != 0 {
			t.Error("expected no remote call")
		}
	})
}

func TestRouterPlayURI(t *testing.T) {
	tests := []struct {
		uri     string
		context string
		uris    []string
	}{
		{"spotify:playlist:abc", "spotify:playlist:abc", nil},
		{"spotify:track:xyz", "", []string{"spotify:track:xyz"}},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			f := connected(t)
			f.store.ApplySDKState(tu.PlayingState("spotify:album:1", 0, 10000, true))

			if err := f.router.TogglePlay(context.Background(), tt.uri); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(f.player.CallsTo("TogglePlay")) != 0 {
				t.Error("content cannot be loaded through the SDK")
			}
			plays := f.api.CallsTo("Play")
			if len(plays) != 1 {
				t.Fatalf("expected one play, got %+v", f.api.Calls())
			}
			opts := plays[0].Args[0].(services.PlayOptions)
			if opts.ContextURI != tt.context || len(opts.URIs) != len(tt.uris) {
				t.Errorf("unexpected play options %+v", opts)
			}
		})
	}
}
