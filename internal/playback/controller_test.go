package playback

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/sdk"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
	tu "github.com/desertthunder/playsync/internal/testing"
)

func TestController(t *testing.T) {
	t.Run("Embedded Session", func(t *testing.T) {
		api := &tu.MockPlayerAPI{Devices: []models.Device{{ID: "local", Name: "playsync"}}}
		player := tu.NewMockPlayer()
		c := NewController(Options{
			API:        api,
			Tokens:     tu.StaticToken("bearer"),
			Script:     sdk.NewScript(nil),
			Factory:    tu.MockFactory(player, nil),
			PlayerName: "playsync",
			Wait:       tu.NoWait,
			Logger:     shared.NewLogger(io.Discard),
		})
		defer c.Close()

		changes, cancel := c.Subscribe()
		defer cancel()

		if c.Headless() {
			t.Fatal("expected an embedded session")
		}
		if err := c.Start(context.Background()); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		player.Emit(sdk.EventReady, sdk.Payload{DeviceID: "local"})
		c.Session().discoveryWG.Wait()
		player.Emit(sdk.EventPlayerStateChanged, sdk.Payload{State: tu.PlayingState("spotify:album:1", 0, 1000, true)})

		select {
		case <-changes:
		default:
			t.Error("expected a change notification")
		}

		st := c.State()
		if st.Phase != PhaseReady || !st.Ready || st.DeviceID != "local" {
			t.Errorf("unexpected connection state %+v", st)
		}
		if !st.IsActive || !st.HasContext || st.Playback.CurrentTrack == nil {
			t.Errorf("unexpected playback state %+v", st.Playback)
		}
		if len(st.Devices) != 1 {
			t.Errorf("expected discovered devices, got %+v", st.Devices)
		}

		data, err := json.Marshal(st)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if !strings.Contains(string(data), `"phase":"ready"`) {
			t.Errorf("expected phase by name, got %s", data)
		}

		player.Emit(sdk.EventAccountError, sdk.Payload{Message: "premium required"})
		if e := c.State().LastError; e == nil || e.Kind != KindAccount {
			t.Errorf("expected account error in state, got %+v", e)
		}

		if err := c.TogglePlay(context.Background(), ""); err != nil {
			t.Fatalf("toggle failed: %v", err)
		}
		if len(player.CallsTo("TogglePlay")) != 1 {
			t.Error("expected SDK toggle")
		}

		c.Close()
		if c.State().Phase != PhaseDisconnected {
			t.Error("expected disconnected after close")
		}
	})

	t.Run("Headless", func(t *testing.T) {
		api := &tu.MockPlayerAPI{Devices: []models.Device{{ID: "speaker", IsActive: true}, {ID: "phone"}}}
		c := NewController(Options{API: api, DeviceID: "speaker", Wait: tu.NoWait, Logger: shared.NewLogger(io.Discard)})
		defer c.Close()

		if !c.Headless() {
			t.Fatal("expected headless controller")
		}
		if err := c.Start(context.Background()); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		if len(c.State().Devices) != 2 {
			t.Error("expected headless start to load devices")
		}

		if err := c.SetVolume(context.Background(), 30); err != nil {
			t.Fatalf("volume failed: %v", err)
		}
		if calls := api.CallsTo("SetVolume"); len(calls) != 1 || calls[0].DeviceID != "speaker" {
			t.Errorf("expected REST volume on speaker, got %+v", calls)
		}

		if err := c.Transfer(context.Background(), "phone"); err != nil {
			t.Fatalf("transfer failed: %v", err)
		}
		if err := c.Next(context.Background()); err != nil {
			t.Fatalf("next failed: %v", err)
		}
		if calls := api.CallsTo("SkipNext"); len(calls) != 1 || calls[0].DeviceID != "phone" {
			t.Errorf("expected commands to follow the transfer, got %+v", calls)
		}
	})

	t.Run("Headless Start Failure", func(t *testing.T) {
		api := &tu.MockPlayerAPI{}
		api.SetError("ListDevices", &services.APIError{StatusCode: 401})
		c := NewController(Options{API: api, Logger: shared.NewLogger(io.Discard)})
		defer c.Close()

		err := c.Start(context.Background())
		if KindOf(err) != KindAuthentication {
			t.Errorf("expected authentication error, got %v", err)
		}
		if !errors.Is(err, shared.ErrTokenExpired) {
			t.Error("expected the cause to be reachable")
		}
	})

	t.Run("Options From Config", func(t *testing.T) {
		cfg := shared.DefaultConfig()
		opts := OptionsFromConfig(cfg)
		if opts.Retry.MaxAttempts != cfg.Discovery.MaxAttempts {
			t.Errorf("expected attempts from config, got %d", opts.Retry.MaxAttempts)
		}
		if opts.PlayerName != cfg.Player.Name {
			t.Errorf("expected player name from config, got %s", opts.PlayerName)
		}
	})
}
