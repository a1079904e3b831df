package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/playsync/internal/formatter"
	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/playback"
	"github.com/desertthunder/playsync/internal/repositories"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
	tu "github.com/desertthunder/playsync/internal/testing"
	"golang.org/x/oauth2"
)

func quietLogger() *bytes.Buffer { return &bytes.Buffer{} }

func newTestRunner(t *testing.T, api *tu.MockPlayerAPI) (*Runner, *bytes.Buffer) {
	t.Helper()
	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(t.TempDir(), "playsync.db")

	output := &bytes.Buffer{}
	opts := RunnerOpts{
		Config: config,
		Logger: shared.NewLogger(quietLogger()),
		Output: output,
	}
	if api != nil {
		opts.API = api
	}
	return NewRunner(opts), output
}

func speakerAPI() *tu.MockPlayerAPI {
	return &tu.MockPlayerAPI{Devices: []models.Device{
		{ID: "speaker-1", Name: "Kitchen", IsActive: true},
		{ID: "phone-1", Name: "Phone"},
	}}
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			api := &tu.MockPlayerAPI{}
			tokens := tu.StaticToken("bearer")

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				API:        api,
				Tokens:     tokens,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.api != api {
				t.Error("expected api to be set")
			}
			if runner.tokens != tokens {
				t.Error("expected tokens to be set")
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if result := output.String(); result != expected {
				t.Errorf("expected %q, got %q", expected, result)
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result := output.String(); result != "hello world" {
				t.Errorf("expected 'hello world', got %q", result)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := []string{}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names = append(names, cmd.Name)
		}
		if strings.Join(names, ",") != "setup,serve,player,history" {
			t.Errorf("unexpected commands %v", names)
		}
	})

	t.Run("loadConfig", func(t *testing.T) {
		t.Run("missing file keeps defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(quietLogger())})
			path := filepath.Join(t.TempDir(), "missing.toml")

			if err := runner.loadConfig(path); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if runner.configPath != path {
				t.Errorf("expected config path to be remembered, got %s", runner.configPath)
			}
			if runner.config.Player.Name != "playsync" {
				t.Errorf("expected default player name, got %s", runner.config.Player.Name)
			}
		})

		t.Run("existing file overrides defaults", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte("[player]\nname = \"den\"\n"), 0600); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			runner := NewRunner(RunnerOpts{})
			if err := runner.loadConfig(path); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if runner.config.Player.Name != "den" {
				t.Errorf("expected overridden name, got %s", runner.config.Player.Name)
			}
			if runner.config.Discovery.MaxAttempts != 8 {
				t.Errorf("expected default attempts to survive, got %d", runner.config.Discovery.MaxAttempts)
			}
		})

		t.Run("invalid file fails", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte("[player\n"), 0600); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			if err := NewRunner(RunnerOpts{}).loadConfig(path); err == nil {
				t.Error("expected parse error")
			}
		})
	})

	t.Run("spotify", func(t *testing.T) {
		t.Run("missing credentials", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			runner.config.Credentials.Spotify.ClientID = ""

			_, _, err := runner.spotify()
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected missing credentials, got %v", err)
			}
		})

		t.Run("builds service once", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Credentials.Spotify.RefreshToken = "refresh"
			runner := NewRunner(RunnerOpts{Config: config})

			api, tokens, err := runner.spotify()
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if _, ok := api.(*services.SpotifyService); !ok {
				t.Errorf("expected a Spotify service, got %T", api)
			}
			if _, ok := tokens.(*services.OAuthTokenProvider); !ok {
				t.Errorf("expected an OAuth provider, got %T", tokens)
			}

			again, _, _ := runner.spotify()
			if again != api {
				t.Error("expected the service to be reused")
			}
		})
	})

	t.Run("persistToken", func(t *testing.T) {
		t.Run("saves tokens successfully", func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.toml")

			config := shared.DefaultConfig()
			config.Credentials.Spotify.ClientID = "test_id"
			if err := shared.SaveConfig(configPath, config); err != nil {
				t.Fatalf("failed to create test config: %v", err)
			}

			runner := NewRunner(RunnerOpts{Config: config, ConfigPath: configPath, Logger: shared.NewLogger(quietLogger())})
			expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
			runner.persistToken(&oauth2.Token{AccessToken: "new_access", RefreshToken: "new_refresh", Expiry: expiry})

			loaded, err := shared.LoadConfig(configPath)
			if err != nil {
				t.Fatalf("failed to load config: %v", err)
			}
			spotify := loaded.Credentials.Spotify
			if spotify.AccessToken != "new_access" || spotify.RefreshToken != "new_refresh" {
				t.Errorf("expected rotated tokens, got %+v", spotify)
			}
			if spotify.ClientID != "test_id" {
				t.Error("expected other settings to survive")
			}
			if !spotify.Token().Expiry.Equal(expiry) {
				t.Errorf("expected expiry %v, got %v", expiry, spotify.Token().Expiry)
			}
		})

		t.Run("ignores empty token", func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.toml")
			runner := NewRunner(RunnerOpts{ConfigPath: configPath, Logger: shared.NewLogger(quietLogger())})

			runner.persistToken(&oauth2.Token{})

			if _, err := os.Stat(configPath); !os.IsNotExist(err) {
				t.Error("expected nothing to be written")
			}
		})

		t.Run("without config path only updates memory", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(quietLogger())})
			runner.persistToken(&oauth2.Token{AccessToken: "memory"})

			if runner.config.Credentials.Spotify.AccessToken != "memory" {
				t.Error("expected in-memory config to be updated")
			}
		})
	})
}

func TestHelpers(t *testing.T) {
	t.Run("resolveDevice", func(t *testing.T) {
		devices := speakerAPI().Devices

		tests := []struct {
			name    string
			devices []models.Device
			want    string
			expect  string
			kind    playback.Kind
		}{
			{"Active By Default", devices, "", "speaker-1", playback.KindUnknown},
			{"No Active Device", []models.Device{{ID: "phone-1"}}, "", "", playback.KindUnknown},
			{"By ID", devices, "phone-1", "phone-1", playback.KindUnknown},
			{"By Name", devices, "phone", "phone-1", playback.KindUnknown},
			{"Unknown", devices, "garage", "", playback.KindDeviceNotFound},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := resolveDevice(tt.devices, tt.want)
				if playback.KindOf(err) != tt.kind {
					t.Fatalf("expected kind %v, got %v", tt.kind, err)
				}
				if got != tt.expect {
					t.Errorf("expected %q, got %q", tt.expect, got)
				}
			})
		}
	})

	t.Run("parsePosition", func(t *testing.T) {
		tests := []struct {
			in      string
			want    int
			wantErr bool
		}{
			{"90", 90000, false},
			{"1:30", 90000, false},
			{"1:02:03", 3723000, false},
			{"0", 0, false},
			{"", 0, true},
			{"1:75", 0, true},
			{"-5", 0, true},
			{"abc", 0, true},
			{"1:2:3:4", 0, true},
		}

		for _, tt := range tests {
			got, err := parsePosition(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("%q: unexpected error %v", tt.in, err)
				continue
			}
			if got != tt.want {
				t.Errorf("%q: expected %d, got %d", tt.in, tt.want, got)
			}
		}
	})

	t.Run("parseSwitch", func(t *testing.T) {
		for in, want := range map[string]bool{"on": true, "TRUE": true, "off": false, "0": false} {
			got, err := parseSwitch(in)
			if err != nil || got != want {
				t.Errorf("%q: expected %v, got %v (%v)", in, want, got, err)
			}
		}
		if _, err := parseSwitch("maybe"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected invalid argument, got %v", err)
		}
		if _, err := parseSwitch(""); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected missing argument, got %v", err)
		}
	})
}

func TestPlayerCommands(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		method string
		device string
		arg    any
		output string
	}{
		{"Next On Active", []string{"player", "next"}, "SkipNext", "speaker-1", nil, "Skipped to next track"},
		{"Previous On Named Device", []string{"player", "prev", "--device", "Phone"}, "SkipPrevious", "phone-1", nil, "previous track"},
		{"Toggle Pauses Playing", []string{"player", "toggle"}, "Pause", "speaker-1", nil, "Toggled playback"},
		{"Toggle With URI", []string{"player", "toggle", "spotify:album:1"}, "Play", "speaker-1", nil, "Playing spotify:album:1"},
		{"Seek", []string{"player", "seek", "1:30"}, "Seek", "speaker-1", 90000, "Seeked to 1:30"},
		{"Volume", []string{"player", "volume", "35%"}, "SetVolume", "speaker-1", 35, "Volume set to 35%"},
		{"Shuffle", []string{"player", "shuffle", "on"}, "SetShuffle", "speaker-1", true, "Shuffle on"},
		{"Repeat", []string{"player", "repeat", "context"}, "SetRepeat", "speaker-1", models.RepeatContext, "Repeat context"},
		{"Transfer By Name", []string{"player", "transfer", "Phone"}, "TransferPlayback", "phone-1", nil, "transferred to Phone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := speakerAPI()
			api.State = &services.PlaybackState{IsPlaying: true, Item: &models.Track{ID: "t1", Name: "Song"}}
			runner, output := newTestRunner(t, api)

			if err := playerCommand(runner).Run(context.Background(), tt.args); err != nil {
				t.Fatalf("command failed: %v", err)
			}

			calls := api.CallsTo(tt.method)
			if len(calls) != 1 {
				t.Fatalf("expected one %s call, got %d (%+v)", tt.method, len(calls), api.Calls())
			}
			if calls[0].DeviceID != tt.device {
				t.Errorf("expected device %s, got %s", tt.device, calls[0].DeviceID)
			}
			if tt.arg != nil && calls[0].Args[0] != tt.arg {
				t.Errorf("expected arg %v, got %v", tt.arg, calls[0].Args[0])
			}
			if !strings.Contains(output.String(), tt.output) {
				t.Errorf("expected output %q, got %q", tt.output, output.String())
			}
		})
	}

	t.Run("No Device", func(t *testing.T) {
		api := &tu.MockPlayerAPI{Devices: []models.Device{{ID: "phone-1"}}}
		runner, _ := newTestRunner(t, api)

		err := playerCommand(runner).Run(context.Background(), []string{"player", "next"})
		if playback.KindOf(err) != playback.KindNoDeviceAvailable {
			t.Errorf("expected no device error, got %v", err)
		}
	})

	t.Run("Invalid Input Skips API", func(t *testing.T) {
		api := speakerAPI()
		runner, _ := newTestRunner(t, api)

		for _, args := range [][]string{
			{"player", "seek", "soon"},
			{"player", "volume", "loud"},
			{"player", "shuffle", "sideways"},
			{"player", "repeat", "forever"},
			{"player", "transfer"},
		} {
			if err := playerCommand(runner).Run(context.Background(), args); err == nil {
				t.Errorf("%v: expected error", args)
			}
		}
		if len(api.Calls()) != 0 {
			t.Errorf("expected no API calls, got %+v", api.Calls())
		}
	})

	t.Run("Status", func(t *testing.T) {
		api := speakerAPI()
		api.State = &services.PlaybackState{
			Device:     &models.Device{ID: "speaker-1", Name: "Kitchen"},
			IsPlaying:  true,
			ProgressMS: 30000,
			Item:       &models.Track{ID: "t1", Name: "Song One", DurationMS: 120000},
		}
		runner, output := newTestRunner(t, api)

		if err := playerCommand(runner).Run(context.Background(), []string{"player", "status"}); err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if out := output.String(); !strings.Contains(out, "Song One") || !strings.Contains(out, "on Kitchen") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("Devices JSON", func(t *testing.T) {
		runner, output := newTestRunner(t, speakerAPI())

		if err := playerCommand(runner).Run(context.Background(), []string{"player", "devices", "--json"}); err != nil {
			t.Fatalf("devices failed: %v", err)
		}

		var devices []models.Device
		if err := json.Unmarshal(output.Bytes(), &devices); err != nil {
			t.Fatalf("expected JSON output: %v", err)
		}
		if len(devices) != 2 {
			t.Errorf("expected 2 devices, got %d", len(devices))
		}
	})

	t.Run("Status Error Is Classified", func(t *testing.T) {
		api := speakerAPI()
		api.StateErr = &services.APIError{StatusCode: 401}
		runner, _ := newTestRunner(t, api)

		err := playerCommand(runner).Run(context.Background(), []string{"player", "status"})
		if playback.KindOf(err) != playback.KindAuthentication {
			t.Errorf("expected authentication error, got %v", err)
		}
	})
}

func TestHistoryCommand(t *testing.T) {
	runner, output := newTestRunner(t, nil)

	db, err := shared.OpenDatabase(runner.config.Database)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	repo := repositories.NewHistoryRepository(db)
	now := time.Now()
	for i, id := range []string{"old", "new"} {
		track := models.Track{ID: id, URI: "spotify:track:" + id, Name: "Track " + id}
		played := models.NewPlayedTrack(track, "", "local", now.Add(time.Duration(i-1)*48*time.Hour))
		if err := repo.Create(played); err != nil {
			t.Fatalf("failed to seed history: %v", err)
		}
	}
	db.Close()

	t.Run("JSON", func(t *testing.T) {
		output.Reset()
		if err := historyCommand(runner).Run(context.Background(), []string{"history", "--json"}); err != nil {
			t.Fatalf("history failed: %v", err)
		}

		var entries []formatter.HistoryEntry
		if err := json.Unmarshal(output.Bytes(), &entries); err != nil {
			t.Fatalf("expected JSON output: %v", err)
		}
		if len(entries) != 2 || entries[0].Track.ID != "new" {
			t.Errorf("unexpected entries %+v", entries)
		}
	})

	t.Run("Since", func(t *testing.T) {
		output.Reset()
		if err := historyCommand(runner).Run(context.Background(), []string{"history", "--since", "24h"}); err != nil {
			t.Fatalf("history failed: %v", err)
		}
		if out := output.String(); !strings.Contains(out, "Track new") || strings.Contains(out, "Track old") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		output.Reset()
		if err := historyCommand(runner).Run(context.Background(), []string{"history", "--clear"}); err != nil {
			t.Fatalf("clear failed: %v", err)
		}
		if !strings.Contains(output.String(), "Removed 2 entries") {
			t.Errorf("unexpected output %q", output.String())
		}
	})
}

func TestSetup(t *testing.T) {
	t.Run("Config", func(t *testing.T) {
		runner, output := newTestRunner(t, nil)
		runner.configPath = filepath.Join(t.TempDir(), "config.toml")

		if err := setupCommand(runner).Run(context.Background(), []string{"setup", "config"}); err != nil {
			t.Fatalf("setup config failed: %v", err)
		}
		tu.AssertFileExists(t, runner.configPath)
		if !strings.Contains(output.String(), "Config written") {
			t.Errorf("unexpected output %q", output.String())
		}

		if err := setupCommand(runner).Run(context.Background(), []string{"setup", "config"}); err == nil {
			t.Error("expected error when the file exists")
		}
	})

	t.Run("Database", func(t *testing.T) {
		runner, output := newTestRunner(t, nil)

		if err := setupCommand(runner).Run(context.Background(), []string{"setup", "database"}); err != nil {
			t.Fatalf("setup database failed: %v", err)
		}
		tu.AssertFileExists(t, runner.config.Database.Path)
		if !strings.Contains(output.String(), "1 migrations applied") {
			t.Errorf("unexpected output %q", output.String())
		}
	})
}
