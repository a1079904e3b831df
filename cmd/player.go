package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/playsync/internal/formatter"
	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/playback"
	"github.com/desertthunder/playsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// headless builds a controller without an embedded session and points it at the requested device.
func (r *Runner) headless(ctx context.Context, cmd *cli.Command) (*playback.Controller, error) {
	api, _, err := r.spotify()
	if err != nil {
		return nil, err
	}

	opts := playback.OptionsFromConfig(r.config)
	opts.API = api
	opts.DeviceID = ""
	opts.Logger = r.logger

	ctrl := playback.NewController(opts)
	if err := ctrl.Start(ctx); err != nil {
		ctrl.Close()
		return nil, err
	}

	want := cmd.String("device")
	if want == "" {
		want = r.config.Player.DeviceID
	}

	target, err := resolveDevice(ctrl.Registry().Devices(), want)
	if err != nil {
		ctrl.Close()
		return nil, err
	}
	ctrl.Router().SetDeviceID(target)
	r.logger.Debug("headless controller ready", "device", target)
	return ctrl, nil
}

// resolveDevice matches want against device ids, then names (case-insensitive). An empty want picks the active
// device, or nothing when none is active.
func resolveDevice(devices []models.Device, want string) (string, error) {
	if want == "" {
		for _, d := range devices {
			if d.IsActive {
				return d.ID, nil
			}
		}
		return "", nil
	}

	for _, d := range devices {
		if d.ID == want {
			return d.ID, nil
		}
	}
	for _, d := range devices {
		if strings.EqualFold(d.Name, want) {
			return d.ID, nil
		}
	}
	return "", playback.Classify("resolve device", fmt.Errorf("%w: %s", shared.ErrDeviceNotFound, want))
}

// parsePosition accepts plain seconds ("90"), m:ss ("1:30") or h:mm:ss and returns milliseconds.
func parsePosition(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: position", shared.ErrMissingArgument)
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("%w: position %q", shared.ErrInvalidArgument, s)
	}

	total := 0
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || (i > 0 && n > 59) {
			return 0, fmt.Errorf("%w: position %q", shared.ErrInvalidArgument, s)
		}
		total = total*60 + n
	}
	return total * 1000, nil
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	case "":
		return false, fmt.Errorf("%w: expected on or off", shared.ErrMissingArgument)
	default:
		return false, fmt.Errorf("%w: expected on or off, got %q", shared.ErrInvalidArgument, s)
	}
}

// runHeadless runs fn on a headless controller and prints done on success.
func (r *Runner) runHeadless(ctx context.Context, cmd *cli.Command, done string, fn func(*playback.Controller) error) error {
	ctrl, err := r.headless(ctx, cmd)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if err := fn(ctrl); err != nil {
		return err
	}
	return r.writePlain("%s %s\n", formatter.OK("✓"), done)
}

// PlayerStatus prints the Web API's view of playback.
func (r *Runner) PlayerStatus(ctx context.Context, cmd *cli.Command) error {
	api, _, err := r.spotify()
	if err != nil {
		return err
	}

	st, err := api.GetPlaybackState(ctx)
	if err != nil {
		return playback.Classify("status", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(st, true)
	}
	formatter.RemoteState(r.output, st)
	return nil
}

// PlayerDevices lists devices visible to the account.
func (r *Runner) PlayerDevices(ctx context.Context, cmd *cli.Command) error {
	api, _, err := r.spotify()
	if err != nil {
		return err
	}

	devices, err := api.ListDevices(ctx)
	if err != nil {
		return playback.Classify("devices", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(devices, true)
	}
	formatter.Devices(r.output, devices)
	return nil
}

func (r *Runner) PlayerToggle(ctx context.Context, cmd *cli.Command) error {
	uri := cmd.StringArg("uri")
	done := "Toggled playback"
	if uri != "" {
		done = "Playing " + uri
	}
	return r.runHeadless(ctx, cmd, done, func(c *playback.Controller) error {
		return c.TogglePlay(ctx, uri)
	})
}

func (r *Runner) PlayerNext(ctx context.Context, cmd *cli.Command) error {
	return r.runHeadless(ctx, cmd, "Skipped to next track", func(c *playback.Controller) error {
		return c.Next(ctx)
	})
}

func (r *Runner) PlayerPrevious(ctx context.Context, cmd *cli.Command) error {
	return r.runHeadless(ctx, cmd, "Skipped to previous track", func(c *playback.Controller) error {
		return c.Previous(ctx)
	})
}

func (r *Runner) PlayerSeek(ctx context.Context, cmd *cli.Command) error {
	ms, err := parsePosition(cmd.StringArg("position"))
	if err != nil {
		return err
	}
	return r.runHeadless(ctx, cmd, "Seeked to "+shared.FormatPosition(ms), func(c *playback.Controller) error {
		return c.Seek(ctx, ms)
	})
}

func (r *Runner) PlayerVolume(ctx context.Context, cmd *cli.Command) error {
	arg := strings.TrimSuffix(strings.TrimSpace(cmd.StringArg("percent")), "%")
	if arg == "" {
		return fmt.Errorf("%w: percent", shared.ErrMissingArgument)
	}
	percent, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("%w: percent %q", shared.ErrInvalidArgument, arg)
	}
	return r.runHeadless(ctx, cmd, fmt.Sprintf("Volume set to %d%%", percent), func(c *playback.Controller) error {
		return c.SetVolume(ctx, percent)
	})
}

func (r *Runner) PlayerShuffle(ctx context.Context, cmd *cli.Command) error {
	on, err := parseSwitch(cmd.StringArg("state"))
	if err != nil {
		return err
	}
	done := "Shuffle off"
	if on {
		done = "Shuffle on"
	}
	return r.runHeadless(ctx, cmd, done, func(c *playback.Controller) error {
		return c.SetShuffle(ctx, on)
	})
}

func (r *Runner) PlayerRepeat(ctx context.Context, cmd *cli.Command) error {
	mode, err := models.ParseRepeatMode(cmd.StringArg("mode"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	return r.runHeadless(ctx, cmd, "Repeat "+string(mode), func(c *playback.Controller) error {
		return c.SetRepeat(ctx, mode)
	})
}

// PlayerTransfer moves playback to the device matching the target id or name.
func (r *Runner) PlayerTransfer(ctx context.Context, cmd *cli.Command) error {
	want := cmd.StringArg("target")
	if want == "" {
		return fmt.Errorf("%w: target device", shared.ErrMissingArgument)
	}

	return r.runHeadless(ctx, cmd, "Playback transferred to "+want, func(c *playback.Controller) error {
		target, err := resolveDevice(c.Registry().Devices(), want)
		if err != nil {
			return err
		}
		return c.Transfer(ctx, target)
	})
}
