package playback

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
)

// Discovery polls the device list until the embedded session's device shows up.
//
// The SDK reports ready before the Web API knows about the device, so the first few listings usually miss it.
type Discovery struct {
	api      services.PlayerAPI
	registry *Registry
	policy   RetryPolicy
	wait     WaitFunc
	logger   *log.Logger
}

// NewDiscovery creates a discovery loop. A nil wait uses [Sleep].
func NewDiscovery(api services.PlayerAPI, registry *Registry, policy RetryPolicy, wait WaitFunc, logger *log.Logger) *Discovery {
	if wait == nil {
		wait = Sleep
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Discovery{
		api:      api,
		registry: registry,
		policy:   policy,
		wait:     wait,
		logger:   shared.WithLogger(logger, "component", "discovery"),
	}
}

// Run polls until localID is listed. Every fetched list is published to the registry.
// Once found, playback is claimed with a non-playing transfer when no device is active.
//
// Exhaustion is logged and returned (wrapping [shared.ErrRetryExhausted]) but is otherwise harmless.
func (d *Discovery) Run(ctx context.Context, localID string) error {
	attempts, err := Retry(ctx, d.policy, d.wait, func(ctx context.Context, attempt int) (bool, error) {
		devices, err := d.api.ListDevices(ctx)
		if err != nil {
			d.logger.Debug("device poll failed", "attempt", attempt+1, "error", err)
			return false, err
		}
		d.registry.Replace(devices)

		if !d.registry.Has(localID) {
			d.logger.Debug("local device not listed yet", "attempt", attempt+1, "devices", len(devices))
			return false, nil
		}

		if _, active := d.registry.Active(); !active {
			if err := d.api.TransferPlayback(ctx, localID, false); err != nil {
				d.logger.Warn("auto-claim transfer failed", "device_id", localID, "error", err)
			} else {
				d.logger.Info("claimed playback for local device", "device_id", localID)
			}
		}
		return true, nil
	})

	switch {
	case err == nil:
		d.logger.Info("local device discovered", "device_id", localID, "attempts", attempts)
	case errors.Is(err, shared.ErrRetryExhausted):
		d.logger.Warn("device discovery timed out", "device_id", localID, "attempts", attempts)
	default:
		d.logger.Debug("device discovery stopped", "device_id", localID, "error", err)
	}
	return err
}
