package playback

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/sdk"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
)

// State is the combined read-only view handed to a UI.
type State struct {
	Phase      Phase                   `json:"phase"`
	Ready      bool                    `json:"ready"`
	DeviceID   string                  `json:"device_id,omitempty"`
	IsActive   bool                    `json:"is_active"`
	HasContext bool                    `json:"has_context"`
	Playback   models.PlaybackSnapshot `json:"playback"`
	Devices    []models.Device         `json:"devices"`
	LastError  *Error                  `json:"last_error,omitempty"`
}

// Options configures a [Controller]. Without a Factory the controller runs headless: no embedded session, every
// command goes to the Web API against DeviceID.
type Options struct {
	API     services.PlayerAPI
	Tokens  services.TokenProvider
	Script  *sdk.Script
	Factory sdk.Factory

	PlayerName string
	Volume     float64
	DeviceID   string

	Retry        RetryPolicy
	TickInterval time.Duration
	SettleDelay  time.Duration
	Wait         WaitFunc

	History HistoryRecorder
	Logger  *log.Logger
}

// OptionsFromConfig fills the tunables from config.
func OptionsFromConfig(cfg *shared.Config) Options {
	return Options{
		PlayerName:   cfg.Player.Name,
		Volume:       cfg.Player.Volume,
		DeviceID:     cfg.Player.DeviceID,
		Retry:        RetryPolicyFromConfig(cfg.Discovery),
		TickInterval: shared.Millis(cfg.Playback.TickIntervalMS),
		SettleDelay:  shared.Millis(cfg.Playback.SettleDelayMS),
	}
}

// Controller wires the session, store, registry, router and switcher together.
type Controller struct {
	notifier *Notifier
	store    *Store
	registry *Registry
	session  *Session
	router   *Router
	switcher *Switcher
	logger   *log.Logger
}

// NewController builds every component. It does not connect anything; call [Controller.Start].
func NewController(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}

	c := &Controller{notifier: NewNotifier(), logger: opts.Logger}
	c.store = NewStore(StoreOpts{
		TickInterval: opts.TickInterval,
		History:      opts.History,
		Notifier:     c.notifier,
		Logger:       opts.Logger,
	})
	c.registry = NewRegistry(opts.API, c.notifier)

	var view SessionView
	if opts.Factory != nil {
		c.session = NewSession(SessionOpts{
			Script:    opts.Script,
			Factory:   opts.Factory,
			Tokens:    opts.Tokens,
			Name:      opts.PlayerName,
			Volume:    opts.Volume,
			Store:     c.store,
			Registry:  c.registry,
			Discovery: NewDiscovery(opts.API, c.registry, opts.Retry, opts.Wait, opts.Logger),
			Notifier:  c.notifier,
			Logger:    opts.Logger,
		})
		view = c.session
	}

	c.router = NewRouter(RouterOpts{
		API:      opts.API,
		Session:  view,
		Store:    c.store,
		Registry: c.registry,
		DeviceID: opts.DeviceID,
		Logger:   opts.Logger,
	})
	c.switcher = NewSwitcher(opts.API, view, c.registry, opts.SettleDelay, opts.Wait, opts.Logger)
	return c
}

// Start initializes the embedded session, or in headless mode loads the device list once.
func (c *Controller) Start(ctx context.Context) error {
	if c.session != nil {
		return c.session.Initialize(ctx)
	}
	_, err := c.registry.Refresh(ctx)
	if err != nil {
		return Classify("refresh devices", err)
	}
	return nil
}

// Close tears everything down. Safe to call more than once.
func (c *Controller) Close() {
	if c.session != nil {
		c.session.Teardown()
	}
	c.router.Close()
	c.store.Close()
}

// Headless reports whether the controller runs without an embedded session.
func (c *Controller) Headless() bool {
	return c.session == nil
}

func (c *Controller) Session() *Session   { return c.session }
func (c *Controller) Store() *Store       { return c.store }
func (c *Controller) Registry() *Registry { return c.registry }
func (c *Controller) Router() *Router     { return c.router }

// State assembles the combined view.
func (c *Controller) State() State {
	snap := c.store.Snapshot()
	st := State{
		Playback:   snap,
		IsActive:   snap.IsActive,
		HasContext: snap.HasContext,
		Devices:    c.registry.Devices(),
		DeviceID:   c.router.DeviceID(),
	}
	if c.session != nil {
		st.Phase = c.session.Phase()
		st.Ready = st.Phase == PhaseReady
		st.LastError = c.session.LastError()
	}
	return st
}

// Subscribe signals every change to the session, store or registry.
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	return c.notifier.Subscribe()
}

func (c *Controller) TogglePlay(ctx context.Context, uri string) error {
	return c.router.TogglePlay(ctx, uri)
}

func (c *Controller) Next(ctx context.Context) error {
	return c.router.Next(ctx)
}

func (c *Controller) Previous(ctx context.Context) error {
	return c.router.Previous(ctx)
}

func (c *Controller) Seek(ctx context.Context, positionMS int) error {
	return c.router.Seek(ctx, positionMS)
}

func (c *Controller) SetVolume(ctx context.Context, percent int) error {
	return c.router.SetVolume(ctx, percent)
}

func (c *Controller) SetShuffle(ctx context.Context, shuffle bool) error {
	return c.router.SetShuffle(ctx, shuffle)
}

func (c *Controller) SetRepeat(ctx context.Context, mode models.RepeatMode) error {
	return c.router.SetRepeat(ctx, mode)
}

// Transfer switches playback to deviceID. In headless mode the device also becomes the command target.
func (c *Controller) Transfer(ctx context.Context, deviceID string) error {
	if err := c.switcher.Switch(ctx, deviceID); err != nil {
		return err
	}
	if c.session == nil {
		c.router.SetDeviceID(deviceID)
	}
	return nil
}

// RefreshDevices reloads the device list.
func (c *Controller) RefreshDevices(ctx context.Context) ([]models.Device, error) {
	devices, err := c.registry.Refresh(ctx)
	if err != nil {
		return nil, Classify("refresh devices", err)
	}
	return devices, nil
}
