package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/playsync/internal/bridge"
	"github.com/desertthunder/playsync/internal/playback"
	"github.com/desertthunder/playsync/internal/repositories"
	"github.com/desertthunder/playsync/internal/sdk"
	"github.com/desertthunder/playsync/internal/server"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
	"github.com/urfave/cli/v3"
)

type profiler interface {
	UserProfile(ctx context.Context) (*services.SpotifyUser, error)
}

// Serve runs the embedded player session until interrupted.
//
// The host page served at / loads the playback SDK and talks to the session over the /bridge socket; the control
// API (/state, /devices, /events, /control/*) drives the session from any local client.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	api, tokens, err := r.spotify()
	if err != nil {
		return err
	}
	r.checkAccount(ctx, api)

	manager := bridge.NewManager(bridge.ManagerOpts{Logger: r.logger})
	defer manager.Close()

	opts := playback.OptionsFromConfig(r.config)
	opts.API = api
	opts.Tokens = tokens
	opts.Script = sdk.Global(manager.Inject)
	opts.Factory = manager.NewPlayer
	opts.Logger = r.logger

	if !cmd.Bool("no-history") {
		db, err := shared.OpenDatabase(r.config.Database)
		if err != nil {
			r.logger.Warn("play history disabled", "error", err)
		} else {
			defer db.Close()
			opts.History = repositories.NewHistoryRepository(db)
		}
	}

	controller := playback.NewController(opts)
	defer controller.Close()

	router := server.NewBasicRouter()
	router.Use(server.Recoverer(r.logger), server.RequestLogger(r.logger))
	router.Handler(bridge.HostPage{})
	router.Handler(manager)
	router.Handler(server.NewControlHandler(controller, r.logger))

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Address()
	}

	errs := make(chan error, 1)
	go func() { errs <- server.Serve(ctx, addr, router, r.logger) }()

	go func() {
		if err := controller.Start(ctx); err != nil {
			r.logger.Error("player session failed to start", "error", err)
		}
	}()
	go r.logChanges(ctx, controller)

	url := "http://" + addr + "/"
	if cmd.Bool("no-browser") {
		r.writePlain("Open %s to start the player\n", url)
	} else if err := shared.OpenBrowser(url); err != nil {
		r.logger.Warn("could not open browser", "url", url, "error", err)
		r.writePlain("Open %s to start the player\n", url)
	}

	return <-errs
}

// checkAccount warns when the account cannot use the playback SDK. Failures only log.
func (r *Runner) checkAccount(ctx context.Context, api services.PlayerAPI) {
	p, ok := api.(profiler)
	if !ok {
		return
	}

	user, err := p.UserProfile(ctx)
	if err != nil {
		r.logger.Warn("could not check account", "error", err)
		return
	}
	if !user.IsPremium() {
		r.logger.Warn("account is not premium; the embedded player will refuse to connect", "user", user.DisplayName, "product", user.Product)
		return
	}
	r.logger.Info("signed in", "user", user.DisplayName)
}

// logChanges logs session phase changes and each new track until ctx is done.
func (r *Runner) logChanges(ctx context.Context, controller *playback.Controller) {
	changes, cancel := controller.Subscribe()
	defer cancel()

	var phase playback.Phase
	var trackURI string
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
		}

		st := controller.State()
		if st.Phase != phase {
			phase = st.Phase
			r.logger.Info("session", "phase", phase, "device", st.DeviceID)
		}
		if t := st.Playback.CurrentTrack; t != nil && t.URI != trackURI {
			trackURI = t.URI
			r.logger.Info("now playing", "track", t.Name, "artist", t.ArtistLine())
		}
	}
}
