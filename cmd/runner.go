package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	api        services.PlayerAPI
	tokens     services.TokenProvider
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
//
// API and Tokens are normally built from the configuration on first use; setting them skips that.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	API        services.PlayerAPI
	Tokens     services.TokenProvider
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		api:        opts.API,
		tokens:     opts.Tokens,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, playerCommand, historyCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig reads path when it exists and keeps the defaults otherwise.
func (r *Runner) loadConfig(path string) error {
	r.configPath = path
	config, err := shared.LoadConfig(path)
	if errors.Is(err, shared.ErrMissingConfig) {
		r.logger.Debug("config file not found, using defaults", "path", path)
		return nil
	}
	if err != nil {
		return err
	}
	r.config = config
	return nil
}

// spotify returns the Web API client and token provider, building them from the stored credentials on first use.
//
// Refreshed tokens are written back to the config file so the next run starts with a valid access token.
func (r *Runner) spotify() (services.PlayerAPI, services.TokenProvider, error) {
	if r.api != nil {
		return r.api, r.tokens, nil
	}

	creds := r.config.Credentials.Spotify
	if err := r.config.Validate(); err != nil {
		return nil, nil, err
	}

	oauthConfig, err := services.NewSpotifyOAuthConfig(creds.Map())
	if err != nil {
		return nil, nil, err
	}

	provider, err := services.NewOAuthTokenProvider(oauthConfig, creds.Token())
	if err != nil {
		return nil, nil, err
	}
	provider.SetTokenRefreshCallback(r.persistToken)

	svc, err := services.NewSpotifyService(provider, services.SpotifyOpts{
		HTTPClient:        r.httpClient,
		RequestsPerSecond: r.config.Player.RequestsPerSecond,
	})
	if err != nil {
		return nil, nil, err
	}

	r.api, r.tokens = svc, provider
	return svc, provider, nil
}

func (r *Runner) persistToken(token *oauth2.Token) {
	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		r.logger.Warn("ignoring refreshed token", "error", err)
		return
	}
	if r.configPath == "" {
		return
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		r.logger.Warn("failed to save refreshed token", "error", err)
		return
	}
	r.logger.Debug("saved refreshed token", "path", r.configPath)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
