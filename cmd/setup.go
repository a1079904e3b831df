package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/playsync/internal/formatter"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the embedded template to the config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := r.configPath
	if path == "" {
		path = "config.toml"
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)

	r.writePlain("%s Config written to %s\n", formatter.OK("✓"), path)
	r.writePlain("\nNext steps:\n")
	r.writePlain("1. Set client_id and client_secret under [credentials.spotify]\n")
	r.writePlain("2. Paste a refresh_token obtained with the scopes: %s\n", strings.Join(services.PlayerScopes, " "))
	r.writePlain("3. Run 'playsync setup database', then 'playsync serve'\n")
	return nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	defer db.Close()

	applied, err := shared.AppliedVersions(db)
	if err != nil {
		return err
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	r.writePlain("%s Database ready at %s (%d migrations applied)\n", formatter.OK("✓"), r.config.Database.Path, len(applied))
	return nil
}
