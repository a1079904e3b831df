package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/playsync/internal/formatter"
	"github.com/desertthunder/playsync/internal/repositories"
	"github.com/desertthunder/playsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// History lists recorded plays, or clears them with --clear.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	repo := repositories.NewHistoryRepository(db)

	var since time.Time
	if d := cmd.Duration("since"); d > 0 {
		since = time.Now().Add(-d)
	}

	if cmd.Bool("clear") {
		n, err := repo.Clear(since)
		if err != nil {
			return err
		}
		r.logger.Info("cleared play history", "removed", n)
		return r.writePlain("%s Removed %d entries\n", formatter.OK("✓"), n)
	}

	entries, err := repo.List(map[string]any{
		"limit":     cmd.Int("limit"),
		"device_id": cmd.String("device"),
		"since":     since,
	})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(formatter.HistoryJSON(entries), true)
	}
	formatter.History(r.output, entries)
	return nil
}
