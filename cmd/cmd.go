// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand handles setup operations for the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config file from the built-in template",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// serveCommand runs the embedded player session with its host page and control surface.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the player host, open it in the browser and serve the control API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default from [server] in config)",
			},
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "Do not open the host page automatically",
			},
			&cli.BoolFlag{
				Name:  "no-history",
				Usage: "Do not record play history",
			},
		},
		Action: r.Serve,
	}
}

func deviceFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "device",
		Aliases: []string{"d"},
		Usage:   "Target device id or name (default: configured device, else the active one)",
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Output raw JSON",
	}
}

// playerCommand handles one-shot transport commands against the Web API.
func playerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "player",
		Aliases: []string{"p"},
		Usage:   "Control playback on a Spotify Connect device",
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show what is playing",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.PlayerStatus,
			},
			{
				Name:   "devices",
				Usage:  "List available devices",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.PlayerDevices,
			},
			{
				Name:  "toggle",
				Usage: "Play or pause; with a URI, start playing it",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "uri"},
				},
				Flags:  []cli.Flag{deviceFlag()},
				Action: r.PlayerToggle,
			},
			{
				Name:   "next",
				Usage:  "Skip to the next track",
				Flags:  []cli.Flag{deviceFlag()},
				Action: r.PlayerNext,
			},
			{
				Name:    "prev",
				Aliases: []string{"previous"},
				Usage:   "Skip to the previous track",
				Flags:   []cli.Flag{deviceFlag()},
				Action:  r.PlayerPrevious,
			},
			{
				Name:  "seek",
				Usage: "Seek to a position (seconds or m:ss)",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "position"},
				},
				Flags:  []cli.Flag{deviceFlag()},
				Action: r.PlayerSeek,
			},
			{
				Name:  "volume",
				Usage: "Set the volume in percent",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "percent"},
				},
				Flags:  []cli.Flag{deviceFlag()},
				Action: r.PlayerVolume,
			},
			{
				Name:  "shuffle",
				Usage: "Turn shuffle on or off",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "state"},
				},
				Flags:  []cli.Flag{deviceFlag()},
				Action: r.PlayerShuffle,
			},
			{
				Name:  "repeat",
				Usage: "Set repeat to off, context or track",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "mode"},
				},
				Flags:  []cli.Flag{deviceFlag()},
				Action: r.PlayerRepeat,
			},
			{
				Name:  "transfer",
				Usage: "Move playback to another device",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "target"},
				},
				Action: r.PlayerTransfer,
			},
		},
	}
}

// historyCommand lists or clears the recorded play history.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show tracks played through the embedded session",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of entries to show",
				Value: 25,
			},
			&cli.StringFlag{
				Name:  "device",
				Usage: "Only show entries played on this device id",
			},
			&cli.DurationFlag{
				Name:  "since",
				Usage: "Only show entries played within this duration (e.g. 24h)",
			},
			&cli.BoolFlag{
				Name:  "clear",
				Usage: "Delete the history instead of listing it (respects --since as a cutoff)",
			},
			jsonFlag(),
		},
		Action: r.History,
	}
}
