package commands

import (
	"github.com/urfave/cli/v3"

	"horizons/internal/config"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "horizons",
		Usage: "Capture tasks in plain language and keep them in sync",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewServeCommand(),
			NewAddCommand(),
			NewTasksCommand(),
			NewHorizonsCommand(),
			NewWatchCommand(),
			NewStatusCommand(),
		},
	}
}
