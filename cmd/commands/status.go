package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"horizons/internal/config"
	"horizons/internal/heartbeat"
	"horizons/internal/remote"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Check the authority server",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIKey, cfg.Remote.Timeout.Duration())
			if health, err := client.Health(ctx); err == nil {
				fmt.Printf("Authority: OK (%s)\n", cfg.Remote.BaseURL)
				for k, v := range health {
					fmt.Printf("  %s: %v\n", k, v)
				}
				return nil
			}

			// HTTP unreachable; fall back to the local heartbeat file to
			// tell a dead process from a listening-elsewhere one.
			status, beat, err := heartbeat.Check(config.HeartbeatPath(), 2*time.Minute)
			if err != nil {
				return fmt.Errorf("check heartbeat: %w", err)
			}

			switch status {
			case heartbeat.StatusAlive:
				fmt.Printf("Authority: UNREACHABLE over HTTP (%s) but process alive (PID %d on %s, up %s)\n",
					cfg.Remote.BaseURL, beat.PID, beat.Addr, beat.Uptime().Truncate(time.Second))
			case heartbeat.StatusStale:
				fmt.Printf("Authority: STALE (PID %d, last heartbeat %s ago)\n",
					beat.PID, time.Since(beat.BeatAt).Truncate(time.Second))
			case heartbeat.StatusDead:
				fmt.Println("Authority: NOT RUNNING")
			}
			return nil
		},
	}
}
