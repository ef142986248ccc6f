package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"horizons/internal/config"
	"horizons/internal/feed"
	"horizons/internal/heartbeat"
	"horizons/internal/server"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the Horizons authority server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Path to the sqlite database",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// CLI flags override config
	if cmd.IsSet("host") {
		cfg.Server.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Server.Port = cmd.Int("port")
	}
	if cmd.IsSet("db") {
		cfg.Server.DBPath = cmd.String("db")
	}

	store, err := server.Open(cfg.Server.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	if err := store.SeedDefaults(cfg.Server.SeedPath); err != nil {
		slog.Warn("seeding skipped", "error", err)
	}

	hb := heartbeat.NewWriter(config.HeartbeatPath(),
		fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), cfg.Server.DBPath)
	hb.Start()
	defer hb.Stop()

	// Changefeed bus
	bus := feed.NewBus(cfg.Client.EventBuffer)
	defer bus.Close()

	srv := server.NewServer(store, bus, cfg.Server.Host, cfg.Server.Port, cfg.Server.APIKey)

	sweeper, err := server.NewSweeper(store, bus, cfg.Server.Retention.Schedule, cfg.Server.Retention.MaxAge.Duration())
	if err != nil {
		return fmt.Errorf("init sweeper: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
