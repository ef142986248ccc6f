package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"horizons/internal/config"
	"horizons/internal/engine"
	"horizons/internal/remote"
)

// openStore connects to the authority server and loads a sync store.
// Callers own the returned store and must Close it.
func openStore(ctx context.Context, cmd *cli.Command) (*engine.Store, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIKey, cfg.Remote.Timeout.Duration())

	store := engine.New(engine.Options{
		API:          client,
		RetentionAge: cfg.Client.RetentionAge.Duration(),
		EventBuffer:  cfg.Client.EventBuffer,
	})
	if err := store.Load(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("load store: %w", err)
	}
	return store, nil
}

// settle closes the store and reports the first persist failure seen on
// the event channel, if any. Close waits for in-flight persists, so every
// outcome has been published by the time the channel drains.
func settle(store *engine.Store) error {
	store.Close()
	for ev := range store.Events() {
		if ev.Err != nil {
			return ev.Err
		}
	}
	return nil
}
