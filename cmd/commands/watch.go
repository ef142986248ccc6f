package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"horizons/internal/config"
	"horizons/internal/engine"
	"horizons/internal/model"
	"horizons/internal/remote"
)

// NewWatchCommand returns the watch subcommand.
func NewWatchCommand() *cli.Command {
	return &cli.Command{
		Name:   "watch",
		Usage:  "Follow the authority's change stream until interrupted",
		Action: runWatch,
	}
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	stream := remote.NewSocket(cfg.Remote.BaseURL, cfg.Remote.APIKey)
	rec := engine.NewReconciler(store, stream)
	if err := rec.Start(ctx); err != nil {
		return fmt.Errorf("subscribe to change stream: %w", err)
	}
	defer rec.Stop()

	fmt.Printf("Watching %s (ctrl-c to stop)\n", cfg.Remote.BaseURL)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-store.Events():
			if ev.Kind == engine.KindRemote {
				fmt.Println(describeChange(store, ev))
			}
		}
	}
}

func describeChange(store *engine.Store, ev engine.Event) string {
	switch ev.Entity {
	case remote.EntityTasks:
		if task, ok := store.Task(ev.ID); ok {
			return fmt.Sprintf("task    %-36s  %s", ev.ID, task.Title)
		}
		return fmt.Sprintf("task    %-36s  (deleted)", ev.ID)
	case remote.EntityHorizons:
		if h, ok := horizonByID(store, ev.ID); ok {
			return fmt.Sprintf("horizon %-36s  %s", ev.ID, h.Name)
		}
		return fmt.Sprintf("horizon %-36s  (deleted)", ev.ID)
	}
	return fmt.Sprintf("%s %s", ev.Entity, ev.ID)
}

func horizonByID(store *engine.Store, id string) (model.Horizon, bool) {
	for _, h := range store.Horizons() {
		if h.ID == id {
			return h, true
		}
	}
	return model.Horizon{}, false
}
