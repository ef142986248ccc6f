package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"
)

// NewAddCommand returns the add subcommand.
func NewAddCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Capture a task from plain language, e.g. '#home buy filters tomorrow'",
		ArgsUsage: "<text>",
		Action:    runAdd,
	}
}

func runAdd(ctx context.Context, cmd *cli.Command) error {
	text := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("usage: horizons add <text>")
	}

	store, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}

	task, err := store.CreateTask(ctx, text)
	if err != nil {
		store.Close()
		return fmt.Errorf("create task: %w", err)
	}

	if err := settle(store); err != nil {
		return fmt.Errorf("task was rolled back: %w", err)
	}

	due := "-"
	if task.DueDate != nil {
		due = task.DueDate.Format("2006-01-02")
	}
	fmt.Printf("Added %q  [%s, due %s]\n", task.Title, task.Timeframe, due)
	return nil
}
