package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"horizons/internal/model"
)

// NewTasksCommand returns the tasks subcommand.
func NewTasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "List and manage tasks",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List tasks",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "horizon",
						Usage: "Only tasks for this horizon id",
					},
					&cli.BoolFlag{
						Name:  "today",
						Usage: "Only tasks due today or earlier, across horizons",
					},
				},
				Action: runTasksList,
			},
			{
				Name:      "done",
				Usage:     "Toggle a task's completion",
				ArgsUsage: "<task_id>",
				Action:    runTasksDone,
			},
			{
				Name:      "rm",
				Usage:     "Delete a task",
				ArgsUsage: "<task_id>",
				Action:    runTasksRemove,
			},
		},
		DefaultCommand: "list",
	}
}

func runTasksList(ctx context.Context, cmd *cli.Command) error {
	store, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	var list []model.Task
	switch {
	case cmd.Bool("today"):
		list = store.TodayTasks()
	case cmd.String("horizon") != "":
		list = store.TasksForHorizon(cmd.String("horizon"))
	default:
		list = store.Tasks()
	}

	if len(list) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTIMEFRAME\tDUE\tTITLE")
	for _, t := range list {
		status := "open"
		if t.Completed {
			status = "done"
		}
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, status, t.Timeframe, due, t.Title)
	}
	return w.Flush()
}

func runTasksDone(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: horizons tasks done <task_id>")
	}

	store, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}

	if err := store.ToggleComplete(ctx, taskID); err != nil {
		store.Close()
		return fmt.Errorf("toggle task: %w", err)
	}
	if err := settle(store); err != nil {
		return fmt.Errorf("toggle was rolled back: %w", err)
	}

	fmt.Printf("Task %s toggled.\n", taskID)
	return nil
}

func runTasksRemove(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: horizons tasks rm <task_id>")
	}

	store, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}

	if err := store.DeleteTask(ctx, taskID); err != nil {
		store.Close()
		return fmt.Errorf("delete task: %w", err)
	}
	if err := settle(store); err != nil {
		return fmt.Errorf("remote delete failed: %w", err)
	}

	fmt.Printf("Task %s deleted.\n", taskID)
	return nil
}
