package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

// NewHorizonsCommand returns the horizons subcommand.
func NewHorizonsCommand() *cli.Command {
	return &cli.Command{
		Name:  "horizons",
		Usage: "Manage horizons (life-area buckets)",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List active horizons",
				Action: runHorizonsList,
			},
			{
				Name:      "add",
				Usage:     "Create a horizon",
				ArgsUsage: "<name>",
				Action:    runHorizonsAdd,
			},
			{
				Name:      "archive",
				Usage:     "Archive a horizon",
				ArgsUsage: "<horizon_id>",
				Action:    runHorizonsArchive,
			},
		},
		DefaultCommand: "list",
	}
}

func runHorizonsList(ctx context.Context, cmd *cli.Command) error {
	store, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	list := store.Horizons()
	if len(list) == 0 {
		fmt.Println("No horizons found.")
		return nil
	}

	active, _ := store.ActiveHorizon()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCOLOR\tTASKS")
	for _, h := range list {
		name := h.Name
		if h.ID == active.ID {
			name += " *"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", h.ID, name, h.Color, len(store.TasksForHorizon(h.ID)))
	}
	return w.Flush()
}

func runHorizonsAdd(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return fmt.Errorf("usage: horizons horizons add <name>")
	}

	store, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}

	h, err := store.AddHorizon(ctx, name)
	if err != nil {
		store.Close()
		return fmt.Errorf("add horizon: %w", err)
	}
	if err := settle(store); err != nil {
		return fmt.Errorf("horizon was rolled back: %w", err)
	}

	fmt.Printf("Added horizon %q.\n", h.Name)
	return nil
}

func runHorizonsArchive(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: horizons horizons archive <horizon_id>")
	}

	store, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}

	if err := store.ArchiveHorizon(ctx, id); err != nil {
		store.Close()
		return fmt.Errorf("archive horizon: %w", err)
	}
	if err := settle(store); err != nil {
		return fmt.Errorf("archive was rolled back: %w", err)
	}

	fmt.Printf("Horizon %s archived.\n", id)
	return nil
}
