package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/plandala/internal/board"
	"github.com/zulandar/plandala/internal/models"
	"github.com/zulandar/plandala/internal/notify"
)

func newBoardCmd() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "board <page>",
		Short: "Show a page's columns in display order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoard(cmd, flags.configPath, models.Page(args[0]))
		},
	}

	flags.register(cmd)
	return cmd
}

func runBoard(cmd *cobra.Command, configPath string, page models.Page) error {
	a, err := openApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	cache, release, err := a.projection(cmd.Context())
	if err != nil {
		return err
	}
	defer release()

	b, err := board.New(page, cache, a.store)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, col := range b.Columns() {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "%s (%d)\n", col.Title, len(col.Tasks))
		if len(col.Tasks) == 0 {
			fmt.Fprintln(out, "  (empty)")
			continue
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, t := range col.Tasks {
			fmt.Fprintf(w, "  %s\t%s\t%d\n", t.ID, truncate(t.Title, 40), t.Order)
		}
		w.Flush()
	}
	return nil
}

func newDragCmd() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "drag <page> <dragged-id> <target-id>",
		Short: "Drop a task onto another task or a column",
		Long: `Applies a drag-and-drop gesture as the board would.

The target is a task ID or a column ID (the status name, e.g. in_progress).
Dropping onto another column moves the task; dropping onto a task in the
same column reorders the column.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrag(cmd, flags, models.Page(args[0]), args[1], args[2])
		},
	}

	flags.register(cmd)
	return cmd
}

func runDrag(cmd *cobra.Command, flags commonFlags, page models.Page, draggedID, targetID string) error {
	a, err := openApp(flags.configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := requireIdentity(cmd, flags.identityPath)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	cache, release, err := a.projection(ctx)
	if err != nil {
		return err
	}
	defer release()

	b, err := board.New(page, cache, a.store)
	if err != nil {
		return err
	}
	dispatcher := a.notifier()
	b.OnMove = func(ctx context.Context, task models.Task, to models.Status) {
		from := task.Status
		task.Status = to
		task.Page = to.Page()
		dispatcher.Publish(ctx, notify.TaskMovedEvent(task, from, user))
	}

	if !b.DragStart(draggedID) {
		return fmt.Errorf("task %s not found", draggedID)
	}
	intent, err := b.DragEnd(ctx, draggedID, targetID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch intent.Kind {
	case board.IntentMove:
		fmt.Fprintf(out, "Moved %s to %s\n", intent.TaskID, intent.Status)
	case board.IntentReorder:
		fmt.Fprintf(out, "Reordered %d tasks\n", len(intent.Orders))
	default:
		fmt.Fprintln(out, "Nothing to do.")
	}
	return nil
}
