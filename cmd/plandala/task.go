package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/plandala/internal/models"
	"github.com/zulandar/plandala/internal/notify"
	"github.com/zulandar/plandala/internal/store"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Task management commands",
	}

	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskCreateCmd())
	cmd.AddCommand(newTaskDeleteCmd())
	return cmd
}

func newTaskListCmd() *cobra.Command {
	var (
		flags  commonFlags
		page   string
		status string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTaskList(cmd, flags.configPath, models.Page(page), models.Status(status))
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&page, "page", "", "filter by page (kanban, testing, done)")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

func runTaskList(cmd *cobra.Command, configPath string, page models.Page, status models.Status) error {
	if page != "" && !page.Valid() {
		return fmt.Errorf("unknown page %q", page)
	}
	if status != "" && !status.Valid() {
		return fmt.Errorf("unknown status %q", status)
	}

	a, err := openApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	tasks, err := a.store.ListTasks(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPAGE\tASSIGNEE\tCOMMENTS")
	n := 0
	for _, t := range tasks {
		if (page != "" && t.Page != page) || (status != "" && t.Status != status) {
			continue
		}
		assignee := "-"
		if t.AssignedTo != nil {
			assignee = *t.AssignedTo
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			t.ID, truncate(t.Title, 40), t.Status, t.Page, assignee, t.Metadata.CommentCount)
		n++
	}
	w.Flush()
	if n == 0 {
		fmt.Fprintln(out, "No tasks found.")
	}
	return nil
}

func newTaskCreateCmd() *cobra.Command {
	var (
		flags       commonFlags
		title       string
		description string
		status      string
		assign      string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new task",
		RunE: func(cmd *cobra.Command, args []string) error {
			nt := store.NewTask{
				Title:       title,
				Description: description,
				Status:      models.Status(status),
			}
			if assign != "" {
				nt.AssignedTo = &assign
			}
			return runTaskCreate(cmd, flags, nt)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&title, "title", "", "task title (required)")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().StringVar(&status, "status", string(models.StatusNotStarted), "initial status")
	cmd.Flags().StringVar(&assign, "assign", "", "assignee")
	cmd.MarkFlagRequired("title")
	return cmd
}

func runTaskCreate(cmd *cobra.Command, flags commonFlags, nt store.NewTask) error {
	a, err := openApp(flags.configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := requireIdentity(cmd, flags.identityPath)
	if err != nil {
		return err
	}
	nt.CreatedBy = user

	ctx := cmd.Context()
	id, err := a.store.CreateTask(ctx, nt)
	if err != nil {
		return err
	}
	if task, err := a.store.GetTask(ctx, id); err == nil {
		a.notifier().Publish(ctx, notify.TaskCreatedEvent(*task, user))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created task %s\n", id)
	return nil
}

func newTaskDeleteCmd() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Long:  "Deletes a task. Its comments are kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTaskDelete(cmd, flags, args[0])
		},
	}

	flags.register(cmd)
	return cmd
}

func runTaskDelete(cmd *cobra.Command, flags commonFlags, id string) error {
	a, err := openApp(flags.configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := requireIdentity(cmd, flags.identityPath); err != nil {
		return err
	}
	if err := a.store.DeleteTask(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s\n", id)
	return nil
}
