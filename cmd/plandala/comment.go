package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/plandala/internal/store"
)

func newCommentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comment",
		Short: "Comment commands",
	}

	cmd.AddCommand(newCommentAddCmd())
	cmd.AddCommand(newCommentDeleteCmd())
	return cmd
}

func newCommentAddCmd() *cobra.Command {
	var (
		flags  commonFlags
		text   string
		images []string
	)

	cmd := &cobra.Command{
		Use:   "add <task-id>",
		Short: "Comment on a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommentAdd(cmd, flags, store.NewComment{
				TaskID:    args[0],
				Text:      text,
				ImageURLs: images,
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&text, "text", "", "comment text")
	cmd.Flags().StringSliceVar(&images, "image", nil, "image URL to attach (repeatable)")
	return cmd
}

func runCommentAdd(cmd *cobra.Command, flags commonFlags, nc store.NewComment) error {
	a, err := openApp(flags.configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := requireIdentity(cmd, flags.identityPath)
	if err != nil {
		return err
	}
	nc.UserName = user

	id, err := a.store.CreateComment(cmd.Context(), nc)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added comment %s to task %s\n", id, nc.TaskID)
	return nil
}

func newCommentDeleteCmd() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "delete <task-id> <comment-id>",
		Short: "Delete a comment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommentDelete(cmd, flags, args[0], args[1])
		},
	}

	flags.register(cmd)
	return cmd
}

func runCommentDelete(cmd *cobra.Command, flags commonFlags, taskID, commentID string) error {
	a, err := openApp(flags.configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := requireIdentity(cmd, flags.identityPath); err != nil {
		return err
	}
	if err := a.store.DeleteComment(cmd.Context(), commentID, taskID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted comment %s\n", commentID)
	return nil
}
