package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/zulandar/plandala/internal/upload"
)

func newUploadCmd() *cobra.Command {
	var (
		flags  commonFlags
		folder string
		taskID string
	)

	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload images to the blob store",
		Long: `Validates, compresses and uploads images one at a time.

A file that fails is reported and the rest continue. The command fails only
when every file fails. With --task, the uploaded URLs are attached to that
task.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, flags, args, folder, taskID)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&folder, "folder", "tasks", "destination folder in the bucket")
	cmd.Flags().StringVar(&taskID, "task", "", "attach uploaded images to this task")
	return cmd
}

func runUpload(cmd *cobra.Command, flags commonFlags, paths []string, folder, taskID string) error {
	out := cmd.OutOrStdout()

	files := make([]upload.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		files = append(files, upload.File{Name: filepath.Base(p), Data: data})
	}

	a, err := openApp(flags.configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := requireIdentity(cmd, flags.identityPath); err != nil {
		return err
	}

	disk, err := a.disk()
	if err != nil {
		return err
	}

	last := -1.0
	res, err := a.orchestrator(disk).Upload(cmd.Context(), files, folder, func(p upload.Progress) {
		overall := math.Floor(p.Overall)
		if overall == last {
			return
		}
		last = overall
		fmt.Fprintf(out, "Uploading %s... %3.0f%%\n", p.FileName, overall)
	})
	if err != nil {
		var be *upload.BatchError
		if errors.As(err, &be) {
			for _, f := range be.Failures {
				fmt.Fprintf(out, "  failed %s: %s\n", f.Name, f.Message())
			}
		}
		return err
	}

	for _, u := range res.URLs {
		fmt.Fprintf(out, "  %s\n", u)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(out, "  failed %s: %s\n", f.Name, f.Message())
	}
	if msg := res.Partial(); msg != "" {
		fmt.Fprintln(out, msg)
	}

	if taskID != "" {
		if err := a.store.AddTaskImages(cmd.Context(), taskID, res.URLs); err != nil {
			return err
		}
		fmt.Fprintf(out, "Attached %d image(s) to task %s\n", len(res.URLs), taskID)
	}
	return nil
}
