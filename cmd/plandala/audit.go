package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/plandala/internal/audit"
)

func newAuditCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report comment counter drift",
		Long:  "Compares every task's comment counter with its actual comments. Nothing is corrected.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "plandala.yaml", "path to Plandala config file")
	return cmd
}

func runAudit(cmd *cobra.Command, configPath string) error {
	a, err := openApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	drift, err := audit.Check(cmd.Context(), a.db)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(drift) == 0 {
		fmt.Fprintln(out, "No comment counter drift.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tTITLE\tRECORDED\tACTUAL")
	for _, d := range drift {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", d.TaskID, truncate(d.Title, 40), d.Recorded, d.Actual)
	}
	w.Flush()
	return nil
}
