package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/plandala/internal/identity"
)

func newIdentityCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage the local display name",
		Long:  "Comments and tasks are attributed to the display name saved on this machine.",
	}
	cmd.PersistentFlags().StringVar(&path, "identity", "", "path to the identity file (default: user config dir)")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the saved display name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := identity.New(path)
			if err != nil {
				return err
			}
			name, err := svc.Name()
			if err != nil {
				return err
			}
			if name == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No display name set.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <name>",
		Short: "Save the display name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := identity.New(path)
			if err != nil {
				return err
			}
			name, err := svc.Save(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Display name set to %q\n", name)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget the display name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := identity.New(path)
			if err != nil {
				return err
			}
			if err := svc.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Display name cleared.")
			return nil
		},
	})
	return cmd
}
