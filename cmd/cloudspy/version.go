package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lvonguyen/cloudspy/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "CloudSpy %s\n", version.String())
		},
	}
}
