// Package cli implements the rigd command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/radio-control/rigd/internal/buildinfo"
)

func Execute() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "rigd",
		Short:        "rigd: HTTP control service for hamlib rigctl transceivers",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default $RIGD_CONFIG)")

	cmd.AddCommand(serveCmd(&configPath), execCmd(&configPath), versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
		},
	}
}
