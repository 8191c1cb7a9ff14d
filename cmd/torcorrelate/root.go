package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for torcorrelate.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "torcorrelate",
		Short: "Traffic metadata correlation for Tor investigations",
		Long: `torcorrelate correlates timing and volume metadata of traffic observed entering
and leaving the Tor network. It pairs entry and exit observations, scores each
pair with a configurable weight profile, clusters pairs that share a guard
relay and checks every hypothesis against a relay directory snapshot.

Only metadata is processed. Observations never carry payload content.

Results are stored in a local case database so that runs can be listed,
compared and served over HTTP.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .torcorrelate in current or home directory)")
	cmd.PersistentFlags().String("db-dir", "",
		"Case database directory (default: XDG data directory)")

	// Add subcommands
	cmd.AddCommand(NewAnalyzeCmd())
	cmd.AddCommand(NewTopologyCmd())
	cmd.AddCommand(NewCircuitCmd())
	cmd.AddCommand(NewProfilesCmd())
	cmd.AddCommand(NewStatsCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
