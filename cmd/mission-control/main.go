package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mission-control",
	Short: "Mission Control - live dashboard for markdown work efforts",
	Long: `Mission Control watches the work-effort trees of your repositories,
parses work efforts and tickets out of their markdown files, and streams
the aggregated state to connected browsers in real time.

It also manages the durable ID counters for work efforts, tickets, and
checkpoints, including integrity checking and filesystem reconciliation.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Mission Control version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(counterCmd)
}
