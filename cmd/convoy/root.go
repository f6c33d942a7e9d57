package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "convoy",
	Short: "Distributed multi-agent task orchestrator",
	Long: `Convoy orchestrates workflows of role-tagged tasks across agents.

It lowers a workflow DAG into tasks, dispatches each task through a
transport (in-process or a remote execution node), tracks every task
through a validated lifecycle, gates dispatches through role, device, and
repo policy checks, and streams progress to observers.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Failures print a machine-readable error
// string on stderr and exit non-zero.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}
