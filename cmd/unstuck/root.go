package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "unstuck",
	Short: "ADHD-friendly task decomposition service",
	Long: `Unstuck is the backend for an ADHD-oriented task manager.

It stores tasks and their micro-steps, breaks tasks into small timed
steps through a generative-text service, and re-ranks task priorities
by deadline and estimated effort. When the model's output cannot be
used, decomposition degrades to a deterministic step sequence so the
user is never left blocked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
