// Package commands implements the hivemind CLI commands using cobra.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time
	Version = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "hivemind",
	Short: "Per-tick creep colony controller",
	Long: `Hivemind drives a colony of worker creeps one tick at a time.

Each tick it reconciles the task list against the room, spawns workers,
moves every creep through harvest, fill and upgrade work, and forgets
creeps that no longer exist. Configure it in hivemind.yaml.`,
	Version: Version,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "Also write logs to stderr")
}
