// Package cli implements the shardctl command-line interface using Cobra,
// one file per subcommand sharing a single rootCmd.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "shardctl",
	Short: "shardctl — supervise sharded training jobs",
	Long: `shardctl supervises long-running sharded-computation jobs: a
coordinator process fans out to N worker processes, each durably
checkpointing progress so a crash resumes exactly where it left off.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
