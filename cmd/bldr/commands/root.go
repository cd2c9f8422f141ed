// Package commands implements the bldr CLI commands using cobra.
package commands

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time
	Version = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "bldr",
	Short: "Task and profile driven build runner",
	Long: `Bldr builds the project in the current directory.

Tasks are ordered lists of calls (exec, sleep, service, ...). Profiles
compose tasks and may import the tasks of other profiles before or after
their own. Configure both in .bldr.yml and run 'bldr build <profile>'.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var failed *buildFailedError
		if !errors.As(err, &failed) {
			printError(rootCmd.ErrOrStderr(), err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Project config file (default: discovered in --dir)")
	rootCmd.PersistentFlags().StringP("dir", "d", "", "Project directory (default: current directory)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}
