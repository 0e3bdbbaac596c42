// Rotortool is an analysis toolkit for drone flight-controller firmware.
//
// It identifies the container format of a firmware image, parses the
// header, and extracts every section to its decoded form alongside a
// YAML manifest describing what was recovered and how far each section
// could be verified. Images are never modified; all work is file to
// file.
//
// Usage:
//
//	rotortool [command] [flags]
//
// See 'rotortool --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/rotortool/internal/logging"
	"github.com/muurk/rotortool/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rotortool",
	Short: "Drone firmware package analysis toolkit",
	Long: `A toolkit for analyzing drone flight-controller firmware packages.

Detects the container format of a firmware image (xV4 or IMaH v1),
parses its header, and extracts every section in decoded form together
with a manifest recording offsets, coding, and verification results.

Images with unknown keys are still extracted: affected sections are
written in stored form and marked verification-skipped.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.InitializeFromEnv()
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rotortool %s (commit: %s)\n", version.Version, version.Commit)
	},
}
