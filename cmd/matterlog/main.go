// Package main is the entry point for the matterlog CLI.
//
// matterlog can be run either as a library (SDK) or as a standalone binary
// with a YAML or TOML configuration file. This CLI provides the standalone
// binary approach.
//
// Usage:
//
//	matterlog serve -c matterlog.toml    # Start logging every channel
//	matterlog validate -c matterlog.toml # Validate configuration
//	matterlog version                    # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "matterlog",
	Short: "Log chat bridge channels to per-day files",
	Long: `matterlog polls chat bridge HTTP APIs and appends every message to
a per-channel, per-day log file.

Quick start:
  1. Create a config file (matterlog.toml)
  2. Run: matterlog serve -c matterlog.toml
  3. Read ./logs/<channel>/<YYYY>/<MM>/<DD>.txt

Example config:
  [server]
  save_path = "./logs"
  sleep_time = 5

  [channel.general]
  base_url = "http://localhost:4242"`,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this matterlog binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "matterlog %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
