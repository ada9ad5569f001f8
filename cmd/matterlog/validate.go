package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/matterlog/config"
)

// validateCmd validates a config file without polling anything.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a matterlog configuration file without polling any channel.

This command parses the YAML or TOML, applies MATTERLOG_* overrides,
expands environment variables, and validates all fields. It's useful for
CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  matterlog validate -c matterlog.toml
  matterlog validate --config /etc/matterlog/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// run the SDK constructors too, so a valid file is one serve accepts
	channels, err := config.BuildChannels(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	statusAddr := cfg.Server.StatusAddr
	if statusAddr == "" {
		statusAddr = "disabled"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Save path:   %s\n", cfg.Server.SavePath)
	fmt.Fprintf(out, "  Sleep time:  %s\n", cfg.Server.SleepTimeOrDefault())
	fmt.Fprintf(out, "  Status API:  %s\n", statusAddr)
	fmt.Fprintf(out, "  Channels:    %d\n", len(channels))
	for _, ch := range channels {
		fmt.Fprintf(out, "    #%s  %s\n", ch.Name(), ch.MessagesURL())
	}

	return nil
}
