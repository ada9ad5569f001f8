package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/matterlog"
	"github.com/jpalmerr/matterlog/config"
	"github.com/jpalmerr/matterlog/internal/telemetry"
)

const (
	shutdownTimeout = 10 * time.Second
	serviceName     = "matterlog"
)

// newLogger builds the CLI logger from the --log-level and --log-format flags.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info", "":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (expected debug, info, warn or error)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (expected text or json)", format)
	}
}

// loadEnvFile loads path into the environment. A missing file is ignored;
// variables already set are not overwritten.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// serveCmd starts logging every configured channel.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start logging every configured channel",
	Long: `Start polling every configured channel and writing its messages.

The process will:
  - Load configuration from the specified YAML or TOML file
  - Poll every channel's bridge concurrently
  - Append messages to <save_path>/<channel>/<YYYY>/<MM>/<DD>.txt
  - Echo each written message to stdout
  - Serve the status API if server.status_addr is set

It runs until interrupted (Ctrl+C) or it receives SIGTERM, then finishes
the messages in flight and exits with status 0.

Tracing is exported over OTLP/gRPC when OTEL_EXPORTER_OTLP_ENDPOINT is set.

Example:
  matterlog serve -c matterlog.toml
  matterlog serve --config /etc/matterlog/config.yaml --log-format json`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	serveCmd.Flags().String("env-file", ".env", "dotenv file loaded before the config (ignored if missing)")
	serveCmd.Flags().String("log-level", "info", "log level: debug, info, warn or error")
	serveCmd.Flags().String("log-format", "text", "log format: text or json")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	logger, err := newLogger(cmd.ErrOrStderr(), level, format)
	if err != nil {
		return err
	}

	envFile, _ := cmd.Flags().GetString("env-file")
	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"path", configFile,
		"channels", len(cfg.Channels),
	)

	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return fmt.Errorf("failed to build channels: %w", err)
	}
	opts = append(opts,
		matterlog.WithLogger(logger),
		matterlog.WithEcho(cmd.OutOrStdout()),
	)

	ml, err := matterlog.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create matterlog: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), serviceName, version, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer shutdownTracing()

	// blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- ml.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("matterlog error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		logger.Info("interrupted by signal")
		return awaitShutdown(errChan, shutdownTimeout, ml.Running, logger)
	}
}

// awaitShutdown waits for Start to return after the signal. Channels still
// running once timeout elapses are logged and reported as an error so the
// process exits non-zero.
func awaitShutdown(done <-chan error, timeout time.Duration, running func() []string, logger *slog.Logger) error {
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("matterlog error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil
	case <-time.After(timeout):
		stuck := running()
		logger.Error("shutdown timed out",
			"timeout", timeout.String(),
			"running_channels", stuck,
		)
		return fmt.Errorf("shutdown timed out after %s with channels still running: %s",
			timeout, strings.Join(stuck, ", "))
	}
}
