package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/matterlog"
)

func main() {
	// start mock bridge (see mock_bridge.go)
	go StartMockBridge(":4242")
	time.Sleep(100 * time.Millisecond)

	general, err := matterlog.NewChannel("general", "http://localhost:4242/general")
	if err != nil {
		slog.Error("failed to create channel", "error", err)
		os.Exit(1)
	}

	// a quieter channel with its own polling interval (overrides global 2s)
	random, err := matterlog.NewChannel("random", "http://localhost:4242/random",
		matterlog.WithInterval(10*time.Second),
	)
	if err != nil {
		slog.Error("failed to create channel", "error", err)
		os.Exit(1)
	}

	ml, err := matterlog.New(
		matterlog.WithChannels(general, random),
		matterlog.WithSaveRoot("./example-logs"),
		matterlog.WithPollingInterval(2*time.Second),
		matterlog.WithStatusAddr(":8080"),
		matterlog.WithEcho(os.Stdout),
		matterlog.WithMessageCallback(func(m matterlog.Message) {
			if m.Username == "alice" {
				slog.Info("alice spoke", "channel", m.Channel)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create matterlog", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  matterlog demo")
	fmt.Println()
	fmt.Println("  Logs:    ./example-logs/<channel>/<YYYY>/<MM>/<DD>.txt")
	fmt.Println("  Status:  http://localhost:8080/api/status")
	fmt.Println("  Metrics: http://localhost:8080/metrics")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ml.Start(ctx); err != nil {
		slog.Error("matterlog error", "error", err)
		os.Exit(1)
	}
}
