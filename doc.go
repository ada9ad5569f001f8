// Package matterlog archives chat messages from one or more bridge HTTP
// APIs into per-day text files.
//
// matterlog is designed as an SDK-first library: the matterlog command is a
// thin wrapper that loads a config file and calls into this package. Each
// configured channel is polled by its own worker, so a slow or failing
// bridge never holds up the others.
//
// # Quick Start
//
// Create channels and start logging with graceful shutdown:
//
//	ch, _ := matterlog.NewChannel("general", "http://localhost:4242/")
//	ml, _ := matterlog.New(matterlog.WithChannel(ch))
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	ml.Start(ctx) // blocks until context is cancelled
//
// # Configuration
//
// matterlog uses the functional options pattern for configuration:
//
//	ml, err := matterlog.New(
//	    matterlog.WithChannels(general, random),
//	    matterlog.WithSaveRoot("/var/log/chat"),
//	    matterlog.WithPollingInterval(2 * time.Second),
//	    matterlog.WithStatusAddr(":8080"),
//	)
//
// Channels can also be configured with options:
//
//	ch, err := matterlog.NewChannel("general", "https://bridge.example.com/",
//	    matterlog.WithToken("s3cret"),
//	    matterlog.WithTimeout(5 * time.Second),
//	)
//
// # Log Layout
//
// Every message is written to <save root>/<channel>/<YYYY>/<MM>/<DD>.txt,
// chosen by the UTC date of the message timestamp. Each line of the message
// text becomes one record:
//
//	2025-09-27T15:58:59.936761+00:00	alice	hello
//
// Messages whose timestamp cannot be parsed, or that cannot be written, are
// logged and skipped. The worker keeps polling.
//
// # Architecture
//
// matterlog consists of several internal packages (under internal/):
//
//   - internal/poller: HTTP client and per-channel message source with backoff
//   - internal/timestamp: Normalization of bridge timestamps to UTC
//   - internal/logsink: Date-partitioned append-only log files
//   - internal/worker: Per-channel ingestion loop and state machine
//   - internal/store: In-memory channel status with pub/sub
//   - internal/server: Status API with Server-Sent Events and /metrics
//   - internal/telemetry: Prometheus metrics and OpenTelemetry tracing
//
// The internal packages are not part of the public API and may change
// without notice.
package matterlog
