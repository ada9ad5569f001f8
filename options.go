package matterlog

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// mlConfig holds mutable state during Matterlog construction.
type mlConfig struct {
	channels         []Channel
	saveRoot         string
	pollingInterval  time.Duration
	statusAddr       string
	logger           *slog.Logger
	echo             io.Writer
	registry         *prometheus.Registry
	messageCallbacks []func(Message)
}

// Option is a function that configures a [Matterlog] instance during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
//
// Built-in options: [WithChannel], [WithChannels], [WithSaveRoot],
// [WithPollingInterval], [WithStatusAddr], [WithLogger], [WithEcho],
// [WithRegistry], [WithMessageCallback].
type Option func(*mlConfig) error

// WithChannel adds a single [Channel] to poll.
//
// Can be called multiple times to add multiple channels. At least one
// channel must be configured for [New] to succeed.
//
// Example:
//
//	ml, err := matterlog.New(
//	    matterlog.WithChannel(general),
//	    matterlog.WithChannel(random),
//	)
func WithChannel(c Channel) Option {
	return func(cfg *mlConfig) error {
		cfg.channels = append(cfg.channels, c)
		return nil
	}
}

// WithChannels adds multiple [Channel] values to poll.
//
// Equivalent to calling [WithChannel] multiple times.
func WithChannels(channels ...Channel) Option {
	return func(cfg *mlConfig) error {
		cfg.channels = append(cfg.channels, channels...)
		return nil
	}
}

// WithSaveRoot sets the directory below which per-channel log files are
// written. Defaults to "./logs".
//
// Returns an error if the path is empty.
func WithSaveRoot(dir string) Option {
	return func(cfg *mlConfig) error {
		if dir == "" {
			return errors.New("save root cannot be empty")
		}
		cfg.saveRoot = dir
		return nil
	}
}

// WithPollingInterval sets the idle delay after each successful poll, for
// every channel without its own [WithInterval].
//
// Zero polls again immediately after a response has been handled.
// Defaults to 5 seconds if not specified.
//
// Returns an error if the duration is negative.
func WithPollingInterval(d time.Duration) Option {
	return func(cfg *mlConfig) error {
		if d < 0 {
			return errors.New("polling interval cannot be negative")
		}
		cfg.pollingInterval = d
		return nil
	}
}

// WithStatusAddr enables the HTTP status API on the given TCP address,
// e.g. ":8080" or "127.0.0.1:9090".
//
// The API serves /api/status, /api/sse, /healthz and /metrics. It is
// disabled unless this option is given.
func WithStatusAddr(addr string) Option {
	return func(cfg *mlConfig) error {
		if addr == "" {
			return errors.New("status address cannot be empty")
		}
		cfg.statusAddr = addr
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Matterlog instance.
//
// If not specified, [slog.Default] is used.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
//	ml, err := matterlog.New(
//	    matterlog.WithChannel(ch),
//	    matterlog.WithLogger(logger),
//	)
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *mlConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithEcho sets the writer that receives one status line per logged
// message, in the form "<instant> #<channel> <<username>>: <text>".
//
// Defaults to [io.Discard]. The matterlog command passes os.Stdout.
//
// Returns an error if w is nil.
func WithEcho(w io.Writer) Option {
	return func(cfg *mlConfig) error {
		if w == nil {
			return errors.New("echo writer cannot be nil")
		}
		cfg.echo = w
		return nil
	}
}

// WithRegistry sets the Prometheus registry that matterlog metrics are
// registered with and that /metrics serves.
//
// If not specified, each [Matterlog] uses its own registry.
//
// Returns an error if reg is nil.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(cfg *mlConfig) error {
		if reg == nil {
			return errors.New("registry cannot be nil")
		}
		cfg.registry = reg
		return nil
	}
}

// WithMessageCallback registers a function to be called after every message
// has been appended to its log file.
//
// Multiple callbacks may be registered; they execute in registration order.
//
// IMPORTANT: Callbacks must be non-blocking. Each channel invokes callbacks
// synchronously from its worker goroutine, so a slow callback delays the
// next message of that channel. Callbacks of different channels may run
// concurrently.
//
// Panics within callbacks are recovered and logged; they do not stop the
// channel.
//
// Example:
//
//	ml, err := matterlog.New(
//	    matterlog.WithChannel(general),
//	    matterlog.WithMessageCallback(func(m matterlog.Message) {
//	        if strings.Contains(m.Text, "@oncall") {
//	            notify(m)
//	        }
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithMessageCallback(cb func(Message)) Option {
	return func(cfg *mlConfig) error {
		if cb == nil {
			return nil // no-op for nil callback (safe to call)
		}
		cfg.messageCallbacks = append(cfg.messageCallbacks, cb)
		return nil
	}
}
