package matterlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/matterlog/internal/logsink"
	"github.com/jpalmerr/matterlog/internal/poller"
	"github.com/jpalmerr/matterlog/internal/server"
	"github.com/jpalmerr/matterlog/internal/store"
	"github.com/jpalmerr/matterlog/internal/telemetry"
	"github.com/jpalmerr/matterlog/internal/worker"
)

const (
	defaultSaveRoot        = "./logs"
	defaultPollingInterval = 5 * time.Second
)

// Matterlog supervises one polling worker per configured channel.
//
// Matterlog polls each channel's bridge endpoint for new messages and
// appends them to per-day log files below the save root. It is created
// using [New] with functional options and started with [Matterlog.Start].
//
// The typical lifecycle is:
//
//	ml, err := matterlog.New(matterlog.WithChannel(ch))
//	if err != nil {
//	    slog.Error("failed to create matterlog", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	ml.Start(ctx) // blocks until context cancelled
//
// The caller controls the lifecycle via the context. Cancel the context to
// trigger graceful shutdown of every channel.
type Matterlog struct {
	channels         []Channel
	saveRoot         string
	pollingInterval  time.Duration
	statusAddr       string
	logger           *slog.Logger
	echo             io.Writer
	registry         *prometheus.Registry
	metrics          *telemetry.Metrics
	messageCallbacks []func(Message)

	runMu   sync.Mutex
	running map[string]bool
}

// New creates a new [Matterlog] instance with the given options.
//
// At least one channel must be configured via [WithChannel] or [WithChannels],
// and channel names must be unique. Other options have sensible defaults:
//   - Save root: ./logs
//   - Polling interval: 5 seconds
//   - Status API: disabled
//
// Example:
//
//	ml, err := matterlog.New(
//	    matterlog.WithChannel(ch),
//	    matterlog.WithSaveRoot("/var/log/matterlog"),
//	    matterlog.WithStatusAddr(":8080"),
//	)
func New(opts ...Option) (*Matterlog, error) {
	cfg := &mlConfig{
		channels:        []Channel{},
		saveRoot:        defaultSaveRoot,
		pollingInterval: defaultPollingInterval,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.channels) == 0 {
		return nil, errors.New("at least one channel is required")
	}

	// channels sharing a name would share a log subtree
	seen := make(map[string]bool, len(cfg.channels))
	for _, ch := range cfg.channels {
		if seen[ch.name] {
			return nil, fmt.Errorf("duplicate channel name: %q", ch.name)
		}
		seen[ch.name] = true
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	echo := cfg.echo
	if echo == nil {
		echo = io.Discard
	}
	registry := cfg.registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	return &Matterlog{
		channels:         cfg.channels,
		saveRoot:         cfg.saveRoot,
		pollingInterval:  cfg.pollingInterval,
		statusAddr:       cfg.statusAddr,
		logger:           logger,
		echo:             echo,
		registry:         registry,
		metrics:          telemetry.NewMetrics(registry),
		messageCallbacks: cfg.messageCallbacks,
	}, nil
}

// Start begins polling every channel and writing its messages.
//
// Start is a blocking call that runs until the provided context is cancelled.
// During execution:
//
//   - Each channel is polled by its own worker, independently of the others
//   - Messages are appended to <save root>/<channel>/<YYYY>/<MM>/<DD>.txt
//   - Failed polls are logged and retried with exponential backoff
//   - The status API is served if [WithStatusAddr] was given
//
// On cancellation, Start waits until every worker has finished the message
// it is writing and stopped, then returns nil. Returns an error if a worker
// cannot be created or the status API fails to bind.
func (m *Matterlog) Start(ctx context.Context) error {
	m.logger.Info("matterlog starting", "channel_count", len(m.channels), "save_path", m.saveRoot)
	m.logger.Info("polling configured", "interval", m.pollingInterval.String())

	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	statusStore := store.NewMemoryStore()
	sink := logsink.New(m.saveRoot)

	client := poller.NewClient()
	defer client.Close()

	workers := make([]*worker.Worker, 0, len(m.channels))
	for _, ch := range m.channels {
		w, err := worker.New(worker.Config{
			Channel: ch.name,
			Source: poller.Config{
				BaseURL:   ch.baseURL,
				Token:     ch.token,
				UserAgent: ch.userAgent,
				Timeout:   ch.timeout,
				Interval:  m.intervalFor(ch),
				Client:    client,
			},
			Sink:      sink,
			Logger:    m.logger,
			Echo:      m.echo,
			Metrics:   m.metrics,
			OnMessage: m.dispatchMessage,
			OnState: func(s worker.Status) {
				statusStore.Update(workerStatusToStoreStatus(s))
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create worker: %w", err)
		}
		workers = append(workers, w)
	}

	var httpServer *server.Server
	if m.statusAddr != "" {
		httpServer = server.NewServer(statusStore, m.statusAddr, m.registry, m.logger)
		if err := httpServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
	}

	var wg sync.WaitGroup
	for i, w := range workers {
		name := m.channels[i].name
		m.setRunning(name, true)
		wg.Add(1)
		go func(w *worker.Worker) {
			defer wg.Done()
			defer m.setRunning(name, false)
			_ = w.Run(ctx)
		}(w)
	}

	<-ctx.Done()
	m.logger.Info("interrupted, stopping channels")

	wg.Wait()
	if httpServer != nil {
		httpServer.Wait()
	}
	m.logger.Info("matterlog stopped")
	return nil
}

func (m *Matterlog) setRunning(name string, on bool) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running == nil {
		m.running = make(map[string]bool)
	}
	if on {
		m.running[name] = true
	} else {
		delete(m.running, name)
	}
}

// Running returns the sorted names of channels whose worker has started and
// not yet stopped. It is empty before [Matterlog.Start] and after it returns.
func (m *Matterlog) Running() []string {
	m.runMu.Lock()
	names := make([]string, 0, len(m.running))
	for name := range m.running {
		names = append(names, name)
	}
	m.runMu.Unlock()

	slices.Sort(names)
	return names
}

// intervalFor returns the idle delay for ch.
func (m *Matterlog) intervalFor(ch Channel) time.Duration {
	if ch.interval > 0 {
		return ch.interval
	}
	return m.pollingInterval
}

// dispatchMessage fans a written message out to the registered callbacks.
func (m *Matterlog) dispatchMessage(wm worker.Message) {
	if len(m.messageCallbacks) == 0 {
		return
	}
	msg := Message{
		Channel:  wm.Channel,
		Instant:  wm.Instant,
		Username: wm.Username,
		Text:     wm.Text,
	}
	for _, cb := range m.messageCallbacks {
		invokeCallbackSafe(cb, msg, m.logger)
	}
}

// Channels returns a copy of the configured channels.
//
// The returned slice is a copy; modifying it does not affect the Matterlog.
func (m *Matterlog) Channels() []Channel {
	cp := make([]Channel, len(m.channels))
	copy(cp, m.channels)
	return cp
}

// SaveRoot returns the directory below which log files are written.
func (m *Matterlog) SaveRoot() string {
	return m.saveRoot
}

// PollingInterval returns the global idle delay between successful polls.
func (m *Matterlog) PollingInterval() time.Duration {
	return m.pollingInterval
}

// StatusAddr returns the configured status API address, or "" if disabled.
func (m *Matterlog) StatusAddr() string {
	return m.statusAddr
}

// workerStatusToStoreStatus converts a worker snapshot to its stored form.
func workerStatusToStoreStatus(s worker.Status) store.ChannelStatus {
	out := store.ChannelStatus{
		Name:            s.Name,
		URL:             s.URL,
		State:           string(s.State),
		MessagesWritten: s.MessagesWritten,
		Dropped:         s.Dropped,
		FetchFailures:   s.FetchFailures,
	}
	if !s.LastMessageAt.IsZero() {
		t := s.LastMessageAt
		out.LastMessageAt = &t
	}
	if !s.LastPollAt.IsZero() {
		t := s.LastPollAt
		out.LastPollAt = &t
	}
	if s.LastError != "" {
		e := s.LastError
		out.Error = &e
	}
	return out
}

// invokeCallbackSafe calls a message callback with panic recovery.
// Panics are logged with a correlation ID but do not propagate.
func invokeCallbackSafe(cb func(Message), msg Message, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("message callback panicked",
				"panic", r,
				"channel", msg.Channel,
				"correlation_id", uuid.New().String(),
			)
		}
	}()
	cb(msg)
}
