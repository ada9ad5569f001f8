// Package worker runs the ingestion loop for a single channel.
//
// A [Worker] owns one message source. Every message the source yields is
// normalized to UTC, appended to the channel's log partition and echoed as a
// status line. Failures of individual messages are logged, counted and
// skipped; they never stop the worker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/matterlog/internal/logsink"
	"github.com/jpalmerr/matterlog/internal/poller"
	"github.com/jpalmerr/matterlog/internal/telemetry"
	"github.com/jpalmerr/matterlog/internal/timestamp"
)

// State is the lifecycle phase of a worker.
type State string

const (
	StateStarting   State = "starting"
	StatePolling    State = "polling"
	StateBackoff    State = "backoff"
	StateCancelling State = "cancelling"
	StateStopped    State = "stopped"
)

// Message is a message after normalization, as written to the log.
type Message struct {
	Channel  string
	Instant  time.Time
	Username string
	Text     string
}

// Status is a point-in-time snapshot of a worker.
type Status struct {
	Name            string
	URL             string
	State           State
	MessagesWritten int64
	Dropped         int64
	FetchFailures   int64
	LastMessageAt   time.Time
	LastPollAt      time.Time
	LastError       string
}

// Config wires a [Worker] to its collaborators.
type Config struct {
	// Channel is the channel name and the log subtree below the sink root.
	Channel string

	// Source describes the endpoint to poll. Channel, Logger and Hooks are
	// set by the worker.
	Source poller.Config

	// Sink receives the log records. Required.
	Sink *logsink.Sink

	Logger *slog.Logger

	// Echo receives one status line per written message. Nil discards.
	Echo io.Writer

	// Metrics may be nil.
	Metrics *telemetry.Metrics

	// OnMessage is called after a message has been written.
	OnMessage func(Message)

	// OnState receives a snapshot on every status change. It is called with
	// the worker's lock held and must not block.
	OnState func(Status)
}

// Worker polls one channel and writes its messages.
type Worker struct {
	name      string
	source    *poller.Source
	sink      *logsink.Sink
	logger    *slog.Logger
	echo      io.Writer
	metrics   *telemetry.Metrics
	onMessage func(Message)
	onState   func(Status)

	mu     sync.Mutex
	status Status
}

// New validates cfg and creates a [Worker]. The channel name must be usable
// as a directory name.
func New(cfg Config) (*Worker, error) {
	if cfg.Sink == nil {
		return nil, errors.New("worker requires a sink")
	}
	if err := logsink.ValidateChannel(cfg.Channel); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	echo := cfg.Echo
	if echo == nil {
		echo = io.Discard
	}

	w := &Worker{
		name:      cfg.Channel,
		sink:      cfg.Sink,
		logger:    logger,
		echo:      echo,
		metrics:   cfg.Metrics,
		onMessage: cfg.OnMessage,
		onState:   cfg.OnState,
	}

	srcCfg := cfg.Source
	srcCfg.Channel = cfg.Channel
	srcCfg.Logger = logger
	srcCfg.Hooks = poller.Hooks{
		OnSuccess: w.fetchSucceeded,
		OnFailure: w.fetchFailed,
		OnInvalid: w.invalidMessage,
	}
	src, err := poller.New(srcCfg)
	if err != nil {
		return nil, fmt.Errorf("channel %q: %w", cfg.Channel, err)
	}
	w.source = src

	w.status = Status{
		Name:  cfg.Channel,
		URL:   src.URL(),
		State: StateStarting,
	}
	return w, nil
}

// Name returns the channel name.
func (w *Worker) Name() string {
	return w.name
}

// Status returns the current snapshot.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Run polls and writes messages until ctx is cancelled. It always returns
// nil; the worker reaches [StateStopped] before Run returns.
//
// Messages are handled strictly in the order the source yields them. A
// message being written when ctx is cancelled is finished first, so a
// cancelled worker never leaves a partial record behind.
func (w *Worker) Run(ctx context.Context) error {
	runID := uuid.NewString()
	w.metrics.SetState(w.name, string(StateStarting))
	w.setState(StateStarting)
	w.logger.Info("channel starting", "channel", w.name, "url", w.source.URL(), "run_id", runID)

	w.setState(StatePolling)

	messages := make(chan poller.Message)
	sourceDone := make(chan struct{})
	go func() {
		defer close(sourceDone)
		_ = w.source.Run(ctx, messages)
	}()

	for {
		select {
		case msg := <-messages:
			w.handle(ctx, msg)
		case <-ctx.Done():
			w.setState(StateCancelling)
			w.logger.Info("channel stopping", "channel", w.name, "run_id", runID)
			<-sourceDone
			w.setState(StateStopped)
			w.logger.Info("channel stopped", "channel", w.name, "run_id", runID)
			return nil
		}
	}
}

// handle writes a single message. Panics are contained to the message.
func (w *Worker) handle(ctx context.Context, msg poller.Message) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.New().String()
			w.logger.Error("panic while handling message",
				"channel", w.name,
				"correlation_id", correlationID,
				"panic", r,
			)
			w.dropped(telemetry.ReasonPanic, fmt.Errorf("panic (correlation_id=%s)", correlationID))
		}
	}()

	instant, err := timestamp.Normalize(msg.Timestamp)
	if err != nil {
		w.logger.Warn("dropping message with malformed timestamp",
			"channel", w.name,
			"timestamp", msg.Timestamp,
			"error", err,
		)
		w.dropped(telemetry.ReasonTimestamp, err)
		return
	}

	// appends are not cancelled mid-write
	if err := w.sink.Append(context.WithoutCancel(ctx), w.name, instant, msg.Username, msg.Text); err != nil {
		w.logger.Error("failed to write message",
			"channel", w.name,
			"path", w.sink.Path(w.name, instant),
			"error", err,
		)
		w.dropped(telemetry.ReasonWrite, err)
		return
	}

	w.written(instant)
	_, _ = fmt.Fprintf(w.echo, "%s #%s <%s>: %s\n", timestamp.Format(instant), w.name, msg.Username, msg.Text)

	if w.onMessage != nil {
		w.invokeCallbackSafe(Message{
			Channel:  w.name,
			Instant:  instant,
			Username: msg.Username,
			Text:     msg.Text,
		})
	}
}

// invokeCallbackSafe calls OnMessage with panic recovery so a faulty callback
// is not counted as a dropped message.
func (w *Worker) invokeCallbackSafe(m Message) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("message callback panicked",
				"channel", w.name,
				"correlation_id", uuid.New().String(),
				"panic", r,
			)
		}
	}()
	w.onMessage(m)
}

func (w *Worker) fetchSucceeded(_ int, latency time.Duration) {
	w.metrics.ObserveFetch(w.name, latency)
	w.update(func(s *Status) {
		s.LastPollAt = time.Now()
		if s.State == StateBackoff {
			s.State = StatePolling
		}
	})
}

func (w *Worker) fetchFailed(err error, latency time.Duration) {
	w.metrics.ObserveFetch(w.name, latency)
	w.metrics.FetchFailed(w.name)
	w.update(func(s *Status) {
		s.LastPollAt = time.Now()
		s.FetchFailures++
		s.LastError = err.Error()
		if s.State == StatePolling {
			s.State = StateBackoff
		}
	})
}

func (w *Worker) invalidMessage(_ int, err error) {
	w.dropped(telemetry.ReasonDecode, err)
}

func (w *Worker) written(instant time.Time) {
	w.metrics.MessageWritten(w.name)
	w.update(func(s *Status) {
		s.MessagesWritten++
		s.LastMessageAt = instant
	})
}

func (w *Worker) dropped(reason string, err error) {
	w.metrics.MessageDropped(w.name, reason)
	w.update(func(s *Status) {
		s.Dropped++
		s.LastError = err.Error()
	})
}

func (w *Worker) setState(state State) {
	w.update(func(s *Status) { s.State = state })
}

// update applies fn to the status, records the state gauge and publishes the
// resulting snapshot.
func (w *Worker) update(fn func(*Status)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	prev := w.status.State
	fn(&w.status)
	if w.status.State != prev {
		w.metrics.SetState(w.name, string(w.status.State))
	}
	if w.onState != nil {
		w.onState(w.status)
	}
}
