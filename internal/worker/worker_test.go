package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/matterlog/internal/logsink"
	"github.com/jpalmerr/matterlog/internal/poller"
	"github.com/jpalmerr/matterlog/internal/telemetry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// lockedBuffer collects echo output written from the worker goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// bridge serves the given bodies in order, then empty arrays.
func bridge(t *testing.T, bodies ...string) *httptest.Server {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/messages" {
			http.NotFound(w, r)
			return
		}
		i := int(calls.Add(1)) - 1
		if i < len(bodies) {
			if bodies[i] == "503" {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(bodies[i]))
			return
		}
		_, _ = w.Write([]byte("[]"))
	}))
	t.Cleanup(server.Close)
	return server
}

func newWorker(t *testing.T, cfg Config) *Worker {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = testLogger()
	}
	if cfg.Source.Interval == 0 {
		cfg.Source.Interval = 10 * time.Millisecond
	}
	if cfg.Source.RetryInitial == 0 {
		cfg.Source.RetryInitial = 10 * time.Millisecond
		cfg.Source.RetryMax = 20 * time.Millisecond
	}
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return w
}

// runUntil runs w until cond holds, then cancels and waits for Run to return.
func runUntil(t *testing.T, w *Worker, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			cancel()
			<-done
			t.Fatalf("condition not met before timeout; status = %+v", w.Status())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestNew_Validation(t *testing.T) {
	sink := logsink.New(t.TempDir())

	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"missing sink", Config{Channel: "general", Source: poller.Config{BaseURL: "http://localhost"}}, nil},
		{"path separator", Config{Channel: "a/b", Sink: sink, Source: poller.Config{BaseURL: "http://localhost"}}, logsink.ErrInvalidChannel},
		{"dot dot", Config{Channel: "..", Sink: sink, Source: poller.Config{BaseURL: "http://localhost"}}, logsink.ErrInvalidChannel},
		{"bad url", Config{Channel: "general", Sink: sink, Source: poller.Config{BaseURL: "localhost"}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if err == nil {
				t.Fatal("New() expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWorker_WritesMultiLineMessage(t *testing.T) {
	root := t.TempDir()
	server := bridge(t, `[{"username":"alice","text":"hello\nworld","timestamp":"2025-09-27T11:58:59.936761682-04:00"}]`)

	echo := &lockedBuffer{}
	var got []Message
	var mu sync.Mutex

	w := newWorker(t, Config{
		Channel: "general",
		Source:  poller.Config{BaseURL: server.URL + "/"},
		Sink:    logsink.New(root),
		Echo:    echo,
		OnMessage: func(m Message) {
			mu.Lock()
			got = append(got, m)
			mu.Unlock()
		},
	})

	runUntil(t, w, func() bool { return w.Status().MessagesWritten == 1 })

	data, err := os.ReadFile(filepath.Join(root, "general", "2025", "09", "27.txt"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	want := "2025-09-27T15:58:59.936761+00:00\talice\thello\n" +
		"2025-09-27T15:58:59.936761+00:00\talice\tworld\n"
	if string(data) != want {
		t.Errorf("log content =\n%q\nwant\n%q", data, want)
	}

	wantEcho := "2025-09-27T15:58:59.936761+00:00 #general <alice>: hello\nworld\n"
	if echo.String() != wantEcho {
		t.Errorf("echo = %q, want %q", echo.String(), wantEcho)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("OnMessage called %d times, want 1", len(got))
	}
	if got[0].Channel != "general" || got[0].Username != "alice" || got[0].Instant.Location() != time.UTC {
		t.Errorf("OnMessage got %+v", got[0])
	}
}

func TestWorker_PreservesOrderAcrossDays(t *testing.T) {
	root := t.TempDir()
	server := bridge(t,
		`[{"username":"a","text":"one","timestamp":"2025-09-27T23:59:59.000001+00:00"},
		  {"username":"b","text":"two","timestamp":"2025-09-27T20:00:00-04:00"}]`,
		`[{"username":"c","text":"three","timestamp":"2025-09-27T23:59:59.5+00:00"}]`,
	)

	w := newWorker(t, Config{
		Channel: "general",
		Source:  poller.Config{BaseURL: server.URL},
		Sink:    logsink.New(root),
	})
	runUntil(t, w, func() bool { return w.Status().MessagesWritten == 3 })

	day27, err := os.ReadFile(filepath.Join(root, "general", "2025", "09", "27.txt"))
	if err != nil {
		t.Fatalf("read 27: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(string(day27), "\n"), "\n")
	if len(lines) != 2 || !strings.HasSuffix(lines[0], "\tone") || !strings.HasSuffix(lines[1], "\tthree") {
		t.Errorf("27.txt lines = %q", lines)
	}

	day28, err := os.ReadFile(filepath.Join(root, "general", "2025", "09", "28.txt"))
	if err != nil {
		t.Fatalf("read 28: %v", err)
	}
	if string(day28) != "2025-09-28T00:00:00+00:00\tb\ttwo\n" {
		t.Errorf("28.txt = %q", day28)
	}
}

func TestWorker_DropsMalformedTimestamp(t *testing.T) {
	root := t.TempDir()
	server := bridge(t, `[
		{"username":"a","text":"bad","timestamp":"2025-09-27T11:58:59Z"},
		{"username":"b","text":"good","timestamp":"2025-09-27T11:58:59+00:00"}
	]`)

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	w := newWorker(t, Config{
		Channel: "general",
		Source:  poller.Config{BaseURL: server.URL},
		Sink:    logsink.New(root),
		Metrics: metrics,
	})
	runUntil(t, w, func() bool { return w.Status().MessagesWritten == 1 })

	st := w.Status()
	if st.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", st.Dropped)
	}
	if v := droppedCount(t, reg, "general", telemetry.ReasonTimestamp); v != 1 {
		t.Errorf("dropped{reason=timestamp} = %v, want 1", v)
	}

	data, err := os.ReadFile(filepath.Join(root, "general", "2025", "09", "27.txt"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(data), "bad") {
		t.Errorf("malformed message was written: %q", data)
	}
}

// TestWorker_WriteFailureSkipsMessage verifies that a write error drops the
// message and the worker keeps polling.
func TestWorker_WriteFailureSkipsMessage(t *testing.T) {
	root := t.TempDir()
	// a regular file where the channel directory should be
	if err := os.WriteFile(filepath.Join(root, "general"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	server := bridge(t,
		`[{"username":"a","text":"one","timestamp":"2025-09-27T11:58:59+00:00"}]`,
		`[{"username":"b","text":"two","timestamp":"2025-09-27T11:59:00+00:00"}]`,
	)

	w := newWorker(t, Config{
		Channel: "general",
		Source:  poller.Config{BaseURL: server.URL},
		Sink:    logsink.New(root),
	})
	runUntil(t, w, func() bool { return w.Status().Dropped == 2 })

	st := w.Status()
	if st.MessagesWritten != 0 {
		t.Errorf("MessagesWritten = %d, want 0", st.MessagesWritten)
	}
	if !strings.Contains(st.LastError, "create log directory") {
		t.Errorf("LastError = %q, want directory error", st.LastError)
	}
	if st.State != StateStopped {
		t.Errorf("State = %q, want %q", st.State, StateStopped)
	}
}

func TestWorker_BackoffState(t *testing.T) {
	server := bridge(t, "503", "503", `[{"username":"a","text":"x","timestamp":"2025-09-27T11:58:59+00:00"}]`)

	var mu sync.Mutex
	var states []State
	w := newWorker(t, Config{
		Channel: "general",
		Source:  poller.Config{BaseURL: server.URL},
		Sink:    logsink.New(t.TempDir()),
		OnState: func(s Status) {
			mu.Lock()
			defer mu.Unlock()
			if len(states) == 0 || states[len(states)-1] != s.State {
				states = append(states, s.State)
			}
		},
	})
	runUntil(t, w, func() bool { return w.Status().MessagesWritten == 1 })

	st := w.Status()
	if st.FetchFailures != 2 {
		t.Errorf("FetchFailures = %d, want 2", st.FetchFailures)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateStarting, StatePolling, StateBackoff, StatePolling, StateCancelling, StateStopped}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("states = %v, want %v", states, want)
		}
	}
}

func TestWorker_CallbackPanicDoesNotStopWorker(t *testing.T) {
	server := bridge(t,
		`[{"username":"a","text":"one","timestamp":"2025-09-27T11:58:59+00:00"}]`,
		`[{"username":"b","text":"two","timestamp":"2025-09-27T11:59:00+00:00"}]`,
	)

	w := newWorker(t, Config{
		Channel:   "general",
		Source:    poller.Config{BaseURL: server.URL},
		Sink:      logsink.New(t.TempDir()),
		OnMessage: func(Message) { panic("boom") },
	})
	runUntil(t, w, func() bool { return w.Status().MessagesWritten == 2 })

	if d := w.Status().Dropped; d != 0 {
		t.Errorf("Dropped = %d, want 0", d)
	}
}

// TestWorker_CancelDuringHangingPoll verifies that cancellation is prompt
// even while the bridge holds the request open.
func TestWorker_CancelDuringHangingPoll(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	w := newWorker(t, Config{
		Channel: "general",
		Source:  poller.Config{BaseURL: server.URL, Timeout: time.Minute},
		Sink:    logsink.New(t.TempDir()),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	cancel()

	select {
	case <-done:
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("Run() took %v after cancel", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if st := w.Status().State; st != StateStopped {
		t.Errorf("State = %q, want %q", st, StateStopped)
	}
}

// droppedCount reads matterlog_messages_dropped_total for one label pair.
func droppedCount(t *testing.T, reg *prometheus.Registry, channel, reason string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "matterlog_messages_dropped_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["channel"] == channel && labels["reason"] == reason {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
