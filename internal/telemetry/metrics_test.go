package telemetry

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.MessageWritten("general")
	m.MessageWritten("general")
	m.MessageDropped("general", ReasonTimestamp)
	m.FetchFailed("random")

	if got := testutil.ToFloat64(m.messagesWritten.WithLabelValues("general")); got != 2 {
		t.Errorf("messages written = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.messagesDropped.WithLabelValues("general", ReasonTimestamp)); got != 1 {
		t.Errorf("messages dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.fetchFailures.WithLabelValues("random")); got != 1 {
		t.Errorf("fetch failures = %v, want 1", got)
	}
}

func TestMetrics_SetState(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SetState("general", "polling")
	m.SetState("general", "backoff")

	if got := testutil.ToFloat64(m.workerState.WithLabelValues("general", "backoff")); got != 1 {
		t.Errorf("backoff gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.workerState.WithLabelValues("general", "polling")); got != 0 {
		t.Errorf("polling gauge = %v, want 0", got)
	}
}

func TestMetrics_ObserveFetch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveFetch("general", 150*time.Millisecond)

	if n := testutil.CollectAndCount(m.fetchDuration); n != 1 {
		t.Errorf("histogram series = %d, want 1", n)
	}
}

// TestMetrics_NilSafe verifies a nil *Metrics can be used without panicking.
func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	m.MessageWritten("general")
	m.MessageDropped("general", ReasonWrite)
	m.FetchFailed("general")
	m.ObserveFetch("general", time.Second)
	m.SetState("general", "stopped")
}

func TestInitTracing_DisabledWithoutEndpoint(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	shutdown, err := InitTracing(context.Background(), "", "matterlog", "test", logger)
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	if shutdown == nil {
		t.Fatal("InitTracing() returned nil shutdown func")
	}
	shutdown()
}
