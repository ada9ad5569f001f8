// Package telemetry provides Prometheus metrics and OpenTelemetry tracing
// setup for matterlog.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used as the "reason" label of messages_dropped_total.
const (
	ReasonTimestamp = "timestamp"
	ReasonDecode    = "decode"
	ReasonWrite     = "write"
	ReasonPanic     = "panic"
)

// States reported by the worker_state gauge.
var workerStates = []string{"starting", "polling", "backoff", "cancelling", "stopped"}

// Metrics holds the per-channel collectors.
//
// All methods are safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	messagesWritten *prometheus.CounterVec
	messagesDropped *prometheus.CounterVec
	fetchFailures   *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	workerState     *prometheus.GaugeVec
}

// NewMetrics registers matterlog collectors with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics
// handler, or a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		messagesWritten: f.NewCounterVec(prometheus.CounterOpts{
			Name: "matterlog_messages_written_total",
			Help: "Messages appended to a channel log file",
		}, []string{"channel"}),
		messagesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "matterlog_messages_dropped_total",
			Help: "Messages skipped, by reason (timestamp, decode, write, panic)",
		}, []string{"channel", "reason"}),
		fetchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "matterlog_fetch_failures_total",
			Help: "Failed requests to a bridge messages endpoint",
		}, []string{"channel"}),
		fetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "matterlog_fetch_duration_seconds",
			Help:    "Duration of requests to a bridge messages endpoint",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),
		workerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "matterlog_worker_state",
			Help: "Current worker state per channel (1 for the active state)",
		}, []string{"channel", "state"}),
	}
}

// MessageWritten counts one appended message.
func (m *Metrics) MessageWritten(channel string) {
	if m == nil {
		return
	}
	m.messagesWritten.WithLabelValues(channel).Inc()
}

// MessageDropped counts one skipped message.
func (m *Metrics) MessageDropped(channel, reason string) {
	if m == nil {
		return
	}
	m.messagesDropped.WithLabelValues(channel, reason).Inc()
}

// FetchFailed counts one failed request.
func (m *Metrics) FetchFailed(channel string) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(channel).Inc()
}

// ObserveFetch records the latency of one request.
func (m *Metrics) ObserveFetch(channel string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(channel).Observe(d.Seconds())
}

// SetState marks state as the active worker state for channel.
func (m *Metrics) SetState(channel, state string) {
	if m == nil {
		return
	}
	for _, s := range workerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.workerState.WithLabelValues(channel, s).Set(v)
	}
}
