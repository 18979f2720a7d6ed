package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/satriahrh/arunika/speakerid/domain/entities"
	"github.com/satriahrh/arunika/speakerid/internal/recognition"
)

const namespace = "speakerid"

// Outcome result labels
const (
	ResultSuccess = "success"
	ResultUnknown = "unknown"
	ResultFailure = "failure"
	ResultTimeout = "timeout"
)

// Metrics contains all Prometheus metrics for the identification service
type Metrics struct {
	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionsClosed  *prometheus.CounterVec
	BytesReceived   prometheus.Counter

	// Pipeline metrics
	SnippetsEmitted    prometheus.Counter
	SnippetSeconds     prometheus.Histogram
	RequestsDispatched prometheus.Counter
	OutstandingOps     prometheus.Gauge

	// Identification metrics
	Outcomes               *prometheus.CounterVec
	IdentificationDuration prometheus.Histogram
}

var _ recognition.Observer = (*Metrics)(nil)

// NewMetrics creates all metrics and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of recording sessions currently accepting audio",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of recording sessions started",
		}),
		SessionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Total number of recording sessions closed by final status",
		}, []string{"status"}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total number of audio bytes appended to sessions",
		}),
		SnippetsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snippets_emitted_total",
			Help:      "Total number of snippets produced by window buffers",
		}),
		SnippetSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snippet_seconds",
			Help:      "Audio length of emitted snippets in seconds",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 10, 15, 20, 30},
		}),
		RequestsDispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_dispatched_total",
			Help:      "Total number of identification requests dispatched",
		}),
		OutstandingOps: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outstanding_operations",
			Help:      "Identification requests dispatched but not yet finished",
		}),
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Identification outcomes by result",
		}, []string{"result"}),
		IdentificationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "identification_duration_seconds",
			Help:      "Time from submission to outcome",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
	}
}

// SnippetEmitted implements recognition.Observer
func (m *Metrics) SnippetEmitted(seconds int) {
	m.SnippetsEmitted.Inc()
	m.SnippetSeconds.Observe(float64(seconds))
}

// RequestDispatched implements recognition.Observer
func (m *Metrics) RequestDispatched() {
	m.RequestsDispatched.Inc()
}

// OutstandingChanged implements recognition.Observer
func (m *Metrics) OutstandingChanged(delta int) {
	m.OutstandingOps.Add(float64(delta))
}

// OutcomeRecorded implements recognition.Observer
func (m *Metrics) OutcomeRecorded(outcome entities.RecognitionOutcome, elapsed time.Duration) {
	m.Outcomes.WithLabelValues(ResultLabel(outcome)).Inc()
	m.IdentificationDuration.Observe(elapsed.Seconds())
}

// SessionStarted records a newly opened session
func (m *Metrics) SessionStarted() {
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

// SessionClosed records a session reaching a terminal status
func (m *Metrics) SessionClosed(status entities.SessionStatus) {
	m.SessionsClosed.WithLabelValues(string(status)).Inc()
	m.ActiveSessions.Dec()
}

// AudioReceived counts appended audio bytes
func (m *Metrics) AudioReceived(n int) {
	m.BytesReceived.Add(float64(n))
}

// ResultLabel classifies an outcome for the outcomes_total counter
func ResultLabel(outcome entities.RecognitionOutcome) string {
	switch {
	case outcome.Succeeded && outcome.IsUnknown():
		return ResultUnknown
	case outcome.Succeeded:
		return ResultSuccess
	case outcome.FailureReason == recognition.ErrRequestTimeout.Error():
		return ResultTimeout
	default:
		return ResultFailure
	}
}
