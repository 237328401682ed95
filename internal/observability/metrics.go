// Package observability provides Prometheus metrics for the relay bot.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects counters and histograms for message flow, agent runs,
// and tool-approval rounds.
type Metrics struct {
	gatherer prometheus.Gatherer

	// MessageCounter tracks activities by direction (inbound|outbound).
	MessageCounter *prometheus.CounterVec

	// RunCounter counts agent runs by backend and terminal status.
	RunCounter *prometheus.CounterVec

	// RunDuration measures one message turn in seconds, by backend.
	RunDuration *prometheus.HistogramVec

	// ApprovalRounds counts tool-approval rounds by backend.
	ApprovalRounds *prometheus.CounterVec

	// ErrorCounter tracks errors by component and error type.
	ErrorCounter *prometheus.CounterVec
}

// New creates and registers all metrics with the given registerer.
// Passing nil uses the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer, ok := reg.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: gatherer,
		MessageCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relaybot_messages_total",
				Help: "Total number of activities processed by direction",
			},
			[]string{"direction"},
		),
		RunCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relaybot_runs_total",
				Help: "Total number of agent runs by backend and status",
			},
			[]string{"backend", "status"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relaybot_run_duration_seconds",
				Help:    "Duration of one message turn in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"backend"},
		),
		ApprovalRounds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relaybot_approval_rounds_total",
				Help: "Total number of tool-approval rounds by backend",
			},
			[]string{"backend"},
		),
		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relaybot_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),
	}
}

// RecordMessage increments the message counter for a direction.
func (m *Metrics) RecordMessage(direction string) {
	m.MessageCounter.WithLabelValues(direction).Inc()
}

// RecordRun increments the run counter for a backend and terminal status.
func (m *Metrics) RecordRun(backend, status string) {
	m.RunCounter.WithLabelValues(backend, status).Inc()
}

// ObserveRunDuration records the duration of one message turn.
func (m *Metrics) ObserveRunDuration(backend string, seconds float64) {
	m.RunDuration.WithLabelValues(backend).Observe(seconds)
}

// RecordApprovalRound increments the approval round counter.
func (m *Metrics) RecordApprovalRound(backend string) {
	m.ApprovalRounds.WithLabelValues(backend).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// Handler returns the HTTP handler serving the registry these metrics
// were registered with.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
