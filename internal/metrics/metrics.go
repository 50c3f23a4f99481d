// Package metrics provides Prometheus metrics for the meeting summary bot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline outcomes recorded by RecordEvent
const (
	OutcomeIgnored     = "ignored"
	OutcomeFetchFailed = "fetch_failed"
	OutcomeNoSummary   = "no_summary"
	OutcomePosted      = "posted"
	OutcomeFailed      = "failed"
)

// Metrics holds all Prometheus metrics for the bot.
type Metrics struct {
	EventsTotal      *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
	PipelineDuration prometheus.Histogram

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meeting_summary_events_total",
				Help: "Room messages handled, by pipeline outcome.",
			},
			[]string{"outcome"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meeting_summary_errors_total",
				Help: "Pipeline errors by stage.",
			},
			[]string{"stage"},
		),
		PipelineDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meeting_summary_pipeline_duration_seconds",
				Help:    "Time from meeting log announcement to posted summary.",
				Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.EventsTotal)
	reg.MustRegister(m.ErrorsTotal)
	reg.MustRegister(m.PipelineDuration)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordEvent increments the event counter.
func (m *Metrics) RecordEvent(outcome string) {
	m.EventsTotal.WithLabelValues(outcome).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(stage string) {
	m.ErrorsTotal.WithLabelValues(stage).Inc()
}

// ObserveDuration records how long a pipeline run took.
func (m *Metrics) ObserveDuration(seconds float64) {
	m.PipelineDuration.Observe(seconds)
}
