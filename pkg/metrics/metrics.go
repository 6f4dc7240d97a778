// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// TurnsStarted tracks turns started, by reasoning mode.
	TurnsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turns_started_total",
			Help: "Total turns started",
		},
		[]string{"mode"},
	)

	// TurnsRejected tracks StartTurn calls that did not create a turn.
	TurnsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turns_rejected_total",
			Help: "Total turn starts rejected",
		},
		[]string{"reason"},
	)

	// TurnsFinished tracks turns that completed or were cancelled.
	TurnsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turns_finished_total",
			Help: "Total turns finished",
		},
		[]string{"outcome"},
	)

	// TurnDuration tracks wall time from start to finish.
	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "turn_duration_seconds",
			Help:    "Turn duration from start to done or cancel",
			Buckets: []float64{.5, 1, 2, 3, 5, 8, 13, 20, 30, 60},
		},
		[]string{"mode", "outcome"},
	)

	// TurnsActive tracks turns in flight.
	TurnsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "turns_active",
			Help: "Number of turns in flight",
		},
	)

	// CatalogMatches tracks which canned response category answered.
	CatalogMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_matches_total",
			Help: "Canned response selections by category",
		},
		[]string{"category"},
	)

	// SessionsTotal tracks sessions created.
	SessionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_total",
			Help: "Total sessions created",
		},
	)

	// EventsPublished tracks turn events and notifications sent to NATS.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_events_published_total",
			Help: "Events published to NATS",
		},
		[]string{"kind", "status"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordTurnStarted records a new turn.
func RecordTurnStarted(mode string) {
	TurnsStarted.WithLabelValues(mode).Inc()
	TurnsActive.Inc()
}

// RecordTurnFinished records a turn reaching done or being cancelled.
func RecordTurnFinished(mode, outcome string, duration float64) {
	TurnsFinished.WithLabelValues(outcome).Inc()
	TurnDuration.WithLabelValues(mode, outcome).Observe(duration)
	TurnsActive.Dec()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
