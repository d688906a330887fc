// Package metrics exposes Prometheus instrumentation for the runloop engine.
// Collectors are registered on the default registry via promauto; Handler
// returns an http.Handler suitable for mounting at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RunsTotal counts finished runs by terminal status.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runloop_runs_total",
			Help: "Total number of finished runs",
		},
		[]string{"status"},
	)

	// RunDuration tracks end-to-end run latency.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runloop_run_duration_seconds",
			Help:    "Run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"provider"},
	)

	// EventsPublished counts events accepted by the bus, by kind.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runloop_events_published_total",
			Help: "Total number of events published to the bus",
		},
		[]string{"kind"},
	)

	// EventDrops counts events dropped because a subscriber queue stayed full
	// past the publish timeout.
	EventDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runloop_event_drops_total",
			Help: "Total number of events dropped due to backpressure",
		},
	)

	// ActionCalls counts action executions by action name and outcome.
	ActionCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runloop_action_calls_total",
			Help: "Total number of action executions",
		},
		[]string{"action", "status"},
	)

	// GuardrailDenials counts requests short-circuited by the guardrails gate.
	GuardrailDenials = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runloop_guardrail_denials_total",
			Help: "Total number of requests denied by guardrails",
		},
	)

	// ProviderCalls counts provider round-trips by provider name and outcome.
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runloop_provider_calls_total",
			Help: "Total number of provider round-trips",
		},
		[]string{"provider", "status"},
	)

	// ActiveRuns tracks currently executing runs.
	ActiveRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "runloop_active_runs",
			Help: "Number of runs currently executing",
		},
	)
)

// Handler returns an HTTP handler serving the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
