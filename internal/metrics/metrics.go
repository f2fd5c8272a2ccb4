// Package metrics exposes process-lifetime Prometheus counters/histograms
// for the tool router, observation store, and session FSM, per spec.md
// §9's "metric counters, built from atomic integers on the request path"
// and SPEC_FULL.md's domain-stack wiring for prometheus/client_golang —
// a dependency the teacher carries but never registers handlers for.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every counter/histogram this process records.
type Registry struct {
	registry *prometheus.Registry

	ToolCallsTotal          *prometheus.CounterVec
	ToolCallDuration        *prometheus.HistogramVec
	ObservationWritesTotal  *prometheus.CounterVec
	SessionTransitionsTotal *prometheus.CounterVec
}

// New builds a Registry with namespace as the metric name prefix.
func New(namespace string) *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		ToolCallsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total tool dispatch calls, labeled by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		ToolCallDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool dispatch latency in seconds, labeled by tool name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		ObservationWritesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observation_writes_total",
			Help:      "Total observation store writes, labeled by dedup outcome.",
		}, []string{"deduplicated"}),
		SessionTransitionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Total accepted session FSM transitions, labeled by trigger.",
		}, []string{"trigger"}),
	}
	return r
}

// Handler returns the http.Handler serving this registry's metrics in the
// Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveToolCall records one tool dispatch outcome and its latency.
func (r *Registry) ObserveToolCall(tool, outcome string, seconds float64) {
	r.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
	r.ToolCallDuration.WithLabelValues(tool).Observe(seconds)
}

// ObserveObservationWrite records one observation-store write outcome.
func (r *Registry) ObserveObservationWrite(deduplicated bool) {
	label := "false"
	if deduplicated {
		label = "true"
	}
	r.ObservationWritesTotal.WithLabelValues(label).Inc()
}

// ObserveSessionTransition records one accepted FSM transition.
func (r *Registry) ObserveSessionTransition(trigger string) {
	r.SessionTransitionsTotal.WithLabelValues(trigger).Inc()
}
