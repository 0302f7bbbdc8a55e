// Package metrics defines the Prometheus instrumentation exposed at
// GET /metrics. Sinks observe transitions
// out-of-band: nothing in the hub blocks on a metrics call.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the hub registers.
type Metrics struct {
	ToolCallDuration *prometheus.HistogramVec
	ToolCallTotal    *prometheus.CounterVec
	ToolCallErrors   *prometheus.CounterVec

	GovernanceBlocked  *prometheus.CounterVec
	SubServerHealth    *prometheus.GaugeVec
	InFlightDispatches prometheus.Gauge
}

// New creates and registers every collector under the given namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "memoryhub"
	}

	return &Metrics{
		ToolCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_call_duration_seconds",
				Help:      "Duration of tool_call dispatches in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"sub_server", "tool", "status"},
		),

		ToolCallTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Total number of tool_call dispatches",
			},
			[]string{"sub_server", "tool", "status"},
		),

		ToolCallErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_call_errors_total",
				Help:      "Total number of tool_call errors by taxonomy kind",
			},
			[]string{"sub_server", "tool", "kind"},
		),

		GovernanceBlocked: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "governance_blocked_total",
				Help:      "Total number of actions blocked by the governance pre-check",
			},
			[]string{"reason"},
		),

		SubServerHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sub_server_health",
				Help:      "Sub-server health status (1=healthy, 0=unhealthy)",
			},
			[]string{"sub_server"},
		),

		InFlightDispatches: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "dispatches_in_flight",
				Help:      "Number of dispatcher calls currently executing",
			},
		),
	}
}

// ObserveToolCall records a completed tool_call dispatch.
func (m *Metrics) ObserveToolCall(subServer, tool, status string, seconds float64) {
	m.ToolCallDuration.WithLabelValues(subServer, tool, status).Observe(seconds)
	m.ToolCallTotal.WithLabelValues(subServer, tool, status).Inc()
}

// ObserveToolCallError increments the error counter for a taxonomy kind.
func (m *Metrics) ObserveToolCallError(subServer, tool, kind string) {
	m.ToolCallErrors.WithLabelValues(subServer, tool, kind).Inc()
}

// SetSubServerHealth records a sub-server's current health as a 0/1 gauge.
func (m *Metrics) SetSubServerHealth(subServer string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	m.SubServerHealth.WithLabelValues(subServer).Set(v)
}
