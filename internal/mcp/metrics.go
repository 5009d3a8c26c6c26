package mcp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics instruments the registry: call counts and latency per server, a
// readiness gauge, and discovery cycle counters.
type metrics struct {
	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	ready        *prometheus.GaugeVec
	discoveries  prometheus.Counter
	catalogSize  prometheus.Gauge
}

// newMetrics registers the registry's collectors. A nil registerer gets a
// private registry so tests and embedders never collide.
func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &metrics{
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolmux",
			Name:      "tool_calls_total",
			Help:      "Tool invocations by server, tool, and outcome.",
		}, []string{"server", "tool", "outcome"}),
		callDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "toolmux",
			Name:      "tool_call_duration_seconds",
			Help:      "Tool invocation latency by server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"server"}),
		ready: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "toolmux",
			Name:      "server_ready",
			Help:      "1 when the server connection is ready, 0 otherwise.",
		}, []string{"server"}),
		discoveries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "toolmux",
			Name:      "discovery_cycles_total",
			Help:      "Completed tool discovery cycles.",
		}),
		catalogSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "toolmux",
			Name:      "catalog_tools",
			Help:      "Tools in the current merged catalog.",
		}),
	}
}

func (m *metrics) observeCall(server, tool string, ok bool, seconds float64) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.calls.WithLabelValues(server, tool, outcome).Inc()
	m.callDuration.WithLabelValues(server).Observe(seconds)
}

func (m *metrics) setReady(server string, ready bool) {
	v := 0.0
	if ready {
		v = 1.0
	}
	m.ready.WithLabelValues(server).Set(v)
}
