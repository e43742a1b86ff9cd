package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the server's Prometheus collectors.
type Metrics struct {
	OpenConnections    prometheus.Gauge
	RefusedConnections prometheus.Counter
	Requests           *prometheus.CounterVec
	ResolverCalls      prometheus.Counter
	RequestDuration    *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. Passing a
// fresh registry per server keeps tests independent.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OpenConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tsexpr_open_connections",
			Help: "Currently open client connections.",
		}),
		RefusedConnections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsexpr_refused_connections_total",
			Help: "Connections refused because the server was at its limit.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tsexpr_requests_total",
			Help: "Requests processed, by operation and outcome.",
		}, []string{"op", "status"}),
		ResolverCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsexpr_resolver_calls_total",
			Help: "Invocations of the external resolver callback.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tsexpr_request_duration_seconds",
			Help:    "End-to-end request processing time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.OpenConnections,
			m.RefusedConnections,
			m.Requests,
			m.ResolverCalls,
			m.RequestDuration,
		)
	}
	return m
}

// NopMetrics returns unregistered collectors, for servers that do not export
// metrics (tests, embedded use).
func NopMetrics() *Metrics {
	return NewMetrics(nil)
}
