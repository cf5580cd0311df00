// Package metric provides the Prometheus observability mirror of the
// protocol's authoritative counters. The store-resident ProtocolMetrics
// record is the source of truth queried by GetProtocolMetrics; the gauges
// and counters here exist for dashboards and alerting and are updated only
// after a lifecycle transition commits.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the engine-level Prometheus metrics.
type Metrics struct {
	ActiveStreams  prometheus.Gauge
	StreamsCreated prometheus.Counter
	TokensStreamed prometheus.Counter
	TokensPaidOut  prometheus.Counter
	FeesCollected  prometheus.Counter
	Delegations    prometheus.Counter
	Withdrawals    *prometheus.CounterVec
	Transitions    *prometheus.CounterVec
	OperationFails *prometheus.CounterVec
}

// NewMetrics creates the engine metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ActiveStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fundable",
			Subsystem: "streams",
			Name:      "active",
			Help:      "Number of streams currently in the Active state",
		}),
		StreamsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fundable",
			Subsystem: "streams",
			Name:      "created_total",
			Help:      "Total number of streams created",
		}),
		TokensStreamed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fundable",
			Subsystem: "tokens",
			Name:      "streamed_total",
			Help:      "Sum of stream total amounts at creation",
		}),
		TokensPaidOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fundable",
			Subsystem: "tokens",
			Name:      "paid_out_total",
			Help:      "Net tokens transferred to recipients",
		}),
		FeesCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fundable",
			Subsystem: "tokens",
			Name:      "fees_collected_total",
			Help:      "Protocol fees transferred to the collector",
		}),
		Delegations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fundable",
			Subsystem: "streams",
			Name:      "delegations_total",
			Help:      "Total number of delegation grants",
		}),
		Withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fundable",
			Subsystem: "streams",
			Name:      "withdrawals_total",
			Help:      "Withdrawal operations by outcome",
		}, []string{"status"}), // status: success, failure
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fundable",
			Subsystem: "streams",
			Name:      "transitions_total",
			Help:      "Stream state transitions by target state",
		}, []string{"to"}),
		OperationFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fundable",
			Subsystem: "engine",
			Name:      "operation_failures_total",
			Help:      "Failed engine operations by operation name",
		}, []string{"operation"}),
	}
}

// Registry bundles the engine metrics with their Prometheus registry.
type Registry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
}

// NewRegistry creates a registry with the engine metrics and Go runtime
// collectors registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	m := NewMetrics()

	reg.MustRegister(
		m.ActiveStreams,
		m.StreamsCreated,
		m.TokensStreamed,
		m.TokensPaidOut,
		m.FeesCollected,
		m.Delegations,
		m.Withdrawals,
		m.Transitions,
		m.OperationFails,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{prometheusRegistry: reg, Metrics: m}
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{})
}
