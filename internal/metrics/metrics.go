package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec
	AccountFetches   *prometheus.CounterVec
	CatalogLoads     *prometheus.CounterVec
	TransformResults *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
}

// New registers all collectors on a private registry so tests can build
// as many instances as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchboard",
			Name:      "upstream_requests_total",
			Help:      "Upstream requests by operation and outcome.",
		}, []string{"op", "outcome"}),
		UpstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "matchboard",
			Name:      "upstream_request_seconds",
			Help:      "Upstream request latency by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		AccountFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchboard",
			Name:      "aggregator_account_fetches_total",
			Help:      "Per-account match listings issued by the aggregator.",
		}, []string{"outcome"}),
		CatalogLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchboard",
			Name:      "catalog_loads_total",
			Help:      "Asset catalog load attempts.",
		}, []string{"outcome"}),
		TransformResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchboard",
			Name:      "transform_results_total",
			Help:      "Match transforms by outcome.",
		}, []string{"outcome"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "matchboard",
			Name:      "aggregator_sessions",
			Help:      "Aggregator sessions currently held in memory.",
		}),
	}

	reg.MustRegister(
		m.UpstreamRequests,
		m.UpstreamLatency,
		m.AccountFetches,
		m.CatalogLoads,
		m.TransformResults,
		m.ActiveSessions,
		collectors.NewGoCollector(),
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
