package routing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the route engine. A nil
// *Metrics is accepted everywhere so tests can skip registration.
type Metrics struct {
	Queries       prometheus.Counter
	QueryFailures *prometheus.CounterVec
	QueryDuration prometheus.Histogram

	CacheHits   *prometheus.CounterVec
	CacheMisses prometheus.Counter

	BuildRuns     *prometheus.CounterVec
	BuildDuration prometheus.Histogram

	GraphNodes   prometheus.Gauge
	GraphEdges   prometheus.Gauge
	GraphVersion prometheus.Gauge
}

// NewMetrics registers the route engine metrics on the given registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Queries: factory.NewCounter(prometheus.CounterOpts{
			Name: "astrolabe_route_queries_total",
			Help: "Route queries received by the resolver.",
		}),
		QueryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "astrolabe_route_query_failures_total",
			Help: "Route queries that ended in an error, by error code.",
		}, []string{"code"}),
		QueryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "astrolabe_route_query_duration_seconds",
			Help:    "End-to-end route query latency.",
			Buckets: prometheus.DefBuckets,
		}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "astrolabe_route_cache_hits_total",
			Help: "Route cache hits by tier (memory, persistent).",
		}, []string{"tier"}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "astrolabe_route_cache_misses_total",
			Help: "Route queries that missed both cache tiers.",
		}),
		BuildRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "astrolabe_graph_builds_total",
			Help: "Graph build runs by mode (full, light) and outcome.",
		}, []string{"mode", "outcome"}),
		BuildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "astrolabe_graph_build_duration_seconds",
			Help:    "Full rebuild duration.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		GraphNodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "astrolabe_graph_nodes",
			Help: "Nodes in the current graph.",
		}),
		GraphEdges: factory.NewGauge(prometheus.GaugeOpts{
			Name: "astrolabe_graph_edges",
			Help: "Directed edges in the current graph.",
		}),
		GraphVersion: factory.NewGauge(prometheus.GaugeOpts{
			Name: "astrolabe_graph_version",
			Help: "Current graph build version.",
		}),
	}
}
