package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MulticallBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poolscope_multicall_batches_total",
		Help: "Multicall3 aggregate3 round trips by outcome",
	}, []string{"status"})

	MulticallCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poolscope_multicall_calls_total",
		Help: "Individual calls carried inside multicall batches",
	}, []string{"result"})

	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poolscope_cache_requests_total",
		Help: "Cache lookups by cache name and result",
	}, []string{"cache", "result"})

	SourceFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poolscope_source_fetch_total",
		Help: "Source fetches by provider and outcome",
	}, []string{"source", "status"})

	SourceLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "poolscope_source_fetch_seconds",
		Help:    "Source fetch latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	DivergentPools = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poolscope_divergent_total",
		Help: "Aggregations that reported divergent sources",
	})

	RefreshRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poolscope_refresh_runs_total",
		Help: "Watchlist refresh runs by outcome",
	}, []string{"status"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "poolscope_http_latency_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
