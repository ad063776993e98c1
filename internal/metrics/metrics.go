package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "content",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "content",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	UpstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "content",
		Name:      "upstream_requests_total",
		Help:      "Total requests to the content API by content type and result status.",
	}, []string{"type", "status"})

	UpstreamRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "content",
		Name:      "upstream_request_duration_seconds",
		Help:      "Content API request duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"type"})

	UpstreamAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "content",
		Name:      "upstream_available",
		Help:      "Whether an upstream is available (1) or blocked by its circuit breaker (0).",
	}, []string{"upstream"})

	FallbackRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "content",
		Name:      "fallback_requests_total",
		Help:      "Total requests served by the fallback provider, by content type.",
	}, []string{"type"})

	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "content",
		Name:      "cache_hits_total",
		Help:      "Total cache hits by cache name.",
	}, []string{"cache"})

	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "content",
		Name:      "cache_misses_total",
		Help:      "Total cache misses by cache name.",
	}, []string{"cache"})

	CacheCorruptionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "content",
		Name:      "cache_corruptions_total",
		Help:      "Total cache entries evicted because the corruption check failed.",
	}, []string{"cache"})

	SearchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "content",
		Name:      "searches_total",
		Help:      "Total searches by strategy (simple or virtual).",
	}, []string{"strategy"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		UpstreamRequestsTotal,
		UpstreamRequestDuration,
		UpstreamAvailable,
		FallbackRequestsTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		CacheCorruptionsTotal,
		SearchesTotal,
	)
}
