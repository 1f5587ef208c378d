package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Gateway metrics
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gyanpath_cache_hits_total",
			Help: "Total number of gateway cache hits by cache class",
		},
		[]string{"class"},
	)

	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gyanpath_cache_misses_total",
			Help: "Total number of gateway cache misses",
		},
	)

	CacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gyanpath_cache_evictions_total",
			Help: "Total number of runtime cache entries evicted under quota pressure",
		},
	)

	CacheBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gyanpath_cache_bytes",
			Help: "Current cached bytes by cache class",
		},
		[]string{"class"},
	)

	OfflineFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gyanpath_offline_fallbacks_total",
			Help: "Total number of navigations served the offline fallback page",
		},
	)

	// Download metrics
	DownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gyanpath_downloads_total",
			Help: "Total number of course downloads by outcome",
		},
		[]string{"outcome"},
	)

	DownloadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gyanpath_download_duration_seconds",
			Help:    "Course download duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	AssetFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gyanpath_asset_failures_total",
			Help: "Total number of per-asset fetch failures tolerated during downloads",
		},
	)

	// Outbox metrics
	OutboxDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gyanpath_outbox_depth",
			Help: "Number of pending outbox entries",
		},
	)

	OutboxDrainsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gyanpath_outbox_drains_total",
			Help: "Total number of outbox entry drain attempts by outcome",
		},
		[]string{"outcome"},
	)

	OutboxRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gyanpath_outbox_retries_total",
			Help: "Total number of outbox entries rescheduled after a failed push",
		},
	)

	// Connectivity metrics
	BackendOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gyanpath_backend_online",
			Help: "Whether the backend is reachable (1 = online, 0 = offline)",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gyanpath_api_requests_total",
			Help: "Total number of control API requests by method and status",
		},
		[]string{"method", "status"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(CacheEvictionsTotal)
	prometheus.MustRegister(CacheBytes)
	prometheus.MustRegister(OfflineFallbacksTotal)
	prometheus.MustRegister(DownloadsTotal)
	prometheus.MustRegister(DownloadDuration)
	prometheus.MustRegister(AssetFailuresTotal)
	prometheus.MustRegister(OutboxDepth)
	prometheus.MustRegister(OutboxDrainsTotal)
	prometheus.MustRegister(OutboxRetriesTotal)
	prometheus.MustRegister(BackendOnline)
	prometheus.MustRegister(APIRequestsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
