/*
Package metrics provides Prometheus metrics for the GyanPath agent.

Collectors are package-level and registered in init; the promhttp handler is
mounted on the control API at /metrics. Metric families cover the gateway
cache (hits, misses, evictions, bytes, offline fallbacks), course downloads
(outcomes, duration, tolerated asset failures), the outbox (depth, drains,
retries), backend connectivity and control API traffic.

# Usage

	metrics.CacheHitsTotal.WithLabelValues("runtime").Inc()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DownloadDuration)
*/
package metrics
