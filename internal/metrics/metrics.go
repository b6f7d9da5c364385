package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gap_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "route", "status"},
	)

	IndexerCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gap_indexer_call_duration_seconds",
			Help:    "Indexer call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		},
		[]string{"endpoint", "status"},
	)

	RoadmapSource = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gap_roadmap_source_total",
			Help: "Roadmap responses by where the raw collections came from",
		},
		[]string{"source"}, // cache, indexer, snapshot
	)

	RoadmapItems = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gap_roadmap_items",
			Help:    "Number of unified milestones returned per roadmap request",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	PermissionFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gap_permission_batch_fallback_total",
			Help: "Batch permission checks that fell back to parallel single checks",
		},
	)

	RefreshJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gap_refresh_jobs_total",
			Help: "Processed roadmap refresh jobs",
		},
		[]string{"status"}, // completed, failed
	)
)

func RecordHTTPRequestDuration(method, route, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

func RecordIndexerCall(endpoint, status string, duration time.Duration) {
	IndexerCallDuration.WithLabelValues(endpoint, status).Observe(duration.Seconds())
}

func IncrementRoadmapSource(source string) {
	RoadmapSource.WithLabelValues(source).Inc()
}

func ObserveRoadmapItems(n int) {
	RoadmapItems.Observe(float64(n))
}

func IncrementPermissionFallback() {
	PermissionFallbacks.Inc()
}

func IncrementRefreshJob(status string) {
	RefreshJobs.WithLabelValues(status).Inc()
}
