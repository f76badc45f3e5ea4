package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Change log metrics
	ChangeAppendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridsync_change_appends_total",
			Help: "Total number of change records appended by sheet",
		},
		[]string{"sheet"},
	)

	CorruptRecordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gridsync_corrupt_records_total",
			Help: "Total number of change-log entries skipped as unparseable",
		},
	)

	LogTruncationsDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gridsync_log_truncations_detected_total",
			Help: "Total number of delta requests answered with a full-resync signal",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridsync_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridsync_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Sync client metrics
	SyncCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridsync_sync_cycles_total",
			Help: "Total number of sync cycles by result",
		},
		[]string{"result"},
	)

	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gridsync_sync_duration_seconds",
			Help:    "Time taken for one sync cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SyncCoalescedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gridsync_sync_coalesced_total",
			Help: "Total number of poll ticks skipped because a sync was in flight",
		},
	)

	DeltasAppliedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gridsync_deltas_applied_total",
			Help: "Total number of change records applied by the sync client",
		},
	)

	ResyncsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gridsync_resyncs_total",
			Help: "Total number of full resyncs performed by the sync client",
		},
	)

	// Cache metrics
	CacheReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridsync_cache_reads_total",
			Help: "Total number of cache reads by tier and result",
		},
		[]string{"tier", "result"},
	)

	CacheWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridsync_cache_writes_total",
			Help: "Total number of cache writes by tier and result",
		},
		[]string{"tier", "result"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ChangeAppendsTotal)
	prometheus.MustRegister(CorruptRecordsTotal)
	prometheus.MustRegister(LogTruncationsDetected)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(SyncCyclesTotal)
	prometheus.MustRegister(SyncDuration)
	prometheus.MustRegister(SyncCoalescedTotal)
	prometheus.MustRegister(DeltasAppliedTotal)
	prometheus.MustRegister(ResyncsTotal)
	prometheus.MustRegister(CacheReadsTotal)
	prometheus.MustRegister(CacheWritesTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
