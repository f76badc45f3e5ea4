/*
Package metrics provides Prometheus instrumentation for gridsync.

Collectors are package-level and registered in init(); the HTTP
exposition handler is served by the API server at /metrics.

Exposed metric families:

  - gridsync_change_appends_total{sheet}: change records written
  - gridsync_corrupt_records_total: log entries skipped as unparseable
  - gridsync_log_truncations_detected_total: full-resync signals issued
  - gridsync_api_requests_total{route,status} and request durations
  - gridsync_sync_cycles_total{result}, sync durations, coalesced ticks
  - gridsync_deltas_applied_total, gridsync_resyncs_total
  - gridsync_cache_reads_total{tier,result}, cache writes by tier

Timer Helper:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SyncDuration)
*/
package metrics
