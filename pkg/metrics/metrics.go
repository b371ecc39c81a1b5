// Package metrics provides the Prometheus registry reference for the sync
// pipeline. All metrics are defined in their respective packages (pipeline,
// graph, airtable, ratelimit, cache) to maintain modularity and avoid
// circular dependencies.
//
// This package documents the available metrics in one place.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the pipeline.
// All metrics are automatically registered via promauto in their packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Run Metrics (pkg/pipeline):
//   - outlook_sync_runs_total{outcome} (Counter): Runs by outcome
//     (completed, stopped, failed, auth_failed, count_failed)
//   - outlook_sync_run_duration_seconds (Histogram): End-to-end run duration
//
// Fetch Metrics (pkg/pipeline):
//   - outlook_sync_fetch_batches_total{status} (Counter): Page batches by
//     status (fetched, failed)
//   - outlook_sync_fetch_retries_total (Counter): Page fetch retry attempts
//   - outlook_sync_records_fetched_total (Counter): Source records fetched
//   - outlook_sync_fetch_phase_duration_seconds (Histogram): Parallel fetch
//     phase duration
//
// Reconcile Metrics (pkg/pipeline):
//   - outlook_sync_records_written_total{op} (Counter): Destination records
//     written by operation (insert, update)
//   - outlook_sync_write_errors_total{op} (Counter): Failed write chunks
//
// Source Metrics (pkg/graph):
//   - outlook_sync_graph_requests_total{endpoint, status} (Counter)
//   - outlook_sync_graph_request_duration_seconds{endpoint} (Histogram)
//   - outlook_sync_graph_errors_total{class} (Counter): Errors by class
//     (client, server, rate_limit, network)
//
// Destination Metrics (pkg/airtable):
//   - outlook_sync_airtable_requests_total{method, status} (Counter)
//   - outlook_sync_airtable_request_duration_seconds{method} (Histogram)
//
// Throttle Metrics (pkg/ratelimit):
//   - outlook_sync_throttle_blocks_total{service} (Counter): Requests held
//     back while a Retry-After deadline was pending
//   - outlook_sync_throttle_backoff_seconds{service} (Histogram): Backoffs
//     recorded from Retry-After headers
//
// Page Cache Metrics (pkg/cache):
//   - outlook_sync_page_cache_hits_total (Counter)
//   - outlook_sync_page_cache_misses_total (Counter)
//   - outlook_sync_page_cache_errors_total{operation} (Counter)
//
// Example Prometheus Queries:
//
//   # Batch failure rate
//   rate(outlook_sync_fetch_batches_total{status="failed"}[15m]) /
//   rate(outlook_sync_fetch_batches_total[15m])
//
//   # Page cache hit rate
//   rate(outlook_sync_page_cache_hits_total[15m]) /
//   (rate(outlook_sync_page_cache_hits_total[15m]) + rate(outlook_sync_page_cache_misses_total[15m]))
//
//   # P95 Graph request latency
//   histogram_quantile(0.95, rate(outlook_sync_graph_request_duration_seconds_bucket[5m]))
