// Package metrics exposes the Prometheus metrics of the Shopify source.
// Metrics are defined next to the code that records them (client,
// ratelimit, pagination, state, pipeline) and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package registers its metrics with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - shopify_requests_total{endpoint, status} (Counter)
//   - shopify_request_duration_seconds{endpoint} (Histogram)
//   - shopify_errors_total{class} (Counter): client, server, rate_limit, network
//   - shopify_retries_total{error_class} (Counter)
//   - shopify_retry_backoff_seconds{error_class} (Histogram)
//   - shopify_retry_exhausted_total{error_class} (Counter)
//
// Call Limit Metrics (pkg/ratelimit):
//   - shopify_call_limit_utilization{api} (Gauge): bucket fill ratio, 0..1
//   - shopify_rate_limit_blocks_total{api} (Counter): waits above the critical ratio
//   - shopify_rate_limit_throttles_total{api} (Counter): waits above the warning ratio
//
// Pagination Metrics (pkg/pagination):
//   - shopify_pages_total{api} (Counter)
//   - shopify_items_total{api} (Counter)
//
// State Metrics (pkg/state):
//   - shopify_state_operations_total{backend, operation} (Counter)
//   - shopify_state_misses_total{backend} (Counter)
//   - shopify_state_errors_total{backend, operation} (Counter)
//
// Pipeline Metrics (pkg/pipeline):
//   - shopify_resource_runs_total{resource, status} (Counter)
//   - shopify_resource_rows_total{resource} (Counter)
//   - shopify_resource_run_duration_seconds{resource} (Histogram)
//   - shopify_cursor_commits_total{resource} (Counter)
//
// Example Prometheus Queries:
//
//   # Bucket close to full
//   max by (api) (shopify_call_limit_utilization) > 0.8
//
//   # Failing resources
//   sum by (resource) (rate(shopify_resource_runs_total{status="failed"}[1h]))
//
//   # Rows per load
//   sum by (resource) (increase(shopify_resource_rows_total[1d]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(shopify_request_duration_seconds_bucket[5m]))
