// Package metrics exposes the Prometheus registry of the proxy.
// All metrics are defined in their respective packages (cache, lookup,
// provider, ratelimit, resilience) and registered via promauto.
//
// This package provides the HTTP handler and the reference for all
// available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the proxy.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - ipgeo_cache_hits_total (Counter): Result cache hits
//   - ipgeo_cache_misses_total (Counter): Result cache misses
//   - ipgeo_cache_evictions_total{reason} (Counter): Entries removed for capacity, expiry or purge
//   - ipgeo_cache_entries (Gauge): Current entry count
//
// Lookup Metrics (pkg/lookup):
//   - ipgeo_lookups_total{outcome} (Counter): Lookups by outcome (cache_hit, upstream, coalesced, invalid, error)
//   - ipgeo_lookup_duration_seconds (Histogram): Caller-visible lookup latency
//   - ipgeo_inflight_lookups (Gauge): Upstream lookups currently in flight
//   - ipgeo_coalesced_waiters_total (Counter): Lookups answered by a shared in-flight call
//
// Upstream Metrics (pkg/provider):
//   - ipgeo_upstream_requests_total{status} (Counter): Upstream requests by HTTP status
//   - ipgeo_upstream_request_duration_seconds (Histogram): Upstream round trip duration
//   - ipgeo_upstream_errors_total{kind} (Counter): Upstream errors by kind
//
// Rate Limit Metrics (pkg/ratelimit):
//   - ipgeo_ratelimit_permits_total{limiter} (Counter): Permits granted
//   - ipgeo_ratelimit_rejections_total{limiter} (Counter): Calls rejected for lack of a permit
//
// Resilience Metrics (pkg/resilience):
//   - ipgeo_retries_total{error_kind} (Counter): Retry attempts by error kind
//   - ipgeo_retry_exhausted_total{error_kind} (Counter): Calls that exhausted max attempts
//   - ipgeo_pipeline_timeouts_total (Counter): Calls cut off by the overall timeout
//   - ipgeo_breaker_state{breaker} (Gauge): 0 closed, 1 half-open, 2 open
//   - ipgeo_breaker_rejections_total{breaker} (Counter): Calls rejected by an open breaker
//
// HTTP Metrics (cmd/ipgeo-proxy):
//   - ipgeo_http_requests_total{route,status} (Counter): Inbound lookup requests
//   - ipgeo_http_request_duration_seconds{route} (Histogram): Inbound lookup latency
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   rate(ipgeo_cache_hits_total[5m]) /
//   (rate(ipgeo_cache_hits_total[5m]) + rate(ipgeo_cache_misses_total[5m]))
//
//   # Coalescing Ratio
//   rate(ipgeo_lookups_total{outcome="coalesced"}[5m]) / rate(ipgeo_lookups_total[5m])
//
//   # Open Breakers
//   ipgeo_breaker_state == 2
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(ipgeo_upstream_request_duration_seconds_bucket[5m]))
