// Package resilience wraps a single upstream call in a fixed stack of
// protective stages.
//
// Stages are composed outermost first:
//
//	Timeout -> Retry -> CircuitBreaker -> RateLimiter -> call
//
// The timeout bounds the whole call, every retry included, and returns at
// the deadline even if the inner call is still running. Retry re-issues
// the inner call for retryable failures only (see geo.Retryable). Because
// the breaker and the limiter sit inside the retry loop, every attempt
// is judged by the breaker and needs its own permit.
//
// # Basic Usage
//
//	pipeline := resilience.NewPipeline[geo.Result](resilience.Config{
//		RateLimiterEnabled: true,
//		RateLimiterName:    "geoApiLimiter",
//		BreakerName:        "geoApiBreaker",
//		RetryName:          "geoApiRetry",
//		Timeout:            5 * time.Second,
//	}, limiters, breakers, retries, logger)
//
//	result, err := pipeline.Execute(ctx, func(ctx context.Context) (geo.Result, error) {
//		return provider.Fetch(ctx, address)
//	})
//
// # Metrics
//
//   - ipgeo_retries_total{error_kind} - Retries issued
//   - ipgeo_retry_exhausted_total{error_kind} - Calls that failed after the last attempt
//   - ipgeo_pipeline_timeouts_total - Calls cut off by the overall timeout
//   - ipgeo_breaker_state{breaker} - 0 closed, 1 half-open, 2 open
//   - ipgeo_breaker_rejections_total{breaker} - Calls rejected by an open breaker
package resilience
