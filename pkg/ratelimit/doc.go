// Package ratelimit implements admission control for upstream calls.
//
// Each named limiter hands out LimitForPeriod permits per RefreshPeriod.
// A caller that cannot get a permit within the policy's Timeout fails
// with a geo.KindRateLimited error and never reaches the network.
//
// Two implementations exist:
//
//   - Local limiters use a token bucket from golang.org/x/time/rate and
//     are private to one process.
//   - Redis limiters count permits in fixed windows stored in Redis, so
//     several proxy replicas share one upstream budget. Redis errors fail
//     closed.
//
// # Basic Usage
//
//	registry := ratelimit.NewRegistry(map[string]ratelimit.Policy{
//		"geoApiLimiter": {LimitForPeriod: 1, RefreshPeriod: time.Second, Timeout: 5 * time.Second},
//	}, ratelimit.NewLocalFactory(logger))
//
//	if err := registry.Get("geoApiLimiter").Acquire(ctx); err != nil {
//		return err
//	}
//
// # Metrics
//
//   - ipgeo_ratelimit_permits_total{limiter} - Permits granted
//   - ipgeo_ratelimit_rejections_total{limiter} - Acquisitions that timed out or failed
package ratelimit
