// Package cache provides the bounded, time-limited store of successful
// geolocation results.
//
// The result cache has the following properties:
//
//   - Only successful lookups are stored. Failures are never cached.
//   - Entries expire a fixed TTL after they were written (one day by default).
//   - The cache holds at most MaxSize entries. When full, the least
//     recently accessed entry is evicted.
//   - The backing store is allocated lazily on first use.
//
// # Basic Usage
//
//	results := cache.New(cache.Config{
//		TTL:     24 * time.Hour,
//		MaxSize: 10000,
//	})
//
//	if r, ok := results.Get("136.159.0.0"); ok {
//		// Cache hit
//		return r, nil
//	}
//
//	r, err := fetch(ctx, "136.159.0.0")
//	if err == nil {
//		results.Put("136.159.0.0", r)
//	}
//
// # Metrics
//
// The cache exports Prometheus metrics:
//
//   - ipgeo_cache_hits_total - Cache hits
//   - ipgeo_cache_misses_total - Cache misses
//   - ipgeo_cache_evictions_total - Entries dropped for capacity or age
//   - ipgeo_cache_entries - Current entry count
package cache
