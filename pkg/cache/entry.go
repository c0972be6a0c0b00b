package cache

import (
	"time"

	"github.com/Sternrassler/ipgeo-proxy/pkg/geo"
)

// Entry is a cached lookup result.
type Entry struct {
	// Result is the successful lookup outcome.
	Result geo.Result

	// CachedAt is when the result was stored.
	CachedAt time.Time
}

// Age returns how long ago the entry was stored.
func (e Entry) Age() time.Duration {
	return time.Since(e.CachedAt)
}

// IsExpired reports whether the entry is older than ttl.
// A non-positive ttl never expires.
func (e Entry) IsExpired(ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return e.Age() >= ttl
}
