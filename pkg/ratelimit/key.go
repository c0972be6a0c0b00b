package ratelimit

import (
	"fmt"
	"strings"
	"time"
)

// KeyPrefix is the namespace for limiter counters in Redis.
const KeyPrefix = "ipgeo:ratelimit"

// WindowKey identifies the counter of one limiter in one fixed window.
type WindowKey struct {
	// Limiter is the limiter name (e.g., "geoApiLimiter")
	Limiter string

	// Window is the window index: Unix milliseconds divided by the period.
	Window int64
}

// WindowOf returns the key of the window containing t.
func WindowOf(limiter string, t time.Time, period time.Duration) WindowKey {
	return WindowKey{
		Limiter: limiter,
		Window:  t.UnixMilli() / period.Milliseconds(),
	}
}

// Start returns the first instant of the window.
func (k WindowKey) Start(period time.Duration) time.Time {
	return time.UnixMilli(k.Window * period.Milliseconds())
}

// Next returns the key of the following window.
func (k WindowKey) Next() WindowKey {
	return WindowKey{Limiter: k.Limiter, Window: k.Window + 1}
}

// String generates the Redis key.
// Format: ipgeo:ratelimit:<limiter>:<window>
//
// Example:
//
//	ipgeo:ratelimit:geoApiLimiter:1729331200
func (k WindowKey) String() string {
	name := strings.TrimSpace(k.Limiter)
	if name == "" {
		name = "default"
	}
	return fmt.Sprintf("%s:%s:%d", KeyPrefix, name, k.Window)
}
