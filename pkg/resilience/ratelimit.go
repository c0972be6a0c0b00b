package resilience

import (
	"context"

	"github.com/Sternrassler/ipgeo-proxy/pkg/ratelimit"
)

// WithRateLimit makes every call acquire a permit from l first. A nil
// limiter makes the stage a pass-through.
func WithRateLimit[T any](l ratelimit.Limiter) Stage[T] {
	return func(next Call[T]) Call[T] {
		if l == nil {
			return next
		}
		return func(ctx context.Context) (T, error) {
			if err := l.Acquire(ctx); err != nil {
				var zero T
				return zero, err
			}
			return next(ctx)
		}
	}
}
