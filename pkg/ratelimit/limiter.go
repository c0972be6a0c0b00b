package ratelimit

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Sternrassler/ipgeo-proxy/pkg/geo"
)

// Limiter hands out permits for upstream calls.
type Limiter interface {
	// Acquire blocks until a permit is granted or the limiter's timeout
	// passes. It returns a geo.KindRateLimited error on timeout and the
	// context's error when ctx ends first.
	Acquire(ctx context.Context) error
}

// LocalLimiter is an in-process token bucket.
type LocalLimiter struct {
	name    string
	policy  Policy
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewLocal creates a token bucket that refills LimitForPeriod permits per
// RefreshPeriod and starts full.
func NewLocal(name string, policy Policy, logger zerolog.Logger) *LocalLimiter {
	return &LocalLimiter{
		name:    name,
		policy:  policy,
		limiter: rate.NewLimiter(rate.Every(policy.Interval()), policy.LimitForPeriod),
		logger:  logger,
	}
}

// Name returns the limiter name.
func (l *LocalLimiter) Name() string {
	return l.name
}

// Acquire implements Limiter.
func (l *LocalLimiter) Acquire(ctx context.Context) error {
	if l.policy.Timeout <= 0 {
		if l.limiter.Allow() {
			permitsTotal.WithLabelValues(l.name).Inc()
			return nil
		}
		return l.reject(nil)
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.policy.Timeout)
	defer cancel()

	if err := l.limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return l.reject(err)
	}

	permitsTotal.WithLabelValues(l.name).Inc()
	return nil
}

func (l *LocalLimiter) reject(err error) error {
	rejectionsTotal.WithLabelValues(l.name).Inc()
	l.logger.Debug().
		Str("limiter", l.name).
		Dur("timeout", l.policy.Timeout).
		Msg("No permit available")
	return geo.RateLimited(l.name, err)
}
