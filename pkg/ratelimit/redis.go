package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/ipgeo-proxy/pkg/geo"
)

// RedisLimiter counts permits in fixed windows shared through Redis.
// Every replica pointing at the same Redis and limiter name draws from
// one budget.
type RedisLimiter struct {
	name   string
	policy Policy
	redis  *redis.Client
	logger zerolog.Logger
}

// NewRedis creates a shared fixed-window limiter.
func NewRedis(name string, policy Policy, redisClient *redis.Client, logger zerolog.Logger) *RedisLimiter {
	return &RedisLimiter{
		name:   name,
		policy: policy,
		redis:  redisClient,
		logger: logger,
	}
}

// Name returns the limiter name.
func (l *RedisLimiter) Name() string {
	return l.name
}

// Acquire implements Limiter. A permit is granted while the counter of the
// current window stays within LimitForPeriod. Otherwise the call waits for
// the next window if it opens before the timeout passes.
func (l *RedisLimiter) Acquire(ctx context.Context) error {
	deadline := time.Now().Add(l.policy.Timeout)

	for {
		key := WindowOf(l.name, time.Now(), l.policy.RefreshPeriod)

		count, err := l.increment(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Error().
				Err(err).
				Str("limiter", l.name).
				Str("key", key.String()).
				Msg("Rate limit counter unavailable, rejecting call")
			rejectionsTotal.WithLabelValues(l.name).Inc()
			return geo.RateLimited(l.name, err)
		}

		if count <= int64(l.policy.LimitForPeriod) {
			permitsTotal.WithLabelValues(l.name).Inc()
			return nil
		}

		next := key.Next().Start(l.policy.RefreshPeriod)
		if next.After(deadline) {
			rejectionsTotal.WithLabelValues(l.name).Inc()
			l.logger.Debug().
				Str("limiter", l.name).
				Int64("count", count).
				Int("limit", l.policy.LimitForPeriod).
				Msg("Window exhausted, no permit before timeout")
			return geo.RateLimited(l.name, nil)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *RedisLimiter) increment(ctx context.Context, key WindowKey) (int64, error) {
	var incr *redis.IntCmd
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key.String())
		pipe.PExpire(ctx, key.String(), 2*l.policy.RefreshPeriod)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return incr.Val(), nil
}
