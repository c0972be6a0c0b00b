package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/ipgeo-proxy/pkg/geo"
)

// RetryRegistry resolves retry policy names. Names without a configured
// policy get DefaultRetryPolicy.
type RetryRegistry struct {
	policies map[string]RetryPolicy
}

// NewRetryRegistry creates a registry over the given policies.
func NewRetryRegistry(policies map[string]RetryPolicy) *RetryRegistry {
	p := make(map[string]RetryPolicy, len(policies))
	for name, policy := range policies {
		p[name] = policy
	}
	return &RetryRegistry{policies: p}
}

// Get returns the policy for name.
func (r *RetryRegistry) Get(name string) RetryPolicy {
	if p, ok := r.policies[name]; ok {
		return p
	}
	return DefaultRetryPolicy()
}

// WithRetry re-issues the wrapped call up to policy.MaxAttempts times,
// pausing policy.WaitDuration between attempts. Only errors accepted by
// geo.Retryable are retried; anything else is returned immediately. The
// error of the last attempt is returned unchanged.
func WithRetry[T any](name string, policy RetryPolicy, logger zerolog.Logger) Stage[T] {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return func(next Call[T]) Call[T] {
		return func(ctx context.Context) (T, error) {
			var result T
			attempt := 0

			operation := func() error {
				attempt++
				v, err := next(ctx)
				if err != nil {
					if !geo.Retryable(err) {
						return backoff.Permanent(err)
					}
					return err
				}
				result = v
				return nil
			}

			b := backoff.WithContext(
				backoff.WithMaxRetries(backoff.NewConstantBackOff(policy.WaitDuration), uint64(maxAttempts-1)),
				ctx,
			)

			notify := func(err error, wait time.Duration) {
				kind := string(geo.KindOf(err))
				retriesTotal.WithLabelValues(kind).Inc()
				logger.Warn().
					Err(err).
					Str("retry", name).
					Str("error_kind", kind).
					Int("attempt", attempt).
					Dur("backoff", wait).
					Msg("Retrying upstream call")
			}

			if err := backoff.RetryNotify(operation, b, notify); err != nil {
				if attempt >= maxAttempts && geo.Retryable(err) {
					kind := string(geo.KindOf(err))
					retryExhaustedTotal.WithLabelValues(kind).Inc()
					logger.Warn().
						Str("retry", name).
						Str("error_kind", kind).
						Int("max_attempts", maxAttempts).
						Msg("Retry attempts exhausted")
				}
				var zero T
				return zero, err
			}

			if attempt > 1 {
				logger.Info().
					Str("retry", name).
					Int("attempt", attempt).
					Msg("Upstream call succeeded after retry")
			}
			return result, nil
		}
	}
}
