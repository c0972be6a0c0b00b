package resilience

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/Sternrassler/ipgeo-proxy/pkg/geo"
)

// Breaker is the circuit breaker type used by the pipeline. The payload
// of a protected call travels outside the breaker, so it carries none.
type Breaker = gobreaker.CircuitBreaker[struct{}]

// BreakerRegistry resolves breaker names to shared circuit breakers.
// Breakers are built on first use; names without a configured policy get
// DefaultBreakerPolicy.
type BreakerRegistry struct {
	policies map[string]BreakerPolicy
	logger   zerolog.Logger

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakerRegistry creates a registry over the given policies.
func NewBreakerRegistry(policies map[string]BreakerPolicy, logger zerolog.Logger) *BreakerRegistry {
	p := make(map[string]BreakerPolicy, len(policies))
	for name, policy := range policies {
		p[name] = policy
	}
	return &BreakerRegistry{
		policies: p,
		logger:   logger,
		breakers: make(map[string]*Breaker),
	}
}

// Policy returns the policy configured for name, or DefaultBreakerPolicy.
func (r *BreakerRegistry) Policy(name string) BreakerPolicy {
	if p, ok := r.policies[name]; ok {
		return p
	}
	return DefaultBreakerPolicy()
}

// Get returns the breaker for name.
func (r *BreakerRegistry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb := newBreaker(name, r.Policy(name), r.logger)
	r.breakers[name] = cb
	return cb
}

// State returns the current state of the named breaker.
func (r *BreakerRegistry) State(name string) gobreaker.State {
	return r.Get(name).State()
}

func newBreaker(name string, policy BreakerPolicy, logger zerolog.Logger) *Breaker {
	breakerState.WithLabelValues(name).Set(stateValue(gobreaker.StateClosed))

	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: policy.PermittedCallsInHalfOpenState,
		Interval:    policy.SlidingWindow,
		Timeout:     policy.WaitDurationInOpenState,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			calls := counts.Requests - counts.TotalExclusions
			if calls < policy.MinimumNumberOfCalls {
				return false
			}
			rate := float64(counts.TotalFailures) / float64(calls) * 100
			return rate >= policy.FailureRateThreshold
		},
		IsExcluded: excludedFromBreaker,
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.WithLabelValues(name).Set(stateValue(to))
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
}

// excludedFromBreaker reports outcomes that say nothing about upstream
// health. They are neither successes nor failures and do not use up a
// half-open trial.
func excludedFromBreaker(err error) bool {
	if err == nil {
		return false
	}
	switch geo.KindOf(err) {
	case geo.KindRateLimited, geo.KindInvalidInput:
		return true
	}
	return errors.Is(err, context.Canceled)
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// WithBreaker guards the wrapped call with cb. While cb is open, or
// half-open with no trial calls left, the call fails with a
// geo.KindCircuitOpen error without running.
func WithBreaker[T any](cb *Breaker) Stage[T] {
	return func(next Call[T]) Call[T] {
		return func(ctx context.Context) (T, error) {
			var result T
			_, err := cb.Execute(func() (struct{}, error) {
				v, err := next(ctx)
				result = v
				return struct{}{}, err
			})
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				breakerRejectionsTotal.WithLabelValues(cb.Name()).Inc()
				var zero T
				return zero, geo.CircuitOpen(cb.Name(), err)
			}
			return result, err
		}
	}
}
