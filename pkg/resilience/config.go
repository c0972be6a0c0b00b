package resilience

import (
	"fmt"
	"time"
)

// Config is the per-call configuration snapshot of a pipeline.
type Config struct {
	// RateLimiterEnabled turns the admission control stage on.
	RateLimiterEnabled bool

	// RateLimiterName selects the limiter policy.
	RateLimiterName string

	// BreakerName selects the circuit breaker.
	BreakerName string

	// RetryName selects the retry policy.
	RetryName string

	// Timeout bounds the whole call including retries. Zero disables it.
	Timeout time.Duration

	// ConnectTimeout bounds connection setup of one attempt. It is
	// enforced by the provider transport.
	ConnectTimeout time.Duration
}

// RetryPolicy is a named retry policy.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts, the first included.
	MaxAttempts int `yaml:"max_attempts"`

	// WaitDuration is the fixed pause between attempts.
	WaitDuration time.Duration `yaml:"wait_duration"`
}

// DefaultRetryPolicy returns three attempts half a second apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		WaitDuration: 500 * time.Millisecond,
	}
}

// Validate checks the policy.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.WaitDuration < 0 {
		return fmt.Errorf("wait_duration must not be negative, got %s", p.WaitDuration)
	}
	return nil
}

// BreakerPolicy is a named circuit breaker policy.
type BreakerPolicy struct {
	// FailureRateThreshold is the failure percentage (0-100] at which the
	// breaker opens.
	FailureRateThreshold float64 `yaml:"failure_rate_threshold"`

	// MinimumNumberOfCalls is the number of calls in the current window
	// before the failure rate is evaluated.
	MinimumNumberOfCalls uint32 `yaml:"minimum_number_of_calls"`

	// SlidingWindow is the period after which closed-state counts reset.
	SlidingWindow time.Duration `yaml:"sliding_window"`

	// WaitDurationInOpenState is how long the breaker stays open before
	// allowing trial calls.
	WaitDurationInOpenState time.Duration `yaml:"wait_duration_in_open_state"`

	// PermittedCallsInHalfOpenState is the number of trial calls allowed
	// while half-open.
	PermittedCallsInHalfOpenState uint32 `yaml:"permitted_calls_in_half_open_state"`
}

// DefaultBreakerPolicy returns a breaker that opens at 50% failures over
// at least ten calls and allows trial calls again after thirty seconds.
func DefaultBreakerPolicy() BreakerPolicy {
	return BreakerPolicy{
		FailureRateThreshold:          50,
		MinimumNumberOfCalls:          10,
		SlidingWindow:                 time.Minute,
		WaitDurationInOpenState:       30 * time.Second,
		PermittedCallsInHalfOpenState: 3,
	}
}

// Validate checks the policy.
func (p BreakerPolicy) Validate() error {
	if p.FailureRateThreshold <= 0 || p.FailureRateThreshold > 100 {
		return fmt.Errorf("failure_rate_threshold must be in (0, 100], got %v", p.FailureRateThreshold)
	}
	if p.MinimumNumberOfCalls < 1 {
		return fmt.Errorf("minimum_number_of_calls must be at least 1")
	}
	if p.SlidingWindow < 0 {
		return fmt.Errorf("sliding_window must not be negative, got %s", p.SlidingWindow)
	}
	if p.WaitDurationInOpenState <= 0 {
		return fmt.Errorf("wait_duration_in_open_state must be positive, got %s", p.WaitDurationInOpenState)
	}
	if p.PermittedCallsInHalfOpenState < 1 {
		return fmt.Errorf("permitted_calls_in_half_open_state must be at least 1")
	}
	return nil
}
