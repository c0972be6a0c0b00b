package ratelimit

import (
	"fmt"
	"time"
)

// Policy describes one named limiter.
type Policy struct {
	// LimitForPeriod is the number of permits per refresh period.
	LimitForPeriod int `yaml:"limit_for_period"`

	// RefreshPeriod is the length of one permit period.
	RefreshPeriod time.Duration `yaml:"limit_refresh_period"`

	// Timeout is how long a caller may wait for a permit.
	// Zero means fail immediately when no permit is free.
	Timeout time.Duration `yaml:"timeout_duration"`
}

// DefaultPolicy returns one permit per second with a five second wait.
func DefaultPolicy() Policy {
	return Policy{
		LimitForPeriod: 1,
		RefreshPeriod:  time.Second,
		Timeout:        5 * time.Second,
	}
}

// Validate checks that the policy can be enforced.
func (p Policy) Validate() error {
	if p.LimitForPeriod < 1 {
		return fmt.Errorf("limit_for_period must be at least 1, got %d", p.LimitForPeriod)
	}
	if p.RefreshPeriod < time.Millisecond {
		return fmt.Errorf("limit_refresh_period must be at least 1ms, got %s", p.RefreshPeriod)
	}
	if p.Timeout < 0 {
		return fmt.Errorf("timeout_duration must not be negative, got %s", p.Timeout)
	}
	return nil
}

// Interval returns the average spacing between permits.
func (p Policy) Interval() time.Duration {
	return p.RefreshPeriod / time.Duration(p.LimitForPeriod)
}
