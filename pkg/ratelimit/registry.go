package ratelimit

import (
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Factory builds the limiter for a named policy.
type Factory func(name string, policy Policy) Limiter

// NewLocalFactory returns a factory for in-process limiters.
func NewLocalFactory(logger zerolog.Logger) Factory {
	return func(name string, policy Policy) Limiter {
		return NewLocal(name, policy, logger)
	}
}

// NewRedisFactory returns a factory for limiters shared through Redis.
func NewRedisFactory(redisClient *redis.Client, logger zerolog.Logger) Factory {
	return func(name string, policy Policy) Limiter {
		return NewRedis(name, policy, redisClient, logger)
	}
}

// Registry resolves limiter names to limiters. Limiters are built on first
// use and reused afterwards, so every caller of a name shares one budget.
// Names without a configured policy get DefaultPolicy.
type Registry struct {
	policies map[string]Policy
	factory  Factory

	mu       sync.Mutex
	limiters map[string]Limiter
}

// NewRegistry creates a registry over the given policies.
func NewRegistry(policies map[string]Policy, factory Factory) *Registry {
	p := make(map[string]Policy, len(policies))
	for name, policy := range policies {
		p[name] = policy
	}
	return &Registry{
		policies: p,
		factory:  factory,
		limiters: make(map[string]Limiter),
	}
}

// Policy returns the policy configured for name, or DefaultPolicy.
func (r *Registry) Policy(name string) Policy {
	if p, ok := r.policies[name]; ok {
		return p
	}
	return DefaultPolicy()
}

// Get returns the limiter for name.
func (r *Registry) Get(name string) Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[name]; ok {
		return l
	}
	l := r.factory(name, r.Policy(name))
	r.limiters[name] = l
	return l
}
