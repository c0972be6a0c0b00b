package resilience

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/ipgeo-proxy/pkg/ratelimit"
)

// Call is one invocation of a protected operation.
type Call[T any] func(ctx context.Context) (T, error)

// Stage decorates a call with one protective behavior.
type Stage[T any] func(next Call[T]) Call[T]

// Chain applies stages to call. The first stage is the outermost.
func Chain[T any](call Call[T], stages ...Stage[T]) Call[T] {
	for i := len(stages) - 1; i >= 0; i-- {
		call = stages[i](call)
	}
	return call
}

// Pipeline composes timeout, retry, circuit breaker and rate limiter
// around calls that produce a T.
type Pipeline[T any] struct {
	cfg      Config
	limiters *ratelimit.Registry
	breakers *BreakerRegistry
	retries  *RetryRegistry
	logger   zerolog.Logger
}

// NewPipeline creates a pipeline. limiters may be nil when the rate
// limiter is disabled.
func NewPipeline[T any](cfg Config, limiters *ratelimit.Registry, breakers *BreakerRegistry, retries *RetryRegistry, logger zerolog.Logger) *Pipeline[T] {
	return &Pipeline[T]{
		cfg:      cfg,
		limiters: limiters,
		breakers: breakers,
		retries:  retries,
		logger:   logger,
	}
}

// Config returns the pipeline's configuration.
func (p *Pipeline[T]) Config() Config {
	return p.cfg
}

// Execute runs call through every stage.
func (p *Pipeline[T]) Execute(ctx context.Context, call Call[T]) (T, error) {
	cfg := p.cfg

	var limiter ratelimit.Limiter
	if cfg.RateLimiterEnabled && p.limiters != nil {
		limiter = p.limiters.Get(cfg.RateLimiterName)
	}

	return Chain(call,
		WithTimeout[T](cfg.Timeout),
		WithRetry[T](cfg.RetryName, p.retries.Get(cfg.RetryName), p.logger),
		WithBreaker[T](p.breakers.Get(cfg.BreakerName)),
		WithRateLimit[T](limiter),
	)(ctx)
}
