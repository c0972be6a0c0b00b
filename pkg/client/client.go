// Package client assembles the geolocation lookup stack from a
// configuration: result cache, upstream provider, resilience pipeline,
// coalescing locator and batch locator.
package client

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/Sternrassler/ipgeo-proxy/pkg/batch"
	"github.com/Sternrassler/ipgeo-proxy/pkg/cache"
	"github.com/Sternrassler/ipgeo-proxy/pkg/config"
	"github.com/Sternrassler/ipgeo-proxy/pkg/geo"
	"github.com/Sternrassler/ipgeo-proxy/pkg/logging"
	"github.com/Sternrassler/ipgeo-proxy/pkg/lookup"
	"github.com/Sternrassler/ipgeo-proxy/pkg/provider"
	"github.com/Sternrassler/ipgeo-proxy/pkg/ratelimit"
	"github.com/Sternrassler/ipgeo-proxy/pkg/resilience"
)

// Client is the assembled lookup service.
type Client struct {
	config   config.Config
	redis    *redis.Client
	cache    *cache.ResultCache
	provider *provider.Client
	breakers *resilience.BreakerRegistry
	locator  *lookup.Locator
	batch    *batch.Locator
	logger   zerolog.Logger
}

// New wires a client. When redisClient is non-nil the upstream rate
// limiters keep their state in Redis and are shared by every replica
// using the same server; otherwise they are process local.
func New(cfg config.Config, redisClient *redis.Client) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.NewLogger("ipgeo-client")

	upstream, err := provider.New(cfg.Provider(), logging.NewLogger("provider"))
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}

	factory := ratelimit.NewLocalFactory(logging.NewLogger("ratelimit"))
	if redisClient != nil {
		factory = ratelimit.NewRedisFactory(redisClient, logging.NewLogger("ratelimit"))
	}
	limiters := ratelimit.NewRegistry(cfg.Resilience.RateLimiters, factory)

	resilienceLogger := logging.NewLogger("pipeline")
	breakers := resilience.NewBreakerRegistry(cfg.Resilience.CircuitBreakers, resilienceLogger)
	retries := resilience.NewRetryRegistry(cfg.Resilience.Retries)
	pipeline := resilience.NewPipeline[geo.Result](cfg.Pipeline(), limiters, breakers, retries, resilienceLogger)

	results := cache.New(cfg.ResultCache())
	locator := lookup.New(results, upstream, pipeline, logging.NewLogger("lookup"))

	logger.Info().
		Str("base_url", upstream.BaseURL()).
		Bool("rate_limiter", cfg.FreeIPAPI.RateLimiter.Enabled).
		Bool("shared_limits", redisClient != nil).
		Dur("cache_ttl", results.TTL()).
		Msg("Lookup stack ready")

	return &Client{
		config:   cfg,
		redis:    redisClient,
		cache:    results,
		provider: upstream,
		breakers: breakers,
		locator:  locator,
		batch:    batch.New(locator, cfg.BatchLocator(), logging.NewLogger("batch")),
		logger:   logger,
	}, nil
}

// Locate resolves one address.
func (c *Client) Locate(ctx context.Context, address string) (geo.Result, error) {
	return c.locator.Locate(ctx, address)
}

// LocateAll resolves many addresses; see batch.Locator.
func (c *Client) LocateAll(ctx context.Context, addresses []string) ([]batch.Item, error) {
	return c.batch.LocateAll(ctx, addresses)
}

// Ping reports whether the client's dependencies are reachable. Without
// Redis there is nothing to check.
func (c *Client) Ping(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// BreakerState returns the state of the upstream circuit breaker.
func (c *Client) BreakerState() gobreaker.State {
	return c.breakers.State(c.config.FreeIPAPI.CircuitBreaker.Name)
}

// Config returns the configuration the client was built from.
func (c *Client) Config() config.Config {
	return c.config
}

// MaxBatchItems returns the batch size limit.
func (c *Client) MaxBatchItems() int {
	return c.batch.MaxItems()
}

// CachedEntries returns the number of cached results.
func (c *Client) CachedEntries() int {
	return c.cache.Len()
}

// Close releases upstream connections. The Redis client belongs to the
// caller and is left open.
func (c *Client) Close() error {
	c.provider.Close()
	return nil
}
