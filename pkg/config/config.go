// Package config loads the proxy configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/ipgeo-proxy/pkg/batch"
	"github.com/Sternrassler/ipgeo-proxy/pkg/cache"
	"github.com/Sternrassler/ipgeo-proxy/pkg/logging"
	"github.com/Sternrassler/ipgeo-proxy/pkg/provider"
	"github.com/Sternrassler/ipgeo-proxy/pkg/ratelimit"
	"github.com/Sternrassler/ipgeo-proxy/pkg/resilience"
)

// DefaultPath is read when no path is given.
const DefaultPath = "config.yaml"

// Config is the complete proxy configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Cache        CacheConfig        `yaml:"cache"`
	Backpressure BackpressureConfig `yaml:"backpressure"`
	Batch        BatchConfig        `yaml:"batch"`
	FreeIPAPI    FreeIPAPIConfig    `yaml:"freeipapi"`
	Resilience   ResilienceConfig   `yaml:"resilience"`
	Redis        RedisConfig        `yaml:"redis"`
}

// ServerConfig configures the inbound HTTP server.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	TTLDays int `yaml:"ttl_days"`
	MaxSize int `yaml:"max_size"`
}

// BackpressureConfig controls what throttled clients are told.
type BackpressureConfig struct {
	RetryAfterSeconds int `yaml:"retry_after_seconds"`
}

// BatchConfig configures batch lookups.
type BatchConfig struct {
	MaxConcurrency int `yaml:"max_concurrency"`
	MaxItems       int `yaml:"max_items"`
}

// FreeIPAPIConfig configures the upstream provider and selects the named
// resilience policies applied to it.
type FreeIPAPIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Timeout        time.Duration `yaml:"timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	UserAgent      string        `yaml:"user_agent"`

	RateLimiter    RateLimiterRef `yaml:"ratelimiter"`
	Retry          NamedRef       `yaml:"retry"`
	CircuitBreaker NamedRef       `yaml:"circuitbreaker"`
}

// RateLimiterRef selects a limiter policy and switches the stage on or off.
type RateLimiterRef struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
}

// NamedRef selects a named policy.
type NamedRef struct {
	Name string `yaml:"name"`
}

// ResilienceConfig holds the named policies.
type ResilienceConfig struct {
	RateLimiters    map[string]ratelimit.Policy         `yaml:"ratelimiters"`
	Retries         map[string]resilience.RetryPolicy   `yaml:"retries"`
	CircuitBreakers map[string]resilience.BreakerPolicy `yaml:"circuitbreakers"`
}

// RedisConfig configures the optional shared rate limit store.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: string(logging.LevelInfo),
		},
		Cache: CacheConfig{
			TTLDays: 1,
			MaxSize: cache.DefaultMaxSize,
		},
		Backpressure: BackpressureConfig{
			RetryAfterSeconds: 5,
		},
		Batch: BatchConfig{
			MaxConcurrency: batch.DefaultConfig().MaxConcurrency,
			MaxItems:       batch.DefaultConfig().MaxItems,
		},
		FreeIPAPI: FreeIPAPIConfig{
			BaseURL:        provider.DefaultConfig().BaseURL,
			Timeout:        5 * time.Second,
			ConnectTimeout: 2 * time.Second,
			UserAgent:      provider.DefaultConfig().UserAgent,
			RateLimiter:    RateLimiterRef{Enabled: true, Name: "geoApiLimiter"},
			Retry:          NamedRef{Name: "geoApiRetry"},
			CircuitBreaker: NamedRef{Name: "geoApiBreaker"},
		},
		Resilience: ResilienceConfig{
			RateLimiters: map[string]ratelimit.Policy{
				"geoApiLimiter": {LimitForPeriod: 60, RefreshPeriod: time.Minute, Timeout: time.Second},
			},
			Retries: map[string]resilience.RetryPolicy{
				"geoApiRetry": resilience.DefaultRetryPolicy(),
			},
			CircuitBreakers: map[string]resilience.BreakerPolicy{
				"geoApiBreaker": resilience.DefaultBreakerPolicy(),
			},
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
	}
}

// Load reads path on top of the defaults, applies environment overrides
// and validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("IPGEO_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("IPGEO_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("IPGEO_LOG_PRETTY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("IPGEO_LOG_PRETTY: %w", err)
		}
		c.Logging.Pretty = b
	}
	if v := os.Getenv("IPGEO_BASE_URL"); v != "" {
		c.FreeIPAPI.BaseURL = v
	}
	if v := os.Getenv("IPGEO_RATELIMITER_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("IPGEO_RATELIMITER_ENABLED: %w", err)
		}
		c.FreeIPAPI.RateLimiter.Enabled = b
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.Enabled = true
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		c.Redis.DB = db
	}
	return nil
}

func (c *Config) normalize() {
	c.FreeIPAPI.BaseURL = strings.TrimRight(strings.TrimSpace(c.FreeIPAPI.BaseURL), "/")
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Addr == "" {
		add("server.addr must not be empty")
	}
	if c.Server.ShutdownTimeout < 0 {
		add("server.shutdown_timeout must not be negative")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level: %v", err)
	}
	if c.Cache.TTLDays <= 0 {
		add("cache.ttl_days must be positive, got %d", c.Cache.TTLDays)
	}
	if c.Cache.MaxSize <= 0 {
		add("cache.max_size must be positive, got %d", c.Cache.MaxSize)
	}
	if c.Backpressure.RetryAfterSeconds < 0 {
		add("backpressure.retry_after_seconds must not be negative, got %d", c.Backpressure.RetryAfterSeconds)
	}
	if c.Batch.MaxConcurrency <= 0 {
		add("batch.max_concurrency must be positive, got %d", c.Batch.MaxConcurrency)
	}
	if c.Batch.MaxItems <= 0 {
		add("batch.max_items must be positive, got %d", c.Batch.MaxItems)
	}

	api := c.FreeIPAPI
	if strings.TrimSpace(api.BaseURL) == "" {
		add("freeipapi.base_url must not be blank")
	}
	if api.Timeout <= 0 {
		add("freeipapi.timeout must be positive, got %s", api.Timeout)
	}
	if api.ConnectTimeout <= 0 {
		add("freeipapi.connect_timeout must be positive, got %s", api.ConnectTimeout)
	}
	if strings.TrimSpace(api.RateLimiter.Name) == "" {
		add("freeipapi.ratelimiter.name must not be blank")
	}
	if strings.TrimSpace(api.Retry.Name) == "" {
		add("freeipapi.retry.name must not be blank")
	}
	if strings.TrimSpace(api.CircuitBreaker.Name) == "" {
		add("freeipapi.circuitbreaker.name must not be blank")
	}

	for name, p := range c.Resilience.RateLimiters {
		if err := p.Validate(); err != nil {
			add("resilience.ratelimiters.%s: %v", name, err)
		}
	}
	for name, p := range c.Resilience.Retries {
		if err := p.Validate(); err != nil {
			add("resilience.retries.%s: %v", name, err)
		}
	}
	for name, p := range c.Resilience.CircuitBreakers {
		if err := p.Validate(); err != nil {
			add("resilience.circuitbreakers.%s: %v", name, err)
		}
	}

	if c.Redis.Enabled && strings.TrimSpace(c.Redis.Addr) == "" {
		add("redis.addr must not be empty when redis is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// CacheTTL returns the cache TTL as a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLDays) * 24 * time.Hour
}

// ResultCache returns the result cache configuration.
func (c Config) ResultCache() cache.Config {
	return cache.Config{TTL: c.CacheTTL(), MaxSize: c.Cache.MaxSize}
}

// Provider returns the upstream client configuration.
func (c Config) Provider() provider.Config {
	return provider.Config{
		BaseURL:        c.FreeIPAPI.BaseURL,
		Timeout:        c.FreeIPAPI.Timeout,
		ConnectTimeout: c.FreeIPAPI.ConnectTimeout,
		UserAgent:      c.FreeIPAPI.UserAgent,
	}
}

// Pipeline returns the per-call resilience snapshot.
func (c Config) Pipeline() resilience.Config {
	return resilience.Config{
		RateLimiterEnabled: c.FreeIPAPI.RateLimiter.Enabled,
		RateLimiterName:    c.FreeIPAPI.RateLimiter.Name,
		BreakerName:        c.FreeIPAPI.CircuitBreaker.Name,
		RetryName:          c.FreeIPAPI.Retry.Name,
		Timeout:            c.FreeIPAPI.Timeout,
		ConnectTimeout:     c.FreeIPAPI.ConnectTimeout,
	}
}

// BatchLocator returns the batch configuration.
func (c Config) BatchLocator() batch.Config {
	return batch.Config{MaxConcurrency: c.Batch.MaxConcurrency, MaxItems: c.Batch.MaxItems}
}

// Logger returns the logging configuration.
func (c Config) Logger() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Logging.Level)
	cfg.Pretty = c.Logging.Pretty
	return cfg
}

// RedisOptions returns client options. Addr may be a host:port pair or a
// redis:// URL.
func (c Config) RedisOptions() (*redis.Options, error) {
	addr := strings.TrimSpace(c.Redis.Addr)
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		if c.Redis.Password != "" {
			opts.Password = c.Redis.Password
		}
		if c.Redis.DB != 0 {
			opts.DB = c.Redis.DB
		}
		return opts, nil
	}
	return &redis.Options{
		Addr:     addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}, nil
}
