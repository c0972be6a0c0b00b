package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/Sternrassler/ipgeo-proxy/internal/testutil"
	"github.com/Sternrassler/ipgeo-proxy/pkg/config"
	"github.com/Sternrassler/ipgeo-proxy/pkg/geo"
	"github.com/Sternrassler/ipgeo-proxy/pkg/resilience"
)

func testConfig(baseURL string) config.Config {
	cfg := config.Default()
	cfg.FreeIPAPI.BaseURL = baseURL
	cfg.Resilience.Retries[cfg.FreeIPAPI.Retry.Name] = resilience.RetryPolicy{
		MaxAttempts:  3,
		WaitDuration: 10 * time.Millisecond,
	}
	return cfg
}

func newTestClient(t *testing.T, cfg config.Config) *Client {
	t.Helper()
	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{"defaults", func(*config.Config) {}, false},
		{"blank base url", func(c *config.Config) { c.FreeIPAPI.BaseURL = "" }, true},
		{"zero cache size", func(c *config.Config) { c.Cache.MaxSize = 0 }, true},
		{"zero timeout", func(c *config.Config) { c.FreeIPAPI.Timeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)

			c, err := New(cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if c != nil {
				c.Close()
			}
		})
	}
}

func TestClient_LocateAndCache(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()

	c := newTestClient(t, testConfig(mock.URL()))
	ctx := context.Background()

	first, err := c.Locate(ctx, "136.159.0.0")
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if first.City != "Calgary" || first.Country != "Canada" {
		t.Errorf("Locate() = %+v, want Calgary, Canada", first)
	}

	second, err := c.Locate(ctx, "136.159.0.0")
	if err != nil {
		t.Fatalf("second Locate() error = %v", err)
	}
	if !second.Equal(first) {
		t.Errorf("cached result = %+v, want %+v", second, first)
	}

	if mock.RequestCount() != 1 {
		t.Errorf("upstream requests = %d, want 1", mock.RequestCount())
	}
	if c.CachedEntries() != 1 {
		t.Errorf("CachedEntries() = %d, want 1", c.CachedEntries())
	}
}

func TestClient_LocateInvalid(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()

	c := newTestClient(t, testConfig(mock.URL()))

	_, err := c.Locate(context.Background(), "not-an-ip")
	if !errors.Is(err, geo.ErrInvalidInput) {
		t.Fatalf("Locate() error = %v, want invalid input", err)
	}
	if mock.RequestCount() != 0 {
		t.Errorf("upstream requests = %d, want 0", mock.RequestCount())
	}
}

func TestClient_RetriesServerError(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.Enqueue(testutil.NewServerErrorResponse())

	c := newTestClient(t, testConfig(mock.URL()))

	if _, err := c.Locate(context.Background(), "136.159.0.0"); err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if mock.RequestCount() != 2 {
		t.Errorf("upstream requests = %d, want 2", mock.RequestCount())
	}
}

func TestClient_LocateAll(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("8.8.8.8", testutil.NewGeoResponse(`{"ipAddress":"8.8.8.8","countryName":"United States"}`))

	c := newTestClient(t, testConfig(mock.URL()))

	items, err := c.LocateAll(context.Background(), []string{"136.159.0.0", "bogus", "8.8.8.8"})
	if err != nil {
		t.Fatalf("LocateAll() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}
	if items[0].Result == nil || items[0].Result.City != "Calgary" {
		t.Errorf("items[0] = %+v, want Calgary", items[0])
	}
	if !errors.Is(items[1].Err, geo.ErrInvalidInput) {
		t.Errorf("items[1].Err = %v, want invalid input", items[1].Err)
	}
	if items[2].Result == nil || items[2].Result.Country != "United States" {
		t.Errorf("items[2] = %+v, want United States", items[2])
	}
	if c.MaxBatchItems() != config.Default().Batch.MaxItems {
		t.Errorf("MaxBatchItems() = %d", c.MaxBatchItems())
	}
}

func TestClient_Ping(t *testing.T) {
	c := newTestClient(t, config.Default())
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping() without redis = %v, want nil", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	withRedis, err := New(config.Default(), rdb)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer withRedis.Close()

	if err := withRedis.Ping(context.Background()); err == nil {
		t.Error("Ping() with unreachable redis = nil, want error")
	}
}

func TestClient_BreakerState(t *testing.T) {
	c := newTestClient(t, config.Default())
	if got := c.BreakerState(); got != gobreaker.StateClosed {
		t.Errorf("BreakerState() = %v, want closed", got)
	}
	if c.Config().FreeIPAPI.CircuitBreaker.Name != "geoApiBreaker" {
		t.Errorf("Config() breaker name = %q", c.Config().FreeIPAPI.CircuitBreaker.Name)
	}
}
