package resilience

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/Sternrassler/ipgeo-proxy/pkg/geo"
	"github.com/Sternrassler/ipgeo-proxy/pkg/ratelimit"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func newTestPipeline(cfg Config, retry RetryPolicy, breaker BreakerPolicy, limit ratelimit.Policy) *Pipeline[string] {
	logger := testLogger()
	limiters := ratelimit.NewRegistry(map[string]ratelimit.Policy{cfg.RateLimiterName: limit}, ratelimit.NewLocalFactory(logger))
	breakers := NewBreakerRegistry(map[string]BreakerPolicy{cfg.BreakerName: breaker}, logger)
	retries := NewRetryRegistry(map[string]RetryPolicy{cfg.RetryName: retry})
	return NewPipeline[string](cfg, limiters, breakers, retries, logger)
}

func baseConfig() Config {
	return Config{
		RateLimiterEnabled: false,
		RateLimiterName:    "limiter",
		BreakerName:        "breaker",
		RetryName:          "retry",
		Timeout:            5 * time.Second,
	}
}

func TestChain_Order(t *testing.T) {
	var trace []string
	stage := func(name string) Stage[string] {
		return func(next Call[string]) Call[string] {
			return func(ctx context.Context) (string, error) {
				trace = append(trace, name)
				return next(ctx)
			}
		}
	}

	call := Chain(func(context.Context) (string, error) {
		trace = append(trace, "call")
		return "ok", nil
	}, stage("timeout"), stage("retry"), stage("breaker"), stage("limiter"))

	if _, err := call(context.Background()); err != nil {
		t.Fatalf("call error = %v", err)
	}

	got := strings.Join(trace, ",")
	want := "timeout,retry,breaker,limiter,call"
	if got != want {
		t.Errorf("stage order = %s, want %s", got, want)
	}
}

func TestPipeline_FailOnceThenSucceed(t *testing.T) {
	p := newTestPipeline(baseConfig(),
		RetryPolicy{MaxAttempts: 2, WaitDuration: 10 * time.Millisecond},
		DefaultBreakerPolicy(), ratelimit.DefaultPolicy())

	var calls atomic.Int32
	got, err := p.Execute(context.Background(), func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "", geo.Network("1.1.1.1", errors.New("connection reset"))
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("Execute() = %q, want %q", got, "ok")
	}
	if calls.Load() != 2 {
		t.Errorf("upstream calls = %d, want 2", calls.Load())
	}
}

func TestPipeline_RetryClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCalls int32
	}{
		{
			name:      "too many requests is not retried",
			err:       geo.Upstream("1.1.1.1", 429),
			wantCalls: 1,
		},
		{
			name:      "not found is not retried",
			err:       geo.Upstream("1.1.1.1", 404),
			wantCalls: 1,
		},
		{
			name:      "decoding error is not retried",
			err:       geo.Decoding("1.1.1.1", errors.New("bad json")),
			wantCalls: 1,
		},
		{
			name:      "server error is retried until exhausted",
			err:       geo.Upstream("1.1.1.1", 503),
			wantCalls: 3,
		},
		{
			name:      "network error is retried until exhausted",
			err:       geo.Network("1.1.1.1", errors.New("EOF")),
			wantCalls: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline(baseConfig(),
				RetryPolicy{MaxAttempts: 3, WaitDuration: time.Millisecond},
				DefaultBreakerPolicy(), ratelimit.DefaultPolicy())

			var calls atomic.Int32
			_, err := p.Execute(context.Background(), func(context.Context) (string, error) {
				calls.Add(1)
				return "", tt.err
			})

			if !errors.Is(err, tt.err) {
				t.Errorf("Execute() error = %v, want %v", err, tt.err)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("upstream calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestPipeline_TooManyRequestsKeepsStatus(t *testing.T) {
	p := newTestPipeline(baseConfig(), DefaultRetryPolicy(), DefaultBreakerPolicy(), ratelimit.DefaultPolicy())

	_, err := p.Execute(context.Background(), func(context.Context) (string, error) {
		return "", geo.Upstream("1.1.1.1", 429)
	})

	if geo.KindOf(err) != geo.KindUpstream {
		t.Fatalf("KindOf() = %v, want %v", geo.KindOf(err), geo.KindUpstream)
	}
	if geo.StatusOf(err) != 429 {
		t.Errorf("StatusOf() = %d, want 429", geo.StatusOf(err))
	}
}

func TestPipeline_BreakerOpensAndFailsFast(t *testing.T) {
	p := newTestPipeline(baseConfig(),
		RetryPolicy{MaxAttempts: 1},
		BreakerPolicy{
			FailureRateThreshold:          50,
			MinimumNumberOfCalls:          2,
			SlidingWindow:                 time.Minute,
			WaitDurationInOpenState:       time.Hour,
			PermittedCallsInHalfOpenState: 1,
		}, ratelimit.DefaultPolicy())

	var calls atomic.Int32
	failing := func(context.Context) (string, error) {
		calls.Add(1)
		return "", geo.Upstream("1.1.1.1", 500)
	}

	for i := 0; i < 2; i++ {
		if _, err := p.Execute(context.Background(), failing); !errors.Is(err, geo.ErrUpstream) {
			t.Fatalf("Execute() #%d error = %v, want upstream error", i+1, err)
		}
	}

	_, err := p.Execute(context.Background(), failing)
	if !errors.Is(err, geo.ErrCircuitOpen) {
		t.Fatalf("Execute() error = %v, want circuit open", err)
	}
	if calls.Load() != 2 {
		t.Errorf("upstream calls = %d, want 2", calls.Load())
	}
}

func TestPipeline_BreakerNotRetried(t *testing.T) {
	p := newTestPipeline(baseConfig(),
		RetryPolicy{MaxAttempts: 5, WaitDuration: time.Millisecond},
		BreakerPolicy{
			FailureRateThreshold:          100,
			MinimumNumberOfCalls:          1,
			WaitDurationInOpenState:       time.Hour,
			PermittedCallsInHalfOpenState: 1,
		}, ratelimit.DefaultPolicy())

	var calls atomic.Int32
	_, err := p.Execute(context.Background(), func(context.Context) (string, error) {
		calls.Add(1)
		return "", geo.Network("1.1.1.1", errors.New("refused"))
	})

	// The first attempt trips the breaker; the second attempt is rejected
	// and the rejection ends the retry loop.
	if !errors.Is(err, geo.ErrCircuitOpen) {
		t.Errorf("Execute() error = %v, want circuit open", err)
	}
	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", calls.Load())
	}
}

func TestPipeline_DisabledLimiterNeverThrottles(t *testing.T) {
	cfg := baseConfig()
	cfg.RateLimiterEnabled = false
	p := newTestPipeline(cfg, DefaultRetryPolicy(), DefaultBreakerPolicy(),
		ratelimit.Policy{LimitForPeriod: 1, RefreshPeriod: time.Hour})

	for i := 0; i < 50; i++ {
		if _, err := p.Execute(context.Background(), func(context.Context) (string, error) {
			return "ok", nil
		}); err != nil {
			t.Fatalf("Execute() #%d error = %v", i+1, err)
		}
	}
}

func TestPipeline_EnabledLimiterRejects(t *testing.T) {
	cfg := baseConfig()
	cfg.RateLimiterEnabled = true
	p := newTestPipeline(cfg, RetryPolicy{MaxAttempts: 3}, DefaultBreakerPolicy(),
		ratelimit.Policy{LimitForPeriod: 1, RefreshPeriod: time.Hour})

	var calls atomic.Int32
	call := func(context.Context) (string, error) {
		calls.Add(1)
		return "ok", nil
	}

	if _, err := p.Execute(context.Background(), call); err != nil {
		t.Fatalf("first Execute() error = %v", err)
	}

	_, err := p.Execute(context.Background(), call)
	if !errors.Is(err, geo.ErrRateLimited) {
		t.Errorf("Execute() error = %v, want rate limited", err)
	}
	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", calls.Load())
	}
}

func TestPipeline_RateLimitedTrialDoesNotCloseBreaker(t *testing.T) {
	cfg := baseConfig()
	cfg.RateLimiterEnabled = true
	p := newTestPipeline(cfg, RetryPolicy{MaxAttempts: 1},
		BreakerPolicy{
			FailureRateThreshold:          50,
			MinimumNumberOfCalls:          1,
			WaitDurationInOpenState:       50 * time.Millisecond,
			PermittedCallsInHalfOpenState: 1,
		}, ratelimit.Policy{LimitForPeriod: 1, RefreshPeriod: time.Hour})

	var calls atomic.Int32
	failing := func(context.Context) (string, error) {
		calls.Add(1)
		return "", geo.Upstream("1.1.1.1", 500)
	}

	if _, err := p.Execute(context.Background(), failing); !errors.Is(err, geo.ErrUpstream) {
		t.Fatalf("first Execute() error = %v, want upstream error", err)
	}
	if got := p.breakers.State(cfg.BreakerName); got != gobreaker.StateOpen {
		t.Fatalf("State() = %v, want open", got)
	}

	time.Sleep(80 * time.Millisecond)

	if _, err := p.Execute(context.Background(), failing); !errors.Is(err, geo.ErrRateLimited) {
		t.Fatalf("trial Execute() error = %v, want rate limited", err)
	}
	if got := p.breakers.State(cfg.BreakerName); got == gobreaker.StateClosed {
		t.Errorf("State() = %v, want not closed", got)
	}
	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", calls.Load())
	}
}

func TestPipeline_TimeoutIsHard(t *testing.T) {
	cfg := baseConfig()
	cfg.Timeout = 50 * time.Millisecond
	p := newTestPipeline(cfg, DefaultRetryPolicy(), DefaultBreakerPolicy(), ratelimit.DefaultPolicy())

	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := p.Execute(context.Background(), func(context.Context) (string, error) {
		<-release
		return "late", nil
	})
	elapsed := time.Since(start)

	if !errors.Is(err, geo.ErrTimeout) {
		t.Errorf("Execute() error = %v, want timeout", err)
	}
	if elapsed > time.Second {
		t.Errorf("Execute() returned after %v, want close to 50ms", elapsed)
	}
}

func TestPipeline_TimeoutCoversRetries(t *testing.T) {
	cfg := baseConfig()
	cfg.Timeout = 100 * time.Millisecond
	p := newTestPipeline(cfg,
		RetryPolicy{MaxAttempts: 100, WaitDuration: 40 * time.Millisecond},
		BreakerPolicy{
			FailureRateThreshold:          100,
			MinimumNumberOfCalls:          1000,
			WaitDurationInOpenState:       time.Hour,
			PermittedCallsInHalfOpenState: 1,
		}, ratelimit.DefaultPolicy())

	var calls atomic.Int32
	_, err := p.Execute(context.Background(), func(context.Context) (string, error) {
		calls.Add(1)
		return "", geo.Network("1.1.1.1", errors.New("reset"))
	})

	if !errors.Is(err, geo.ErrTimeout) {
		t.Errorf("Execute() error = %v, want timeout", err)
	}
	if n := calls.Load(); n < 2 || n >= 100 {
		t.Errorf("upstream calls = %d, want a few attempts cut short by the timeout", n)
	}
}

func TestPipeline_CallerCancellation(t *testing.T) {
	p := newTestPipeline(baseConfig(), DefaultRetryPolicy(), DefaultBreakerPolicy(), ratelimit.DefaultPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Execute(ctx, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
}
