package geo

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "network error should retry",
			err:      Network("1.1.1.1", errors.New("connection reset")),
			expected: true,
		},
		{
			name:     "server error should retry",
			err:      Upstream("1.1.1.1", 503),
			expected: true,
		},
		{
			name:     "request timeout should retry",
			err:      Upstream("1.1.1.1", 408),
			expected: true,
		},
		{
			name:     "too many requests should not retry",
			err:      Upstream("1.1.1.1", 429),
			expected: false,
		},
		{
			name:     "not found should not retry",
			err:      Upstream("1.1.1.1", 404),
			expected: false,
		},
		{
			name:     "invalid input should not retry",
			err:      InvalidInput("nope"),
			expected: false,
		},
		{
			name:     "circuit open should not retry",
			err:      CircuitOpen("geoApiBreaker", nil),
			expected: false,
		},
		{
			name:     "rate limited should not retry",
			err:      RateLimited("geoApiLimiter", nil),
			expected: false,
		},
		{
			name:     "decoding error should not retry",
			err:      Decoding("1.1.1.1", errors.New("bad json")),
			expected: false,
		},
		{
			name:     "timeout should not retry",
			err:      Timeout("1.1.1.1", context.DeadlineExceeded),
			expected: false,
		},
		{
			name:     "wrapped network error should retry",
			err:      fmt.Errorf("attempt 1: %w", Network("1.1.1.1", errors.New("EOF"))),
			expected: true,
		},
		{
			name:     "plain error should not retry",
			err:      errors.New("boom"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.expected {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "invalid input",
			err:      InvalidInput("not-an-ip"),
			expected: "Invalid IP address format",
		},
		{
			name:     "upstream with status",
			err:      Upstream("1.2.3.4", 429),
			expected: "upstream provider error: Too Many Requests (status 429)",
		},
		{
			name:     "wrapped cause",
			err:      Network("1.2.3.4", errors.New("EOF")),
			expected: "upstream request failed: EOF",
		},
		{
			name:     "kind only",
			err:      &Error{Kind: KindTimeout},
			expected: "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	err := fmt.Errorf("lookup: %w", Upstream("1.2.3.4", 429))

	if !errors.Is(err, ErrUpstream) {
		t.Error("expected errors.Is to match ErrUpstream")
	}
	if !errors.Is(err, &Error{Kind: KindUpstream, StatusCode: 429}) {
		t.Error("expected errors.Is to match kind and status")
	}
	if errors.Is(err, &Error{Kind: KindUpstream, StatusCode: 500}) {
		t.Error("expected errors.Is not to match a different status")
	}
	if errors.Is(err, ErrNetwork) {
		t.Error("expected errors.Is not to match a different kind")
	}
}

func TestError_Unwrap(t *testing.T) {
	err := Timeout("1.2.3.4", context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected wrapped context.DeadlineExceeded")
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(RateLimited("l", nil)); got != KindRateLimited {
		t.Errorf("KindOf() = %v, want %v", got, KindRateLimited)
	}
	if got := KindOf(errors.New("x")); got != KindUnknown {
		t.Errorf("KindOf() = %v, want %v", got, KindUnknown)
	}
	if got := StatusOf(Upstream("a", 502)); got != 502 {
		t.Errorf("StatusOf() = %d, want 502", got)
	}
}

func TestWithAddress(t *testing.T) {
	timeout := Timeout("", context.DeadlineExceeded)

	got := WithAddress(timeout, "8.8.8.8")
	var e *Error
	if !errors.As(got, &e) {
		t.Fatalf("WithAddress() = %T, want *Error", got)
	}
	if e.Address != "8.8.8.8" {
		t.Errorf("Address = %q, want %q", e.Address, "8.8.8.8")
	}
	if !errors.Is(got, ErrTimeout) || !errors.Is(got, context.DeadlineExceeded) {
		t.Errorf("WithAddress() = %v, lost kind or cause", got)
	}
	if timeout.Address != "" {
		t.Errorf("original Address = %q, want it untouched", timeout.Address)
	}

	keep := Upstream("1.1.1.1", 500)
	if got := WithAddress(keep, "8.8.8.8"); got != error(keep) {
		t.Errorf("WithAddress() replaced an existing address: %v", got)
	}

	plain := context.Canceled
	if got := WithAddress(plain, "8.8.8.8"); got != plain {
		t.Errorf("WithAddress() = %v, want the plain error unchanged", got)
	}
}
