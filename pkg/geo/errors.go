package geo

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a lookup failure.
type Kind string

const (
	// KindInvalidInput is a malformed lookup key. Never retried.
	KindInvalidInput Kind = "invalid_input"

	// KindRateLimited means no admission permit was available in time.
	KindRateLimited Kind = "rate_limited"

	// KindCircuitOpen means the circuit breaker rejected the call.
	KindCircuitOpen Kind = "circuit_open"

	// KindUpstream is a non-2xx response from the provider.
	KindUpstream Kind = "upstream"

	// KindDecoding is a 2xx response whose body could not be parsed.
	KindDecoding Kind = "decoding"

	// KindTimeout means the overall lookup deadline passed.
	KindTimeout Kind = "timeout"

	// KindNetwork is a connection level failure.
	KindNetwork Kind = "network"

	// KindUnknown is reported by KindOf for errors outside the taxonomy.
	KindUnknown Kind = "unknown"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrInvalidInput = &Error{Kind: KindInvalidInput}
	ErrRateLimited  = &Error{Kind: KindRateLimited}
	ErrCircuitOpen  = &Error{Kind: KindCircuitOpen}
	ErrUpstream     = &Error{Kind: KindUpstream}
	ErrDecoding     = &Error{Kind: KindDecoding}
	ErrTimeout      = &Error{Kind: KindTimeout}
	ErrNetwork      = &Error{Kind: KindNetwork}
)

// Error is a classified lookup failure.
type Error struct {
	Kind       Kind
	StatusCode int    // upstream HTTP status, KindUpstream only
	Address    string // lookup key, when known
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind. A target with a non-zero
// StatusCode must also match the status.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.StatusCode == 0 || t.StatusCode == e.StatusCode
}

// InvalidInput reports a malformed lookup key.
func InvalidInput(address string) *Error {
	return &Error{Kind: KindInvalidInput, Address: address, Message: "Invalid IP address format"}
}

// RateLimited reports that limiter could not hand out a permit in time.
func RateLimited(limiter string, err error) *Error {
	return &Error{Kind: KindRateLimited, Message: fmt.Sprintf("rate limiter %q: no permit available", limiter), Err: err}
}

// CircuitOpen reports a call rejected by breaker.
func CircuitOpen(breaker string, err error) *Error {
	return &Error{Kind: KindCircuitOpen, Message: fmt.Sprintf("circuit breaker %q rejected call", breaker), Err: err}
}

// Upstream reports a non-2xx provider response.
func Upstream(address string, status int) *Error {
	return &Error{Kind: KindUpstream, Address: address, StatusCode: status, Message: "upstream provider error: " + http.StatusText(status)}
}

// Decoding reports an unparsable 2xx body.
func Decoding(address string, err error) *Error {
	return &Error{Kind: KindDecoding, Address: address, Message: "decode upstream response", Err: err}
}

// Timeout reports that the lookup deadline passed.
func Timeout(address string, err error) *Error {
	return &Error{Kind: KindTimeout, Address: address, Message: "lookup timed out", Err: err}
}

// Network reports a connection level failure.
func Network(address string, err error) *Error {
	return &Error{Kind: KindNetwork, Address: address, Message: "upstream request failed", Err: err}
}

// WithAddress returns err with its Address set to address when err is an
// *Error that does not carry one yet. Any other err is returned unchanged.
func WithAddress(err error, address string) error {
	e, ok := err.(*Error)
	if !ok || e.Address != "" {
		return err
	}
	c := *e
	c.Address = address
	return &c
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StatusOf returns the upstream status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// Retryable reports whether the retry stage may re-issue a call that failed
// with err. Network failures are retryable, as are upstream 5xx and 408
// responses. Every other 4xx, 429 included, is permanent.
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindNetwork:
		return true
	case KindUpstream:
		return e.StatusCode >= 500 || e.StatusCode == http.StatusRequestTimeout
	default:
		return false
	}
}
