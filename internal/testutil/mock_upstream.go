// Package testutil provides testing utilities for the geolocation proxy.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for one mock upstream response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration

	// Hold blocks the response until the channel is closed.
	Hold <-chan struct{}

	// Disconnect closes the connection without writing a response.
	Disconnect bool
}

// MockUpstream is a configurable mock geolocation API for testing.
//
// Responses are taken from a FIFO queue first; when the queue is empty a
// per-address response is used if set, otherwise the default response.
type MockUpstream struct {
	server *httptest.Server

	mu        sync.Mutex
	queue     []MockResponse
	addresses map[string]MockResponse
	fallback  MockResponse

	requestCount      int
	paths             []string
	lastRequestHeader http.Header
}

// NewMockUpstream creates a new mock upstream server that answers every
// address with a Calgary result by default.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		addresses: make(map[string]MockResponse),
		fallback:  NewGeoResponse(CalgaryJSON),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.CloseClientConnections()
	m.server.Close()
}

// Reset clears queued responses and tracking counters.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = nil
	m.requestCount = 0
	m.paths = nil
	m.lastRequestHeader = nil
}

// Enqueue appends responses that are served once each, in order.
func (m *MockUpstream) Enqueue(resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, resps...)
}

// SetResponse configures the response for one address.
func (m *MockUpstream) SetResponse(address string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addresses[address] = resp
}

// SetDefault configures the response used when nothing else matches.
func (m *MockUpstream) SetDefault(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = resp
}

// RequestCount returns the number of requests made to the server.
func (m *MockUpstream) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// Paths returns the request paths in arrival order.
func (m *MockUpstream) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.paths...)
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockUpstream) LastRequestHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequestHeader
}

func (m *MockUpstream) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requestCount++
	m.paths = append(m.paths, r.URL.Path)
	m.lastRequestHeader = r.Header.Clone()

	var resp MockResponse
	if len(m.queue) > 0 {
		resp = m.queue[0]
		m.queue = m.queue[1:]
	} else if byAddr, ok := m.addresses[strings.TrimPrefix(r.URL.Path, "/")]; ok {
		resp = byAddr
	} else {
		resp = m.fallback
	}
	m.mu.Unlock()

	if resp.Hold != nil {
		select {
		case <-resp.Hold:
		case <-r.Context().Done():
			return
		}
	}

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	if resp.Disconnect {
		hj, ok := w.(http.Hijacker)
		if !ok {
			panic("testutil: response writer does not support hijacking")
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
		return
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// CalgaryJSON is the provider body for 136.159.0.0.
const CalgaryJSON = `{
  "ipVersion": 4,
  "ipAddress": "136.159.0.0",
  "latitude": 51.075153,
  "longitude": -114.12841,
  "countryName": "Canada",
  "countryCode": "CA",
  "zipCode": "T3A 0E2",
  "cityName": "Calgary",
  "regionName": "Alberta",
  "continent": "Americas",
  "continentCode": "AM"
}`

// NewGeoResponse creates a 200 OK JSON response.
func NewGeoResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
			"Retry-After":  "60",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewDisconnectResponse drops the connection without answering.
func NewDisconnectResponse() MockResponse {
	return MockResponse{Disconnect: true}
}
