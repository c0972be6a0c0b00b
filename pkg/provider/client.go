// Package provider talks to the upstream IP geolocation API.
//
// A Client performs exactly one HTTP round trip per Fetch. It does not
// cache, retry or rate limit; those concerns belong to the caller.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/ipgeo-proxy/pkg/geo"
)

const (
	// maxSnippet is the number of error body characters kept for logs.
	maxSnippet = 512

	// maxErrorBody bounds how much of an error body is read.
	maxErrorBody = 64 << 10

	// maxBody bounds how much of a success body is decoded.
	maxBody = 1 << 20
)

// Config holds the upstream client configuration.
type Config struct {
	// BaseURL is the provider root, e.g. "https://freeipapi.com/api/json".
	// A trailing slash is ignored.
	BaseURL string

	// Timeout bounds one round trip including reading the response.
	Timeout time.Duration

	// ConnectTimeout bounds connection setup.
	ConnectTimeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string
}

// DefaultConfig returns the configuration for the public freeipapi.com
// endpoint.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://freeipapi.com/api/json",
		Timeout:        5 * time.Second,
		ConnectTimeout: 2 * time.Second,
		UserAgent:      "ipgeo-proxy/1.0",
	}
}

// Client fetches geolocation data from the upstream provider.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a provider client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultConfig().UserAgent
	}

	return &Client{
		httpClient: NewHTTPClient(cfg),
		config:     cfg,
		logger:     logger,
	}, nil
}

// NewHTTPClient builds the outbound HTTP client with the configured
// connect and response timeouts.
func NewHTTPClient(cfg Config) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.Timeout,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// BaseURL returns the normalized provider root.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Close releases idle upstream connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Fetch issues GET {BaseURL}/{address} and maps the response to a result.
// The address is used verbatim; validation is the caller's job.
func (c *Client) Fetch(ctx context.Context, address string) (geo.Result, error) {
	start := time.Now()
	defer func() {
		upstreamRequestDuration.Observe(time.Since(start).Seconds())
	}()

	endpoint := c.config.BaseURL + "/" + url.PathEscape(address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return geo.Result{}, c.fail(geo.Network(address, fmt.Errorf("create request: %w", err)))
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("address", address).
		Str("url", endpoint).
		Msg("Fetching geolocation")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		upstreamRequestsTotal.WithLabelValues("network_error").Inc()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return geo.Result{}, c.fail(geo.Timeout(address, err))
		}
		c.logger.Warn().Err(err).Str("address", address).Msg("Upstream request failed")
		return geo.Result{}, c.fail(geo.Network(address, err))
	}
	defer resp.Body.Close()

	upstreamRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn().
			Str("address", address).
			Int("status_code", resp.StatusCode).
			Str("body", truncate(string(body))).
			Msg("Upstream returned error status")
		return geo.Result{}, c.fail(geo.Upstream(address, resp.StatusCode))
	}

	var dto response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&dto); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return geo.Result{}, c.fail(geo.Timeout(address, err))
		}
		c.logger.Warn().Err(err).Str("address", address).Msg("Undecodable upstream response")
		return geo.Result{}, c.fail(geo.Decoding(address, err))
	}

	return dto.toResult(address), nil
}

func (c *Client) fail(err *geo.Error) error {
	upstreamErrorsTotal.WithLabelValues(string(err.Kind)).Inc()
	return err
}

// truncate shortens s to maxSnippet characters, marking the cut with "...".
func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxSnippet {
		return s
	}
	return string(r[:maxSnippet]) + "..."
}
