package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/ipgeo-proxy/pkg/batch"
	"github.com/Sternrassler/ipgeo-proxy/pkg/geo"
	"github.com/Sternrassler/ipgeo-proxy/pkg/metrics"
)

const (
	invalidAddressMessage = "Invalid IP address format"
	maxRequestBody        = 1 << 20
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipgeo_http_requests_total",
		Help: "Inbound HTTP requests by route and status",
	}, []string{"route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ipgeo_http_request_duration_seconds",
		Help:    "Inbound HTTP request duration in seconds by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// locator is the lookup service behind the HTTP surface.
type locator interface {
	Locate(ctx context.Context, address string) (geo.Result, error)
	LocateAll(ctx context.Context, addresses []string) ([]batch.Item, error)
}

// pinger reports readiness of backing services.
type pinger interface {
	Ping(ctx context.Context) error
}

type server struct {
	locator    locator
	ready      pinger
	retryAfter int
	logger     zerolog.Logger
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type batchRequest struct {
	Addresses []string `json:"addresses"`
}

type batchItem struct {
	Address string      `json:"Address"`
	Result  *geo.Result `json:"Result"`
	Error   string      `json:"Error,omitempty"`
	Status  int         `json:"Status"`
}

// routes registers every endpoint and wraps the mux in the access log.
func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /ip", s.instrument("ip", http.HandlerFunc(s.handleLocate)))
	mux.Handle("POST /ip/batch", s.instrument("ip_batch", http.HandlerFunc(s.handleBatch)))
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", metrics.Handler())
	return accessLog(s.logger, mux)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.ready.Ping(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Readiness check failed")
		http.Error(w, "NOT READY", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

func (s *server) handleLocate(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: invalidAddressMessage,
			Kind:  string(geo.KindInvalidInput),
		})
		return
	}

	result, err := s.locator.Locate(r.Context(), address)
	if err != nil {
		s.writeError(w, address, err)
		return
	}

	s.logger.Info().
		Str("address", address).
		Str("country", result.Country).
		Msg("Lookup served")
	s.writeJSON(w, http.StatusOK, result)
}

func (s *server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	items, err := s.locator.LocateAll(r.Context(), req.Addresses)
	if err != nil {
		if errors.Is(err, batch.ErrTooManyItems) {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	out := make([]batchItem, len(items))
	for i, it := range items {
		out[i] = batchItem{
			Address: it.Address,
			Result:  it.Result,
			Status:  http.StatusOK,
		}
		if it.Err != nil {
			out[i].Status = statusFor(it.Err)
			out[i].Error = messageFor(it.Err)
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

// writeError maps a lookup failure to its HTTP response.
func (s *server) writeError(w http.ResponseWriter, address string, err error) {
	status := statusFor(err)
	kind := geo.KindOf(err)

	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", strconv.Itoa(s.retryAfter))
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error().
			Err(err).
			Str("address", address).
			Str("error_kind", string(kind)).
			Int("status_code", status).
			Msg("Lookup failed")
	}

	resp := errorResponse{Error: messageFor(err)}
	if kind != geo.KindUnknown {
		resp.Kind = string(kind)
	}
	s.writeJSON(w, status, resp)
}

// statusFor returns the HTTP status for a lookup error.
func statusFor(err error) int {
	switch geo.KindOf(err) {
	case geo.KindInvalidInput:
		return http.StatusBadRequest
	case geo.KindRateLimited, geo.KindCircuitOpen:
		return http.StatusTooManyRequests
	case geo.KindUpstream, geo.KindDecoding, geo.KindNetwork:
		return http.StatusBadGateway
	case geo.KindTimeout:
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func messageFor(err error) string {
	if geo.KindOf(err) == geo.KindInvalidInput {
		return invalidAddressMessage
	}
	return err.Error()
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write response")
	}
}

// instrument records request count and duration for a route.
func (s *server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// accessLog logs one line per request.
func accessLog(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		event := logger.Debug()
		if rec.status >= http.StatusInternalServerError {
			event = logger.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status_code", rec.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
