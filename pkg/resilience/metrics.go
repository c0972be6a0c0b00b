package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipgeo_retries_total",
		Help: "Total number of retry attempts by error kind",
	}, []string{"error_kind"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipgeo_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error kind",
	}, []string{"error_kind"})

	timeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ipgeo_pipeline_timeouts_total",
		Help: "Total number of pipelined calls that exceeded the overall timeout",
	})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ipgeo_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"breaker"})

	breakerRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipgeo_breaker_rejections_total",
		Help: "Total number of calls rejected by an open circuit breaker",
	}, []string{"breaker"})
)
