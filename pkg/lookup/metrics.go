package lookup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipgeo_lookups_total",
		Help: "Total lookups by outcome",
	}, []string{"outcome"}) // "cache_hit", "upstream", "coalesced", "invalid", "error"

	lookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ipgeo_lookup_duration_seconds",
		Help:    "Lookup duration in seconds as seen by the caller",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	inflightLookups = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ipgeo_inflight_lookups",
		Help: "Number of upstream lookups currently in flight",
	})

	coalescedWaitersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ipgeo_coalesced_waiters_total",
		Help: "Total lookups answered by an in-flight call shared with other callers",
	})
)
