package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Hits counts lookups answered from the cache
	Hits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ipgeo_cache_hits_total",
			Help: "Total number of result cache hits",
		},
	)

	// Misses counts lookups not found in the cache
	Misses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ipgeo_cache_misses_total",
			Help: "Total number of result cache misses",
		},
	)

	// Evictions counts entries removed from the cache by reason
	Evictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipgeo_cache_evictions_total",
			Help: "Total number of entries removed from the result cache by reason",
		},
		[]string{"reason"}, // "capacity", "expired", "purged"
	)

	// Entries tracks the current number of cached results
	Entries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ipgeo_cache_entries",
			Help: "Current number of entries in the result cache",
		},
	)
)
