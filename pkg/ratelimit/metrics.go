package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	permitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipgeo_ratelimit_permits_total",
		Help: "Total number of rate limiter permits granted",
	}, []string{"limiter"})

	rejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipgeo_ratelimit_rejections_total",
		Help: "Total number of calls rejected because no permit was available in time",
	}, []string{"limiter"})
)
