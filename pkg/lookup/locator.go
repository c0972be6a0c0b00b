// Package lookup orchestrates geolocation lookups: validation, the result
// cache, coalescing of concurrent lookups and the resilient upstream call.
package lookup

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/ipgeo-proxy/pkg/geo"
	"github.com/Sternrassler/ipgeo-proxy/pkg/resilience"
)

// Cache stores successful results. Peek is a lookup that does not count
// as a hit or miss.
type Cache interface {
	Get(address string) (geo.Result, bool)
	Peek(address string) (geo.Result, bool)
	Put(address string, result geo.Result)
}

// Fetcher performs one upstream round trip.
type Fetcher interface {
	Fetch(ctx context.Context, address string) (geo.Result, error)
}

// Executor runs a call through the resilience pipeline.
type Executor interface {
	Execute(ctx context.Context, call resilience.Call[geo.Result]) (geo.Result, error)
}

// Locator resolves addresses to locations.
//
// At most one upstream lookup per address is in flight at any time.
// Callers asking for an address that is already being looked up join the
// running lookup and receive its outcome. The in-flight entry is removed
// once the lookup settles, so the next miss starts a fresh attempt.
type Locator struct {
	cache    Cache
	fetcher  Fetcher
	pipeline Executor
	group    singleflight.Group
	logger   zerolog.Logger
}

// New creates a locator.
func New(cache Cache, fetcher Fetcher, pipeline Executor, logger zerolog.Logger) *Locator {
	return &Locator{
		cache:    cache,
		fetcher:  fetcher,
		pipeline: pipeline,
		logger:   logger,
	}
}

// Locate returns the location of address.
//
// Invalid addresses fail with a geo.KindInvalidInput error before the
// cache or the network is touched. A cancelled ctx stops this caller from
// waiting; the shared lookup continues for other callers and still fills
// the cache.
func (l *Locator) Locate(ctx context.Context, address string) (geo.Result, error) {
	start := time.Now()
	defer func() {
		lookupDuration.Observe(time.Since(start).Seconds())
	}()

	if !geo.ValidAddress(address) {
		lookupsTotal.WithLabelValues("invalid").Inc()
		return geo.Result{}, geo.InvalidInput(address)
	}

	if r, ok := l.cache.Get(address); ok {
		lookupsTotal.WithLabelValues("cache_hit").Inc()
		l.logger.Debug().Str("address", address).Msg("Cache hit")
		return r, nil
	}

	// started is written by the flight goroutine only for the caller that
	// registered the flight, and read after its result arrives.
	started := false
	ch := l.group.DoChan(address, func() (any, error) {
		started = true
		return l.resolve(context.WithoutCancel(ctx), address)
	})

	select {
	case res := <-ch:
		joined := !started
		if joined {
			coalescedWaitersTotal.Inc()
		}
		if res.Err != nil {
			lookupsTotal.WithLabelValues("error").Inc()
			return geo.Result{}, res.Err
		}
		if joined {
			lookupsTotal.WithLabelValues("coalesced").Inc()
		} else {
			lookupsTotal.WithLabelValues("upstream").Inc()
		}
		return res.Val.(geo.Result), nil

	case <-ctx.Done():
		lookupsTotal.WithLabelValues("error").Inc()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return geo.Result{}, geo.Timeout(address, ctx.Err())
		}
		return geo.Result{}, ctx.Err()
	}
}

// resolve runs the upstream lookup for one in-flight entry and stores a
// successful result before the entry is released.
func (l *Locator) resolve(ctx context.Context, address string) (geo.Result, error) {
	inflightLookups.Inc()
	defer inflightLookups.Dec()

	// A lookup for this address may have settled between the caller's
	// cache miss and the registration of this one.
	if r, ok := l.cache.Peek(address); ok {
		return r, nil
	}

	l.logger.Debug().Str("address", address).Msg("Starting upstream lookup")

	r, err := l.pipeline.Execute(ctx, func(ctx context.Context) (geo.Result, error) {
		return l.fetcher.Fetch(ctx, address)
	})
	if err != nil {
		err = geo.WithAddress(err, address)
		l.logger.Warn().
			Err(err).
			Str("address", address).
			Str("error_kind", string(geo.KindOf(err))).
			Msg("Lookup failed")
		return geo.Result{}, err
	}

	l.cache.Put(address, r)
	return r, nil
}
