package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/ipgeo-proxy/pkg/geo"
)

// Config holds batch locator configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel lookups.
	MaxConcurrency int

	// MaxItems is the largest accepted batch.
	MaxItems int
}

// DefaultConfig returns safe defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 10,
		MaxItems:       100,
	}
}

// ErrTooManyItems is returned for batches larger than MaxItems.
var ErrTooManyItems = errors.New("too many addresses in batch")

// Single resolves one address.
type Single interface {
	Locate(ctx context.Context, address string) (geo.Result, error)
}

// Item is the outcome for one address of a batch.
type Item struct {
	Address string
	Result  *geo.Result
	Err     error
}

// Locator resolves batches of addresses.
type Locator struct {
	single Single
	config Config
	logger zerolog.Logger
}

// New creates a batch locator.
func New(single Single, config Config, logger zerolog.Logger) *Locator {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if config.MaxItems <= 0 {
		config.MaxItems = DefaultConfig().MaxItems
	}
	return &Locator{
		single: single,
		config: config,
		logger: logger,
	}
}

// MaxItems returns the largest accepted batch.
func (l *Locator) MaxItems() int {
	return l.config.MaxItems
}

// LocateAll resolves every address and returns the items in input order.
// Only an oversized batch fails as a whole.
func (l *Locator) LocateAll(ctx context.Context, addresses []string) ([]Item, error) {
	if len(addresses) > l.config.MaxItems {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyItems, len(addresses), l.config.MaxItems)
	}

	start := time.Now()
	items := make([]Item, len(addresses))
	if len(addresses) == 0 {
		return items, nil
	}

	workers := l.config.MaxConcurrency
	if workers > len(addresses) {
		workers = len(addresses)
	}

	queue := make(chan int, len(addresses))
	for i := range addresses {
		queue <- i
	}
	close(queue)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go l.worker(ctx, addresses, items, queue, &wg)
	}
	wg.Wait()

	failed := 0
	for _, it := range items {
		if it.Err != nil {
			failed++
		}
	}

	l.logger.Info().
		Int("addresses", len(addresses)).
		Int("failed", failed).
		Int("workers", workers).
		Dur("duration", time.Since(start)).
		Msg("Batch complete")

	return items, nil
}

// worker resolves queued indexes. Each index is written by exactly one
// worker, so items needs no lock.
func (l *Locator) worker(ctx context.Context, addresses []string, items []Item, queue <-chan int, wg *sync.WaitGroup) {
	defer wg.Done()

	for i := range queue {
		addr := addresses[i]
		items[i].Address = addr

		if err := ctx.Err(); err != nil {
			items[i].Err = err
			continue
		}

		r, err := l.single.Locate(ctx, addr)
		if err != nil {
			l.logger.Debug().
				Err(err).
				Str("address", addr).
				Msg("Batch item failed")
			items[i].Err = err
			continue
		}
		items[i].Result = &r
	}
}
