package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Sternrassler/ipgeo-proxy/pkg/geo"
)

// DefaultTTL is one day.
const DefaultTTL = 24 * time.Hour

// DefaultMaxSize is the entry bound used when none is configured.
const DefaultMaxSize = 10000

// Eviction reasons reported by the Evictions counter.
const (
	ReasonCapacity = "capacity"
	ReasonExpired  = "expired"
	ReasonPurged   = "purged"
)

// Config controls the result cache.
type Config struct {
	// TTL is how long an entry stays valid after it was written.
	TTL time.Duration

	// MaxSize is the maximum number of entries. The least recently
	// accessed entry is evicted when a write would exceed it.
	MaxSize int
}

// DefaultConfig returns a one-day, ten-thousand-entry configuration.
func DefaultConfig() Config {
	return Config{TTL: DefaultTTL, MaxSize: DefaultMaxSize}
}

// ResultCache stores successful lookups keyed by address. Only successes
// are ever written; failures leave no trace.
//
// The underlying LRU is created on first use. ResultCache is safe for
// concurrent use.
type ResultCache struct {
	cfg     Config
	once    sync.Once
	lru     *expirable.LRU[string, Entry]
	purging atomic.Bool
}

// New creates a result cache. Zero fields in cfg fall back to defaults.
func New(cfg Config) *ResultCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	return &ResultCache{cfg: cfg}
}

func (c *ResultCache) store() *expirable.LRU[string, Entry] {
	c.once.Do(func() {
		c.lru = expirable.NewLRU[string, Entry](c.cfg.MaxSize, c.onEvict, c.cfg.TTL)
	})
	return c.lru
}

// onEvict runs under the LRU lock and must not call back into the store.
func (c *ResultCache) onEvict(_ string, entry Entry) {
	reason := ReasonCapacity
	switch {
	case c.purging.Load():
		reason = ReasonPurged
	case entry.IsExpired(c.cfg.TTL):
		reason = ReasonExpired
	}
	Evictions.WithLabelValues(reason).Inc()
	Entries.Dec()
}

// Get returns the cached result for address. A hit refreshes the entry's
// recency but not its age.
func (c *ResultCache) Get(address string) (geo.Result, bool) {
	entry, ok := c.store().Get(address)
	if !ok || entry.IsExpired(c.cfg.TTL) {
		Misses.Inc()
		return geo.Result{}, false
	}
	Hits.Inc()
	return entry.Result, true
}

// Peek is Get without recency or hit/miss accounting.
func (c *ResultCache) Peek(address string) (geo.Result, bool) {
	entry, ok := c.store().Peek(address)
	if !ok || entry.IsExpired(c.cfg.TTL) {
		return geo.Result{}, false
	}
	return entry.Result, true
}

// Put stores a successful result, replacing any previous entry and
// restarting its TTL.
func (c *ResultCache) Put(address string, result geo.Result) {
	lru := c.store()
	lru.Add(address, Entry{Result: result, CachedAt: time.Now()})
	Entries.Set(float64(lru.Len()))
}

// Len returns the number of live entries.
func (c *ResultCache) Len() int {
	n := c.store().Len()
	Entries.Set(float64(n))
	return n
}

// Purge drops every entry.
func (c *ResultCache) Purge() {
	c.purging.Store(true)
	defer c.purging.Store(false)
	c.store().Purge()
	Entries.Set(0)
}

// TTL returns the configured entry lifetime.
func (c *ResultCache) TTL() time.Duration {
	return c.cfg.TTL
}
