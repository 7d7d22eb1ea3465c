// Package cache implements an in-memory TTL cache with stale-while-revalidate
// semantics and per-key refresh de-duplication.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/newthinker/stonks/internal/metrics"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Key prefixes shared by the engine's components.
const (
	KeyPortfolio = "portfolio_data"
	KeySignals   = "portfolio_signals:"
	KeyHistory   = "md_history:"
	KeyInfo      = "md_info:"
	KeyEarnings  = "md_earnings:"
	KeyIndices   = "market_indices"
	KeyResearch  = "research:"
)

// Config holds cache defaults.
type Config struct {
	// DefaultGrace is the stale window used when Set is given a negative stale TTL.
	DefaultGrace time.Duration
	// CleanupInterval is how often dead entries are reclaimed.
	CleanupInterval time.Duration
}

// DefaultConfig returns the standard grace and cleanup settings.
func DefaultConfig() Config {
	return Config{
		DefaultGrace:    60 * time.Second,
		CleanupInterval: 5 * time.Minute,
	}
}

type entry struct {
	value      any
	freshUntil time.Time
	staleUntil time.Time
}

// Cache is safe for concurrent use. Entries are only ever replaced whole,
// so readers always observe a complete value.
type Cache struct {
	store   *gocache.Cache
	grace   time.Duration
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Registry

	mu         sync.Mutex
	refreshing map[string]struct{}

	group singleflight.Group
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger used for background refresh failures.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records lookups and refreshes.
func WithMetrics(reg *metrics.Registry) Option {
	return func(c *Cache) { c.metrics = reg }
}

// New creates a cache.
func New(cfg Config, opts ...Option) *Cache {
	c := &Cache{
		store:      gocache.New(gocache.NoExpiration, cfg.CleanupInterval),
		grace:      cfg.DefaultGrace,
		now:        time.Now,
		logger:     zap.NewNop(),
		refreshing: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value only while it is fresh. A non-fresh entry is evicted.
func (c *Cache) Get(key string) (any, bool) {
	e, ok := c.load(key)
	if !ok {
		c.metrics.RecordCacheLookup("miss")
		return nil, false
	}
	if c.now().Before(e.freshUntil) {
		c.metrics.RecordCacheLookup("fresh")
		return e.value, true
	}
	c.store.Delete(key)
	c.metrics.RecordCacheLookup("miss")
	return nil, false
}

// GetWithStale returns (value, false, true) while fresh, (value, true, true)
// inside the grace window, and evicts and reports absent after it.
func (c *Cache) GetWithStale(key string) (value any, stale bool, ok bool) {
	e, found := c.load(key)
	if !found {
		c.metrics.RecordCacheLookup("miss")
		return nil, false, false
	}
	now := c.now()
	switch {
	case now.Before(e.freshUntil):
		c.metrics.RecordCacheLookup("fresh")
		return e.value, false, true
	case now.Before(e.staleUntil):
		c.metrics.RecordCacheLookup("stale")
		return e.value, true, true
	}
	c.store.Delete(key)
	c.metrics.RecordCacheLookup("miss")
	return nil, false, false
}

// Set stores value as fresh for ttl and stale for a further staleTTL.
// A negative staleTTL selects the default grace. Any refresh marker for
// key is cleared.
func (c *Cache) Set(key string, value any, ttl, staleTTL time.Duration) {
	if staleTTL < 0 {
		staleTTL = c.grace
	}
	now := c.now()
	e := &entry{
		value:      value,
		freshUntil: now.Add(ttl),
	}
	e.staleUntil = e.freshUntil.Add(staleTTL)

	// The janitor works on wall-clock time; freshness is decided by c.now.
	if life := ttl + staleTTL; life > 0 {
		c.store.Set(key, e, life)
	} else {
		c.store.Delete(key)
	}

	c.MarkRefreshComplete(key)
}

// SetDefault stores value with the default grace window.
func (c *Cache) SetDefault(key string, value any, ttl time.Duration) {
	c.Set(key, value, ttl, -1)
}

// MarkRefreshStarted flags key as being refreshed. It returns false when a
// refresh is already in flight.
func (c *Cache) MarkRefreshStarted(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.refreshing[key]; busy {
		return false
	}
	c.refreshing[key] = struct{}{}
	return true
}

// MarkRefreshComplete clears the refresh flag for key.
func (c *Cache) MarkRefreshComplete(key string) {
	c.mu.Lock()
	delete(c.refreshing, key)
	c.mu.Unlock()
}

// Refreshing reports whether a refresh is in flight for key.
func (c *Cache) Refreshing(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, busy := c.refreshing[key]
	return busy
}

// Clear removes every entry whose key starts with prefix. An empty prefix
// clears everything.
func (c *Cache) Clear(prefix string) {
	if prefix == "" {
		c.store.Flush()
		return
	}
	for key := range c.store.Items() {
		if strings.HasPrefix(key, prefix) {
			c.store.Delete(key)
		}
	}
}

// Len returns the number of stored entries, dead ones included until evicted.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}

func (c *Cache) load(key string) (*entry, bool) {
	raw, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	e, ok := raw.(*entry)
	return e, ok
}
