package marketdata

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/newthinker/stonks/internal/cache"
)

// TTLs for the cached decorator.
type TTLs struct {
	History  time.Duration
	Info     time.Duration
	Sector   time.Duration
	Earnings time.Duration
	Grace    time.Duration
}

// CachedClient decorates a Client with the shared cache. History is served
// stale-while-revalidate; descriptors and earnings are cache-aside. Only
// complete successes are stored.
type CachedClient struct {
	inner Client
	cache *cache.Cache
	ttl   TTLs

	info     func(context.Context, string) (*Info, error)
	earnings func(context.Context, string) (*Earnings, error)
}

var _ Client = (*CachedClient)(nil)

// NewCachedClient wraps inner.
func NewCachedClient(inner Client, c *cache.Cache, ttl TTLs) *CachedClient {
	cc := &CachedClient{inner: inner, cache: c, ttl: ttl}
	cc.info = cache.Cached(c, ttl.Info,
		func(sym string) string { return cache.KeyInfo + sym },
		cc.fetchInfo,
	)
	cc.earnings = cache.Cached(c, ttl.Earnings,
		func(sym string) string { return cache.KeyEarnings + sym },
		inner.GetEarnings,
	)
	return cc
}

// GetHistory serves the batch from cache when possible. A partial result is
// returned with its *BatchError to every caller sharing the fetch, but never
// cached.
func (c *CachedClient) GetHistory(ctx context.Context, symbols []string, period string) (History, error) {
	key := historyKey(period, symbols)
	hist, _, err := cache.SWR(ctx, c.cache, key, c.ttl.History, c.ttl.Grace, func(ctx context.Context) (History, error) {
		return c.inner.GetHistory(ctx, symbols, period)
	})
	return hist, err
}

// GetInfo returns the cached descriptor.
func (c *CachedClient) GetInfo(ctx context.Context, symbol string) (*Info, error) {
	return c.info(ctx, symbol)
}

// GetEarnings returns the cached earnings date.
func (c *CachedClient) GetEarnings(ctx context.Context, symbol string) (*Earnings, error) {
	return c.earnings(ctx, symbol)
}

// fetchInfo loads a descriptor and keeps sectors on their own, longer TTL so
// a descriptor refresh whose sector lookup failed still reports one.
func (c *CachedClient) fetchInfo(ctx context.Context, symbol string) (*Info, error) {
	info, err := c.inner.GetInfo(ctx, symbol)
	if err != nil {
		return nil, err
	}
	sectorKey := cache.KeyInfo + "sector:" + symbol
	if info.Sector != "" {
		c.cache.SetDefault(sectorKey, info.Sector, c.ttl.Sector)
	} else if v, ok := c.cache.Get(sectorKey); ok {
		cp := *info
		cp.Sector, _ = v.(string)
		info = &cp
	}
	return info, nil
}

func historyKey(period string, symbols []string) string {
	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)
	return cache.KeyHistory + period + ":" + strings.Join(sorted, ",")
}
