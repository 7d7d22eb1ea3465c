package cache

import (
	"context"
	"time"

	"github.com/newthinker/stonks/internal/task"
	"go.uber.org/zap"
)

// FetchFunc produces a fresh value for a cache key.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// SWR serves key with stale-while-revalidate semantics.
//
// A fresh value is returned directly. A stale value is returned immediately
// and, if no refresh is already running for key, a background refresh is
// started; its handle is returned so callers can wait on it. A miss fetches
// synchronously, with concurrent misses for the same key sharing one fetch.
// Background failures are logged and leave the stale value in place. On a
// failed miss, whatever the fetch returned with its error is passed through.
func SWR[T any](ctx context.Context, c *Cache, key string, ttl, staleTTL time.Duration, fetch FetchFunc[T]) (T, *task.Task, error) {
	if raw, stale, ok := c.GetWithStale(key); ok {
		if v, typed := raw.(T); typed {
			if !stale {
				return v, nil, nil
			}
			if !c.MarkRefreshStarted(key) {
				return v, nil, nil
			}
			bg := context.WithoutCancel(ctx)
			t := task.Go(func() error {
				fresh, err := fetch(bg)
				if err != nil {
					c.MarkRefreshComplete(key)
					c.metrics.RecordRefresh("error")
					c.logger.Warn("background refresh failed",
						zap.String("key", key),
						zap.Error(err),
					)
					return err
				}
				c.Set(key, fresh, ttl, staleTTL)
				c.metrics.RecordRefresh("ok")
				return nil
			})
			return v, t, nil
		}
	}

	v, err := load(ctx, c, key, ttl, staleTTL, fetch)
	return v, nil, err
}

// Cached wraps fn with cache-aside memoization. keyFn maps the argument to
// a cache key; only successful results are stored.
func Cached[A, T any](c *Cache, ttl time.Duration, keyFn func(A) string, fn func(context.Context, A) (T, error)) func(context.Context, A) (T, error) {
	return func(ctx context.Context, arg A) (T, error) {
		key := keyFn(arg)
		if raw, ok := c.Get(key); ok {
			if v, typed := raw.(T); typed {
				return v, nil
			}
		}
		return load(ctx, c, key, ttl, -1, func(ctx context.Context) (T, error) {
			return fn(ctx, arg)
		})
	}
}

// load fetches and stores key, collapsing concurrent callers onto one fetch.
// A value returned alongside an error is handed to every caller of the
// flight but never stored.
func load[T any](ctx context.Context, c *Cache, key string, ttl, staleTTL time.Duration, fetch FetchFunc[T]) (T, error) {
	raw, err, _ := c.group.Do(key, func() (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return v, err
		}
		c.Set(key, v, ttl, staleTTL)
		return v, nil
	})
	v, _ := raw.(T)
	return v, err
}
