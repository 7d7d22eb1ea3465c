package pipeline

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff is the retry controller for failed enrichment. Attempt n waits
// Base * 2^(n-1) plus up to Jitter of that delay; at most MaxRetries
// attempts are made per analysis.
type Backoff struct {
	Base       time.Duration
	Jitter     float64
	MaxRetries int

	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Rand returns a value in [0, 1). Defaults to math/rand/v2.
	Rand func() float64

	attempt int
}

// NewBackoff returns a controller with the standard sleep and randomness.
func NewBackoff(base time.Duration, jitter float64, maxRetries int) *Backoff {
	return &Backoff{Base: base, Jitter: jitter, MaxRetries: maxRetries}
}

// Reset starts a fresh analysis.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt returns the number of retries started since the last Reset.
func (b *Backoff) Attempt() int {
	return b.attempt
}

// Delay returns the wait before attempt n (1-based), jitter included.
func (b *Backoff) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	d := b.Base << (n - 1)
	r := b.Rand
	if r == nil {
		r = rand.Float64
	}
	return d + time.Duration(float64(d)*b.Jitter*r())
}

// Next advances to the next attempt and waits for its delay. It returns
// false without waiting once MaxRetries is exhausted, and false if ctx is
// cancelled during the wait.
func (b *Backoff) Next(ctx context.Context) bool {
	if b.attempt >= b.MaxRetries {
		return false
	}
	b.attempt++
	sleep := b.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	return sleep(ctx, b.Delay(b.attempt)) == nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
