package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cryptobot/internal/domain"
)

// Cached memoises another feed's results per (symbol, timeframe, range).
// Sweeps replay the same series many times; the cache makes that one fetch.
// Callers must not mutate returned slices.
type Cached struct {
	inner Feed

	mu      sync.Mutex
	entries map[string][]domain.Candle
}

// NewCached wraps f.
func NewCached(f Feed) *Cached {
	return &Cached{inner: f, entries: make(map[string][]domain.Candle)}
}

func (c *Cached) Name() string { return c.inner.Name() }

// Unwrap returns the wrapped feed.
func (c *Cached) Unwrap() Feed { return c.inner }

func (c *Cached) Candles(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Candle, error) {
	key := fmt.Sprintf("%s|%s|%d|%d", symbol, tf, start.UnixNano(), end.UnixNano())
	c.mu.Lock()
	hit, ok := c.entries[key]
	c.mu.Unlock()
	if ok {
		return hit, nil
	}

	got, err := c.inner.Candles(ctx, symbol, tf, start, end)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[key] = got
	c.mu.Unlock()
	return got, nil
}
