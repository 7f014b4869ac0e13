// Package feed supplies historical candles to backtests. Feeds are adapters
// around the engine: they load and order data but never alter prices.
package feed

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cryptobot/internal/domain"
	"cryptobot/internal/store"
)

// Feed loads candles for one symbol in [start, end), ordered by timestamp.
// Gaps are returned as gaps; feeds never synthesise missing bars.
type Feed interface {
	Name() string
	Candles(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Candle, error)
}

// IsSynthetic reports whether f produces generated rather than recorded
// data. Results from such feeds must be labelled as synthetic. Wrappers
// exposing Unwrap() Feed are looked through.
func IsSynthetic(f Feed) bool {
	for f != nil {
		if s, ok := f.(interface{ Synthetic() bool }); ok && s.Synthetic() {
			return true
		}
		u, ok := f.(interface{ Unwrap() Feed })
		if !ok {
			return false
		}
		f = u.Unwrap()
	}
	return false
}

func sortCandles(c []domain.Candle) {
	sort.SliceStable(c, func(i, j int) bool { return c[i].Timestamp.Before(c[j].Timestamp) })
}

// StoreFeed reads candles from a CandleStore.
type StoreFeed struct {
	store store.CandleStore
	name  string
}

// NewStoreFeed wraps s. name labels the data source, e.g. "parquet".
func NewStoreFeed(s store.CandleStore, name string) *StoreFeed {
	return &StoreFeed{store: s, name: name}
}

func (f *StoreFeed) Name() string { return f.name }

func (f *StoreFeed) Candles(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Candle, error) {
	c, err := f.store.ReadCandles(ctx, symbol, tf, start, end)
	if err != nil {
		return nil, fmt.Errorf("%s feed: %w", f.name, err)
	}
	sortCandles(c)
	return c, nil
}
