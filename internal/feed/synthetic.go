package feed

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"cryptobot/internal/domain"
	"cryptobot/internal/util"
)

// SyntheticFeed generates a seeded geometric random walk. The same seed,
// symbol and range always produce the same candles. Runs on this feed are
// labelled "synthetic" and must not be read as market results.
type SyntheticFeed struct {
	Seed       uint64
	StartPrice float64 // default 100
	Volatility float64 // per-bar sigma of log returns; default 0.02
	Drift      float64 // per-bar mean of log returns
}

// NewSyntheticFeed returns a feed with the default price and volatility.
func NewSyntheticFeed(seed uint64) *SyntheticFeed {
	return &SyntheticFeed{Seed: seed, StartPrice: 100, Volatility: 0.02}
}

func (f *SyntheticFeed) Name() string    { return "synthetic" }
func (f *SyntheticFeed) Synthetic() bool { return true }

func (f *SyntheticFeed) Candles(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Candle, error) {
	step := tf.Duration()
	if step <= 0 || !start.Before(end) {
		return nil, nil
	}
	price := f.StartPrice
	if price <= 0 {
		price = 100
	}
	vol := f.Volatility
	if vol <= 0 {
		vol = 0.02
	}

	h := fnv.New64a()
	h.Write([]byte(strings.ToUpper(symbol)))
	rng := rand.New(rand.NewPCG(f.Seed, h.Sum64()))

	var out []domain.Candle
	for t := util.AlignToBar(start.UTC(), tf); t.Before(end); t = t.Add(step) {
		if t.Before(start) {
			continue
		}
		if len(out)%1024 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		open := price
		cl := open * math.Exp(f.Drift+vol*rng.NormFloat64())
		hi := math.Max(open, cl) * (1 + vol*rng.Float64()/2)
		lo := math.Min(open, cl) * (1 - vol*rng.Float64()/2)
		out = append(out, domain.Candle{
			Symbol:    strings.ToUpper(symbol),
			Timestamp: t,
			Open:      open,
			High:      hi,
			Low:       lo,
			Close:     cl,
			Volume:    1000 + 9000*rng.Float64(),
		})
		price = cl
	}
	return out, nil
}
