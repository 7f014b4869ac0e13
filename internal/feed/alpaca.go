package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"cryptobot/internal/domain"
	"cryptobot/internal/util"
)

// barsClient is the part of *marketdata.Client AlpacaFeed uses.
type barsClient interface {
	GetCryptoBars(symbol string, req marketdata.GetCryptoBarsRequest) ([]marketdata.CryptoBar, error)
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AlpacaFeed fetches historical bars from the Alpaca market-data API.
// Symbols containing "/" (e.g. "BTC/USD") are crypto pairs; anything else is
// requested as a US equity from the SIP feed.
type AlpacaFeed struct {
	client  barsClient
	limiter *util.RateLimiter
	retries int
	log     *slog.Logger
}

// AlpacaOptions configure NewAlpacaFeed.
type AlpacaOptions struct {
	APIKey       string
	APISecret    string
	DataURL      string
	RequestsPerM int // rate limit; 0 means 200/min
	Retries      int // attempts per request; 0 means 3
	Logger       *slog.Logger
}

// NewAlpacaFeed creates a feed with its own market-data client.
func NewAlpacaFeed(opts AlpacaOptions) *AlpacaFeed {
	co := marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
	}
	if opts.DataURL != "" {
		co.BaseURL = opts.DataURL
	}
	return newAlpacaFeed(marketdata.NewClient(co), opts)
}

func newAlpacaFeed(c barsClient, opts AlpacaOptions) *AlpacaFeed {
	if opts.RequestsPerM == 0 {
		opts.RequestsPerM = 200
	}
	if opts.Retries == 0 {
		opts.Retries = 3
	}
	log := opts.Logger
	if log == nil {
		log = util.Discard()
	}
	return &AlpacaFeed{
		client:  c,
		limiter: util.NewRateLimiter(opts.RequestsPerM),
		retries: opts.Retries,
		log:     log.With("feed", "alpaca"),
	}
}

func (f *AlpacaFeed) Name() string { return "alpaca" }

// alpacaTimeFrame maps our timeframes onto Alpaca's.
func alpacaTimeFrame(tf domain.Timeframe) (marketdata.TimeFrame, error) {
	switch tf {
	case domain.Timeframe1m:
		return marketdata.OneMin, nil
	case domain.Timeframe5m:
		return marketdata.NewTimeFrame(5, marketdata.Min), nil
	case domain.Timeframe15m:
		return marketdata.NewTimeFrame(15, marketdata.Min), nil
	case domain.Timeframe1h:
		return marketdata.OneHour, nil
	case domain.Timeframe4h:
		return marketdata.NewTimeFrame(4, marketdata.Hour), nil
	case domain.Timeframe1d:
		return marketdata.OneDay, nil
	}
	return marketdata.TimeFrame{}, fmt.Errorf("alpaca feed: unsupported timeframe %q", tf)
}

func (f *AlpacaFeed) Candles(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Candle, error) {
	frame, err := alpacaTimeFrame(tf)
	if err != nil {
		return nil, err
	}
	// Alpaca's End is inclusive; trim to [start, end) afterwards.
	var out []domain.Candle
	err = util.Retry(ctx, f.retries, 500*time.Millisecond, func(ctx context.Context) error {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
		out, err = f.fetch(symbol, frame, start, end)
		if err != nil {
			f.log.Warn("fetch failed", "symbol", symbol, "error", err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca feed %s: %w", symbol, err)
	}
	trimmed := out[:0]
	for _, c := range out {
		if c.Timestamp.Before(end) {
			trimmed = append(trimmed, c)
		}
	}
	sortCandles(trimmed)
	f.log.Debug("fetched bars", "symbol", symbol, "timeframe", string(tf), "count", len(trimmed))
	return trimmed, nil
}

func (f *AlpacaFeed) fetch(symbol string, frame marketdata.TimeFrame, start, end time.Time) ([]domain.Candle, error) {
	upper := strings.ToUpper(symbol)
	if strings.Contains(symbol, "/") {
		bars, err := f.client.GetCryptoBars(upper, marketdata.GetCryptoBarsRequest{
			TimeFrame: frame,
			Start:     start,
			End:       end,
		})
		if err != nil {
			return nil, fmt.Errorf("GetCryptoBars: %w", err)
		}
		out := make([]domain.Candle, 0, len(bars))
		for _, b := range bars {
			out = append(out, domain.Candle{
				Symbol:    upper,
				Timestamp: b.Timestamp.UTC(),
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    b.Volume,
			})
		}
		return out, nil
	}

	bars, err := f.client.GetBars(upper, marketdata.GetBarsRequest{
		TimeFrame: frame,
		Start:     start,
		End:       end,
		Feed:      "sip",
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars: %w", err)
	}
	out := make([]domain.Candle, 0, len(bars))
	for _, b := range bars {
		out = append(out, domain.Candle{
			Symbol:    upper,
			Timestamp: b.Timestamp.UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    float64(b.Volume),
		})
	}
	return out, nil
}
