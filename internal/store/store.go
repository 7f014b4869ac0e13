// Package store persists candle history and backtest results.
package store

import (
	"context"
	"errors"
	"time"

	"cryptobot/internal/domain"
	"cryptobot/internal/engine"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// CandleStore persists and retrieves OHLCV candles per timeframe.
type CandleStore interface {
	// WriteCandles merges candles into storage, replacing any with the same
	// symbol and timestamp.
	WriteCandles(ctx context.Context, tf domain.Timeframe, candles []domain.Candle) error

	// ReadCandles returns candles for symbol within [start, end), ordered by
	// timestamp.
	ReadCandles(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Candle, error)

	// ListSymbols returns the symbols stored for tf, sorted.
	ListSymbols(ctx context.Context, tf domain.Timeframe) ([]string, error)
}

// RunRecord is a persisted backtest run.
type RunRecord struct {
	ID         string                 `json:"id"`
	CreatedAt  time.Time              `json:"createdAt"`
	StrategyID string                 `json:"strategyId"`
	Symbol     string                 `json:"symbol"`
	Timeframe  domain.Timeframe       `json:"timeframe"`
	Start      time.Time              `json:"start"`
	End        time.Time              `json:"end"`
	DataSource string                 `json:"dataSource"`
	Result     *engine.BacktestResult `json:"result"`
}

// RunSummary is the listing form of a RunRecord.
type RunSummary struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	StrategyID  string    `json:"strategyId"`
	Symbol      string    `json:"symbol"`
	DataSource  string    `json:"dataSource"`
	TotalTrades int       `json:"totalTrades"`
	TotalProfit float64   `json:"totalProfit"`
	FinalEquity float64   `json:"finalEquity"`
}

// Summary returns the listing form of r.
func (r *RunRecord) Summary() RunSummary {
	s := RunSummary{
		ID:         r.ID,
		CreatedAt:  r.CreatedAt,
		StrategyID: r.StrategyID,
		Symbol:     r.Symbol,
		DataSource: r.DataSource,
	}
	if r.Result != nil {
		s.TotalTrades = r.Result.TotalTrades
		s.TotalProfit = r.Result.TotalProfit
		s.FinalEquity = r.Result.FinalEquity
	}
	return s
}

// ResultStore persists backtest runs.
type ResultStore interface {
	SaveRun(ctx context.Context, rec *RunRecord) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	// ListRuns returns the most recent runs first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
}
