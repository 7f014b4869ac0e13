package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCandle marks a bar that fails data-quality checks. Runs skip
	// such bars rather than abort.
	ErrInvalidCandle = errors.New("invalid candle")

	// ErrInvalidRange is returned when start >= end or the range holds no
	// candles. It fails the run.
	ErrInvalidRange = errors.New("invalid range")

	// ErrStrategyNotFound is returned for an unregistered strategy id.
	ErrStrategyNotFound = errors.New("strategy not found")

	// ErrInsufficientEquity is reported when sizing leaves nothing to trade.
	// The simulator treats it as an implicit hold.
	ErrInsufficientEquity = errors.New("insufficient equity")

	// ErrRiskLimit is reported when a risk rule blocks a new entry.
	ErrRiskLimit = errors.New("risk limit reached")

	// ErrInvalidParams marks strategy parameters the schema or the
	// strategy's Init rejects.
	ErrInvalidParams = errors.New("invalid strategy parameters")

	// ErrInvalidConfig marks a structurally unusable run configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// StrategyError wraps a failure raised inside a strategy for one candle.
type StrategyError struct {
	Strategy string
	At       time.Time
	Err      error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy %s at %s: %v", e.Strategy, e.At.Format(time.RFC3339), e.Err)
}

func (e *StrategyError) Unwrap() error { return e.Err }
