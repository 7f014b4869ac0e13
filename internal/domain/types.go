// Package domain defines the core value types shared by every stage of a
// backtest: candles, signals, positions, trades and equity points.
package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Candle is one OHLCV bar of a historical series.
type Candle struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Validate checks the bar on its own. Ordering against neighbouring bars is
// the caller's job.
func (c Candle) Validate() error {
	for _, p := range [...]struct {
		name string
		v    float64
	}{{"open", c.Open}, {"high", c.High}, {"low", c.Low}, {"close", c.Close}} {
		if math.IsNaN(p.v) || math.IsInf(p.v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidCandle, p.name)
		}
		if p.v <= 0 {
			return fmt.Errorf("%w: %s %v is not positive", ErrInvalidCandle, p.name, p.v)
		}
	}
	if math.IsNaN(c.Volume) || c.Volume < 0 {
		return fmt.Errorf("%w: volume %v", ErrInvalidCandle, c.Volume)
	}
	if c.High < c.Low {
		return fmt.Errorf("%w: high %v below low %v", ErrInvalidCandle, c.High, c.Low)
	}
	if c.Open < c.Low || c.Open > c.High || c.Close < c.Low || c.Close > c.High {
		return fmt.Errorf("%w: open/close outside [%v, %v]", ErrInvalidCandle, c.Low, c.High)
	}
	if c.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidCandle)
	}
	return nil
}

// SignalKind is a strategy's decision at a candle.
type SignalKind string

const (
	SignalBuy  SignalKind = "buy"
	SignalSell SignalKind = "sell"
	SignalHold SignalKind = "hold"
)

// Signal is emitted by a strategy for a single candle.
type Signal struct {
	Kind       SignalKind
	Confidence float64 // [0, 1]
	Reason     string
}

// Actionable reports whether the signal can lead to an order at all.
func (s Signal) Actionable() bool {
	return (s.Kind == SignalBuy || s.Kind == SignalSell) && s.Confidence > 0
}

// Side is the direction of a position or trade.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Position is the simulator's view of the currently open position. The zero
// value means flat.
type Position struct {
	Side       Side
	Size       float64
	EntryPrice float64
	EntryTime  time.Time
	EntryFee   float64
}

// Open reports whether a position is held.
func (p Position) Open() bool { return p.Size > 0 }

// ExitReason records what closed a trade.
type ExitReason string

const (
	ExitSignal      ExitReason = "signal"
	ExitStopLoss    ExitReason = "stop_loss"
	ExitTakeProfit  ExitReason = "take_profit"
	ExitNextBar     ExitReason = "next_bar"
	ExitEndOfSeries ExitReason = "end_of_series"
)

// Trade is a completed, simulated round trip.
type Trade struct {
	Symbol     string     `json:"symbol"`
	Side       Side       `json:"side"`
	EntryPrice float64    `json:"entryPrice"`
	ExitPrice  float64    `json:"exitPrice"`
	EntryTime  time.Time  `json:"entryTime"`
	ExitTime   time.Time  `json:"exitTime"`
	Size       float64    `json:"size"`
	Fees       float64    `json:"fees"`
	Profit     float64    `json:"profit"`
	ExitReason ExitReason `json:"exitReason"`
}

// GrossProfit returns the profit before fees.
func (t Trade) GrossProfit() float64 {
	if t.Side == SideShort {
		return (t.EntryPrice - t.ExitPrice) * t.Size
	}
	return (t.ExitPrice - t.EntryPrice) * t.Size
}

// HoldingTime returns how long the position was open.
func (t Trade) HoldingTime() time.Duration { return t.ExitTime.Sub(t.EntryTime) }

// EquityPoint is the account value after a trade closes.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Timeframe is a bar interval such as "1m", "1h" or "1d".
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// ParseTimeframe normalises s ("1D", " 1h ") into a known Timeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe4h:  4 * time.Hour,
	Timeframe1d:  24 * time.Hour,
}

// Duration returns the bar length, or zero for an unknown timeframe.
func (tf Timeframe) Duration() time.Duration { return timeframeDurations[tf] }
