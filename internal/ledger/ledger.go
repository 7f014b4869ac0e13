// Package ledger keeps the append-only record of completed trades for one
// run and derives the equity curve from it.
package ledger

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"slices"
	"time"

	"cryptobot/internal/domain"
)

// ErrRejected is returned by Record for a trade that would break the
// ledger's ordering or accounting rules.
var ErrRejected = errors.New("trade rejected")

// Ledger is owned by a single simulator; it is not safe for concurrent use.
type Ledger struct {
	initial float64
	start   time.Time
	trades  []domain.Trade
	equity  float64
}

// New creates an empty ledger. start is the timestamp of the first curve
// point, normally the first candle of the run.
func New(initialCapital float64, start time.Time) *Ledger {
	return &Ledger{initial: initialCapital, start: start, equity: initialCapital}
}

// FromTrades builds a ledger by recording trades in order.
func FromTrades(initialCapital float64, start time.Time, trades []domain.Trade) (*Ledger, error) {
	l := New(initialCapital, start)
	for i, t := range trades {
		if err := l.Record(t); err != nil {
			return nil, fmt.Errorf("trade %d: %w", i, err)
		}
	}
	return l, nil
}

// Record appends a completed trade.
func (l *Ledger) Record(t domain.Trade) error {
	switch {
	case t.ExitTime.Before(t.EntryTime):
		return fmt.Errorf("%w: exit %s before entry %s", ErrRejected, t.ExitTime, t.EntryTime)
	case t.Fees < 0 || math.IsNaN(t.Fees):
		return fmt.Errorf("%w: fees %v", ErrRejected, t.Fees)
	case math.IsNaN(t.Profit) || math.IsInf(t.Profit, 0):
		return fmt.Errorf("%w: profit %v", ErrRejected, t.Profit)
	case t.Size <= 0:
		return fmt.Errorf("%w: size %v", ErrRejected, t.Size)
	}
	if n := len(l.trades); n > 0 && t.EntryTime.Before(l.trades[n-1].EntryTime) {
		return fmt.Errorf("%w: entry %s precedes last entry %s", ErrRejected, t.EntryTime, l.trades[n-1].EntryTime)
	}
	l.trades = append(l.trades, t)
	l.equity += t.Profit
	return nil
}

// Len returns the number of recorded trades.
func (l *Ledger) Len() int { return len(l.trades) }

// Trades returns a copy of the trades in recording order.
func (l *Ledger) Trades() []domain.Trade { return slices.Clone(l.trades) }

// InitialCapital returns the capital the ledger started with.
func (l *Ledger) InitialCapital() float64 { return l.initial }

// Equity is the running realized equity. It always equals the value of the
// last point of EquityCurve.
func (l *Ledger) Equity() float64 { return l.equity }

// EquityCurve yields the start point and then one point per trade at its
// exit time. Each iteration recomputes from the recorded trades.
func (l *Ledger) EquityCurve() iter.Seq[domain.EquityPoint] {
	return func(yield func(domain.EquityPoint) bool) {
		value := l.initial
		if !yield(domain.EquityPoint{Timestamp: l.start, Value: value}) {
			return
		}
		for _, t := range l.trades {
			value += t.Profit
			if !yield(domain.EquityPoint{Timestamp: t.ExitTime, Value: value}) {
				return
			}
		}
	}
}

// Curve collects EquityCurve into a slice.
func (l *Ledger) Curve() []domain.EquityPoint {
	out := make([]domain.EquityPoint, 0, len(l.trades)+1)
	for p := range l.EquityCurve() {
		out = append(out, p)
	}
	return out
}

// Snapshot is a frozen view of a ledger, safe to share.
type Snapshot struct {
	InitialCapital float64
	Start          time.Time
	Trades         []domain.Trade
	Curve          []domain.EquityPoint
}

// FinalEquity returns the last curve value.
func (s Snapshot) FinalEquity() float64 {
	if len(s.Curve) == 0 {
		return s.InitialCapital
	}
	return s.Curve[len(s.Curve)-1].Value
}

// Freeze copies the ledger into a Snapshot. The ledger stays usable.
func (l *Ledger) Freeze() Snapshot {
	return Snapshot{
		InitialCapital: l.initial,
		Start:          l.start,
		Trades:         l.Trades(),
		Curve:          l.Curve(),
	}
}
