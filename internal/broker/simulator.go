package broker

import (
	"fmt"
	"time"

	"cryptobot/internal/domain"
	"cryptobot/internal/ledger"
	"cryptobot/internal/strategy"
)

// Config parameterises a Simulator for one run.
type Config struct {
	Symbol         string
	InitialCapital float64
	Start          time.Time // timestamp of the first equity point
	Friction       Friction
	Sizer          Sizer
	AllowShort     bool
	Exit           strategy.ExitPolicy
}

// Simulator executes signals against candles for a single symbol and owns
// the run's ledger. At most one position is open at a time. It is not safe
// for concurrent use.
type Simulator struct {
	cfg    Config
	ledger *ledger.Ledger
	pos    domain.Position
}

// NewSimulator returns a flat simulator. A nil Sizer means FixedFractional
// with the whole equity.
func NewSimulator(cfg Config) *Simulator {
	if cfg.Sizer == nil {
		cfg.Sizer = FixedFractional{Fraction: 1}
	}
	return &Simulator{
		cfg:    cfg,
		ledger: ledger.New(cfg.InitialCapital, cfg.Start),
	}
}

// Position returns the open position; the zero value means flat.
func (s *Simulator) Position() domain.Position { return s.pos }

// Equity returns initial capital plus realized profit.
func (s *Simulator) Equity() float64 { return s.ledger.Equity() }

// Ledger exposes the trade ledger. Callers must not record into it.
func (s *Simulator) Ledger() *ledger.Ledger { return s.ledger }

// CheckExits applies the exit policy to the open position at bar, before the
// strategy sees it. Stop-loss wins when both levels trade within one bar.
// A bar opening beyond a level fills at the open.
func (s *Simulator) CheckExits(bar domain.Candle) (*domain.Trade, error) {
	if !s.pos.Open() {
		return nil, nil
	}
	ep := s.cfg.Exit
	long := s.pos.Side == domain.SideLong

	if ep.StopLoss > 0 {
		if long {
			level := s.pos.EntryPrice * (1 - ep.StopLoss)
			if bar.Open <= level {
				return s.close(bar, bar.Open, domain.ExitStopLoss)
			}
			if bar.Low <= level {
				return s.close(bar, level, domain.ExitStopLoss)
			}
		} else {
			level := s.pos.EntryPrice * (1 + ep.StopLoss)
			if bar.Open >= level {
				return s.close(bar, bar.Open, domain.ExitStopLoss)
			}
			if bar.High >= level {
				return s.close(bar, level, domain.ExitStopLoss)
			}
		}
	}
	if ep.TakeProfit > 0 {
		if long {
			level := s.pos.EntryPrice * (1 + ep.TakeProfit)
			if bar.Open >= level {
				return s.close(bar, bar.Open, domain.ExitTakeProfit)
			}
			if bar.High >= level {
				return s.close(bar, level, domain.ExitTakeProfit)
			}
		} else {
			level := s.pos.EntryPrice * (1 - ep.TakeProfit)
			if bar.Open <= level {
				return s.close(bar, bar.Open, domain.ExitTakeProfit)
			}
			if bar.Low <= level {
				return s.close(bar, level, domain.ExitTakeProfit)
			}
		}
	}
	if ep.Rule == strategy.ExitNextBar && bar.Timestamp.After(s.pos.EntryTime) {
		return s.close(bar, bar.Close, domain.ExitNextBar)
	}
	return nil, nil
}

// Execute applies sig at bar's close and returns the trade it completed, if
// any. Holds, zero confidence, repeated same-direction signals, a Sell while
// flat with shorting disabled and entries that size to nothing all return
// nil without error. An opposing signal only closes the open position; it
// does not reverse into a new one on the same bar.
func (s *Simulator) Execute(sig domain.Signal, bar domain.Candle) (*domain.Trade, error) {
	if !sig.Actionable() {
		return nil, nil
	}
	if s.pos.Open() {
		opposite := (s.pos.Side == domain.SideLong && sig.Kind == domain.SignalSell) ||
			(s.pos.Side == domain.SideShort && sig.Kind == domain.SignalBuy)
		if !opposite || s.cfg.Exit.Rule != strategy.ExitOnOpposite {
			return nil, nil
		}
		return s.close(bar, bar.Close, domain.ExitSignal)
	}

	side := domain.SideLong
	if sig.Kind == domain.SignalSell {
		if !s.cfg.AllowShort {
			return nil, nil
		}
		side = domain.SideShort
	}
	s.open(side, sig, bar)
	return nil, nil
}

// ForceExit closes any open position at bar's close with the given reason.
func (s *Simulator) ForceExit(bar domain.Candle, reason domain.ExitReason) (*domain.Trade, error) {
	if !s.pos.Open() {
		return nil, nil
	}
	return s.close(bar, bar.Close, reason)
}

// EntrySize returns the clamped size an entry at price would get, or
// ErrInsufficientEquity if nothing can be bought.
func (s *Simulator) EntrySize(sig domain.Signal, fill float64) (float64, error) {
	equity := s.Equity()
	if equity <= 0 || fill <= 0 {
		return 0, domain.ErrInsufficientEquity
	}
	size := s.cfg.Sizer.Size(equity, fill, sig)
	if size < 0 {
		size = 0
	}
	if limit := equity / (fill * (1 + s.cfg.Friction.FeeRate)); size > limit {
		size = limit
	}
	if size <= 0 {
		return 0, domain.ErrInsufficientEquity
	}
	return size, nil
}

func (s *Simulator) open(side domain.Side, sig domain.Signal, bar domain.Candle) {
	fill := s.cfg.Friction.BuyPrice(bar.Close)
	if side == domain.SideShort {
		fill = s.cfg.Friction.SellPrice(bar.Close)
	}
	size, err := s.EntrySize(sig, fill)
	if err != nil {
		return
	}
	s.pos = domain.Position{
		Side:       side,
		Size:       size,
		EntryPrice: fill,
		EntryTime:  bar.Timestamp,
		EntryFee:   s.cfg.Friction.Fee(size, fill),
	}
}

func (s *Simulator) close(bar domain.Candle, price float64, reason domain.ExitReason) (*domain.Trade, error) {
	fill := s.cfg.Friction.SellPrice(price)
	if s.pos.Side == domain.SideShort {
		fill = s.cfg.Friction.BuyPrice(price)
	}
	t := domain.Trade{
		Symbol:     s.cfg.Symbol,
		Side:       s.pos.Side,
		EntryPrice: s.pos.EntryPrice,
		ExitPrice:  fill,
		EntryTime:  s.pos.EntryTime,
		ExitTime:   bar.Timestamp,
		Size:       s.pos.Size,
		Fees:       s.pos.EntryFee + s.cfg.Friction.Fee(s.pos.Size, fill),
		ExitReason: reason,
	}
	t.Profit = t.GrossProfit() - t.Fees
	if err := s.ledger.Record(t); err != nil {
		return nil, fmt.Errorf("recording %s trade: %w", reason, err)
	}
	s.pos = domain.Position{}
	return &t, nil
}
