package builtins

import (
	"cryptobot/internal/domain"
	"cryptobot/internal/strategy"
)

var _ strategy.Strategy = BuyHold{}

// BuyHold buys on the first bar it can and never sells; the position is
// closed at the end of the series. An entry the simulator refused, for
// instance under a risk halt, is retried on the next bar.
type BuyHold struct{}

// Name returns "buy-hold".
func (BuyHold) Name() string { return "buy-hold" }

func (BuyHold) Params() []strategy.ParamSpec { return withExits() }

func (BuyHold) Init(p strategy.Params) (strategy.State, error) {
	return &buyHoldState{exit: exitPolicy(p)}, nil
}

type buyHoldState struct {
	held    bool
	pending float64 // close of the bar the last buy was emitted on
	exit    strategy.ExitPolicy
}

func (s *buyHoldState) OnBar(bar domain.Candle, pos domain.Position) (*domain.Signal, error) {
	if pos.Open() || s.stoppedOut(bar) {
		s.held = true
	}
	if s.held {
		return nil, nil
	}
	s.pending = bar.Close
	return &domain.Signal{Kind: domain.SignalBuy, Confidence: 1, Reason: "initial entry"}, nil
}

// stoppedOut reports whether a fill at the pending close would have been
// closed by the exit policy on bar, before the strategy saw it open.
func (s *buyHoldState) stoppedOut(bar domain.Candle) bool {
	if s.pending == 0 {
		return false
	}
	sl, tp := s.exit.StopLoss, s.exit.TakeProfit
	return (sl > 0 && bar.Low <= s.pending*(1-sl)) || (tp > 0 && bar.High >= s.pending*(1+tp))
}

func (s *buyHoldState) ExitPolicy() strategy.ExitPolicy { return s.exit }
