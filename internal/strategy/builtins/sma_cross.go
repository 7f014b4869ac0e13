package builtins

import (
	"fmt"

	"cryptobot/internal/domain"
	"cryptobot/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = SMACross{}

// SMACross implements a simple moving average crossover strategy. It
// generates a buy signal when the fast SMA crosses above the slow SMA, and a
// sell signal when it crosses below.
type SMACross struct{}

// Name returns "sma-cross".
func (SMACross) Name() string { return "sma-cross" }

func (SMACross) Params() []strategy.ParamSpec {
	return withExits(
		strategy.ParamSpec{Name: "fast_period", Default: 20, Min: 1, Max: 1000, Integer: true, Description: "fast moving average length"},
		strategy.ParamSpec{Name: "slow_period", Default: 50, Min: 2, Max: 2000, Integer: true, Description: "slow moving average length"},
	)
}

func (SMACross) Init(p strategy.Params) (strategy.State, error) {
	fast, slow := p.Int("fast_period"), p.Int("slow_period")
	if fast >= slow {
		return nil, fmt.Errorf("sma-cross: fast_period %d must be below slow_period %d", fast, slow)
	}
	return &smaCrossState{
		fast: newWindow(fast),
		slow: newWindow(slow),
		exit: exitPolicy(p),
	}, nil
}

type smaCrossState struct {
	fast, slow *window
	prevDiff   float64
	primed     bool
	exit       strategy.ExitPolicy
}

func (s *smaCrossState) OnBar(bar domain.Candle, _ domain.Position) (*domain.Signal, error) {
	s.fast.push(bar.Close)
	s.slow.push(bar.Close)
	if !s.slow.ready() {
		return nil, nil
	}
	diff := s.fast.mean() - s.slow.mean()
	prev, primed := s.prevDiff, s.primed
	s.prevDiff, s.primed = diff, true
	if !primed {
		return nil, nil
	}
	switch {
	case prev <= 0 && diff > 0:
		return &domain.Signal{Kind: domain.SignalBuy, Confidence: 1, Reason: "fast sma crossed above slow"}, nil
	case prev >= 0 && diff < 0:
		return &domain.Signal{Kind: domain.SignalSell, Confidence: 1, Reason: "fast sma crossed below slow"}, nil
	}
	return nil, nil
}

func (s *smaCrossState) ExitPolicy() strategy.ExitPolicy { return s.exit }
