package builtins

import (
	"fmt"

	"cryptobot/internal/domain"
	"cryptobot/internal/strategy"
)

var _ strategy.Strategy = MACD{}

// MACD signals on crossings of the MACD line (fast EMA minus slow EMA) and
// its signal EMA. No signal is produced before slow_period bars.
type MACD struct{}

// Name returns "macd".
func (MACD) Name() string { return "macd" }

func (MACD) Params() []strategy.ParamSpec {
	return withExits(
		strategy.ParamSpec{Name: "fast_period", Default: 12, Min: 1, Max: 500, Integer: true, Description: "fast EMA span"},
		strategy.ParamSpec{Name: "slow_period", Default: 26, Min: 2, Max: 1000, Integer: true, Description: "slow EMA span"},
		strategy.ParamSpec{Name: "signal_period", Default: 9, Min: 1, Max: 500, Integer: true, Description: "signal EMA span"},
	)
}

func (MACD) Init(p strategy.Params) (strategy.State, error) {
	fast, slow := p.Int("fast_period"), p.Int("slow_period")
	if fast >= slow {
		return nil, fmt.Errorf("macd: fast_period %d must be below slow_period %d", fast, slow)
	}
	return &macdState{
		fast:   ema{alpha: 2 / float64(fast+1)},
		slow:   ema{alpha: 2 / float64(slow+1)},
		signal: ema{alpha: 2 / float64(p.Int("signal_period")+1)},
		warmup: slow,
		exit:   exitPolicy(p),
	}, nil
}

// ema is an exponential moving average seeded with its first input.
type ema struct {
	alpha  float64
	value  float64
	seeded bool
}

func (e *ema) push(x float64) float64 {
	if !e.seeded {
		e.value, e.seeded = x, true
		return x
	}
	e.value = e.alpha*x + (1-e.alpha)*e.value
	return e.value
}

type macdState struct {
	fast, slow, signal ema
	warmup             int
	bars               int
	prevHist           float64
	exit               strategy.ExitPolicy
}

func (s *macdState) OnBar(bar domain.Candle, _ domain.Position) (*domain.Signal, error) {
	line := s.fast.push(bar.Close) - s.slow.push(bar.Close)
	sig := s.signal.push(line)
	hist := line - sig
	s.bars++
	prev := s.prevHist
	s.prevHist = hist
	if s.bars <= s.warmup {
		return nil, nil
	}
	switch {
	case prev <= 0 && hist > 0:
		return &domain.Signal{Kind: domain.SignalBuy, Confidence: 1, Reason: "macd crossed above signal"}, nil
	case prev >= 0 && hist < 0:
		return &domain.Signal{Kind: domain.SignalSell, Confidence: 1, Reason: "macd crossed below signal"}, nil
	}
	return nil, nil
}

func (s *macdState) ExitPolicy() strategy.ExitPolicy { return s.exit }
