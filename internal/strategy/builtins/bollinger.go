package builtins

import (
	"fmt"

	"github.com/montanaflynn/stats"

	"cryptobot/internal/domain"
	"cryptobot/internal/strategy"
)

var _ strategy.Strategy = Bollinger{}

// Bollinger is a mean-reversion strategy on Bollinger bands: buy when the
// close falls below the lower band, sell when it rises above the upper band.
type Bollinger struct{}

// Name returns "bollinger".
func (Bollinger) Name() string { return "bollinger" }

func (Bollinger) Params() []strategy.ParamSpec {
	return withExits(
		strategy.ParamSpec{Name: "window", Default: 20, Min: 2, Max: 1000, Integer: true, Description: "moving average length"},
		strategy.ParamSpec{Name: "num_std", Default: 2, Min: 0.1, Max: 10, Description: "band width in standard deviations"},
	)
}

func (Bollinger) Init(p strategy.Params) (strategy.State, error) {
	return &bollingerState{
		closes: newWindow(p.Int("window")),
		numStd: p["num_std"],
		exit:   exitPolicy(p),
	}, nil
}

type bollingerState struct {
	closes *window
	numStd float64
	exit   strategy.ExitPolicy
}

func (s *bollingerState) OnBar(bar domain.Candle, _ domain.Position) (*domain.Signal, error) {
	s.closes.push(bar.Close)
	if !s.closes.ready() {
		return nil, nil
	}
	vals := stats.Float64Data(s.closes.values())
	mean, err := stats.Mean(vals)
	if err != nil {
		return nil, fmt.Errorf("bollinger mean: %w", err)
	}
	sd, err := stats.StandardDeviationSample(vals)
	if err != nil {
		return nil, fmt.Errorf("bollinger stdev: %w", err)
	}
	if sd == 0 {
		return nil, nil
	}
	upper, lower := mean+s.numStd*sd, mean-s.numStd*sd
	switch {
	case bar.Close < lower:
		conf := clamp01((lower - bar.Close) / (s.numStd * sd))
		return &domain.Signal{Kind: domain.SignalBuy, Confidence: 0.5 + conf/2, Reason: "close below lower band"}, nil
	case bar.Close > upper:
		conf := clamp01((bar.Close - upper) / (s.numStd * sd))
		return &domain.Signal{Kind: domain.SignalSell, Confidence: 0.5 + conf/2, Reason: "close above upper band"}, nil
	}
	return nil, nil
}

func (s *bollingerState) ExitPolicy() strategy.ExitPolicy { return s.exit }
