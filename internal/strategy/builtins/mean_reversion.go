package builtins

import (
	"fmt"

	"github.com/montanaflynn/stats"

	"cryptobot/internal/domain"
	"cryptobot/internal/strategy"
)

var _ strategy.Strategy = MeanReversion{}

// MeanReversion fades stretched prices. A bar is stretched low when any of
// three tests agree: close below the lower Bollinger band, RSI below
// oversold, or a z-score under -z_threshold. Confidence is the share of
// tests that agree. Bars stretched both ways emit nothing.
type MeanReversion struct{}

// Name returns "mean-reversion".
func (MeanReversion) Name() string { return "mean-reversion" }

func (MeanReversion) Params() []strategy.ParamSpec {
	return withExits(
		strategy.ParamSpec{Name: "rsi_period", Default: 14, Min: 2, Max: 500, Integer: true, Description: "RSI lookback in bars"},
		strategy.ParamSpec{Name: "rsi_oversold", Default: 30, Min: 0, Max: 50, Description: "RSI buy level"},
		strategy.ParamSpec{Name: "rsi_overbought", Default: 70, Min: 50, Max: 100, Description: "RSI sell level"},
		strategy.ParamSpec{Name: "bollinger_period", Default: 20, Min: 2, Max: 1000, Integer: true, Description: "band and z-score window"},
		strategy.ParamSpec{Name: "bollinger_std", Default: 2, Min: 0.1, Max: 10, Description: "band width in standard deviations"},
		strategy.ParamSpec{Name: "z_threshold", Default: 2, Min: 0.1, Max: 10, Description: "z-score that counts as stretched"},
	)
}

func (MeanReversion) Init(p strategy.Params) (strategy.State, error) {
	if p["rsi_oversold"] >= p["rsi_overbought"] {
		return nil, fmt.Errorf("mean-reversion: rsi_oversold %v must be below rsi_overbought %v", p["rsi_oversold"], p["rsi_overbought"])
	}
	return &meanReversionState{
		rsi:        &rsiState{period: p.Int("rsi_period")},
		closes:     newWindow(p.Int("bollinger_period")),
		oversold:   p["rsi_oversold"],
		overbought: p["rsi_overbought"],
		numStd:     p["bollinger_std"],
		zLimit:     p["z_threshold"],
		exit:       exitPolicy(p),
	}, nil
}

type meanReversionState struct {
	rsi        *rsiState
	closes     *window
	oversold   float64
	overbought float64
	numStd     float64
	zLimit     float64
	exit       strategy.ExitPolicy
}

func (s *meanReversionState) OnBar(bar domain.Candle, _ domain.Position) (*domain.Signal, error) {
	rsi, rsiReady := s.rsi.update(bar.Close)
	s.closes.push(bar.Close)
	if !rsiReady || !s.closes.ready() {
		return nil, nil
	}

	vals := stats.Float64Data(s.closes.values())
	mean, err := stats.Mean(vals)
	if err != nil {
		return nil, fmt.Errorf("mean-reversion mean: %w", err)
	}
	sd, err := stats.StandardDeviationSample(vals)
	if err != nil {
		return nil, fmt.Errorf("mean-reversion stdev: %w", err)
	}
	psd, err := stats.StandardDeviationPopulation(vals)
	if err != nil {
		return nil, fmt.Errorf("mean-reversion stdev: %w", err)
	}
	var z float64
	if psd > 0 {
		z = (bar.Close - mean) / psd
	}

	low := agree(bar.Close < mean-s.numStd*sd, rsi < s.oversold, z < -s.zLimit)
	high := agree(bar.Close > mean+s.numStd*sd, rsi > s.overbought, z > s.zLimit)
	switch {
	case low > 0 && high > 0:
		return nil, nil
	case low > 0:
		return &domain.Signal{Kind: domain.SignalBuy, Confidence: float64(low) / 3,
			Reason: fmt.Sprintf("stretched low: rsi %.1f z %.2f", rsi, z)}, nil
	case high > 0:
		return &domain.Signal{Kind: domain.SignalSell, Confidence: float64(high) / 3,
			Reason: fmt.Sprintf("stretched high: rsi %.1f z %.2f", rsi, z)}, nil
	}
	return nil, nil
}

func (s *meanReversionState) ExitPolicy() strategy.ExitPolicy { return s.exit }

func agree(conds ...bool) int {
	n := 0
	for _, c := range conds {
		if c {
			n++
		}
	}
	return n
}
