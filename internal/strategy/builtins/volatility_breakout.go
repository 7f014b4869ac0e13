package builtins

import (
	"fmt"
	"slices"

	"cryptobot/internal/domain"
	"cryptobot/internal/strategy"
)

var _ strategy.Strategy = VolatilityBreakout{}

// VolatilityBreakout trades a close beyond the prior lookback range,
// extended by range_multiplier times its width, on volume at least
// volume_ratio times the prior average. Upside breaks buy, downside breaks
// sell. Take-profit defaults to 2%.
type VolatilityBreakout struct{}

// Name returns "volatility-breakout".
func (VolatilityBreakout) Name() string { return "volatility-breakout" }

func (VolatilityBreakout) Params() []strategy.ParamSpec {
	return withExitDefaults(0, 0.02,
		strategy.ParamSpec{Name: "lookback_period", Default: 20, Min: 2, Max: 1000, Integer: true, Description: "bars forming the range"},
		strategy.ParamSpec{Name: "range_multiplier", Default: 0.5, Min: 0, Max: 10, Description: "range widths past the high or low that count as a break"},
		strategy.ParamSpec{Name: "volume_ratio", Default: 1.5, Min: 0, Max: 100, Description: "bar volume over average volume required"},
	)
}

func (VolatilityBreakout) Init(p strategy.Params) (strategy.State, error) {
	n := p.Int("lookback_period")
	return &breakoutState{
		highs:   newWindow(n),
		lows:    newWindow(n),
		volumes: newWindow(n),
		mult:    p["range_multiplier"],
		volRate: p["volume_ratio"],
		exit:    exitPolicy(p),
	}, nil
}

type breakoutState struct {
	highs, lows, volumes *window
	mult                 float64
	volRate              float64
	exit                 strategy.ExitPolicy
}

func (s *breakoutState) OnBar(bar domain.Candle, _ domain.Position) (*domain.Signal, error) {
	defer func() {
		s.highs.push(bar.High)
		s.lows.push(bar.Low)
		s.volumes.push(bar.Volume)
	}()
	if !s.volumes.ready() {
		return nil, nil
	}

	hi, lo := slices.Max(s.highs.values()), slices.Min(s.lows.values())
	width := hi - lo
	avgVol := s.volumes.mean()
	if avgVol <= 0 || bar.Volume < avgVol*s.volRate {
		return nil, nil
	}
	ratio := bar.Volume / avgVol
	conf := clamp01(0.5 + 0.25*(ratio-s.volRate))

	switch upper, lower := hi+width*s.mult, lo-width*s.mult; {
	case bar.Close > upper:
		return &domain.Signal{Kind: domain.SignalBuy, Confidence: conf,
			Reason: fmt.Sprintf("close above %.4g on %.1fx volume", upper, ratio)}, nil
	case bar.Close < lower:
		return &domain.Signal{Kind: domain.SignalSell, Confidence: conf,
			Reason: fmt.Sprintf("close below %.4g on %.1fx volume", lower, ratio)}, nil
	}
	return nil, nil
}

func (s *breakoutState) ExitPolicy() strategy.ExitPolicy { return s.exit }
