package builtins

import (
	"fmt"

	"cryptobot/internal/domain"
	"cryptobot/internal/strategy"
)

var _ strategy.Strategy = RSI{}

// RSI trades Wilder's relative strength index: buy below the oversold level,
// sell above the overbought level. Confidence grows with the distance past
// the threshold.
type RSI struct{}

// Name returns "rsi".
func (RSI) Name() string { return "rsi" }

func (RSI) Params() []strategy.ParamSpec {
	return withExits(
		strategy.ParamSpec{Name: "rsi_period", Default: 14, Min: 2, Max: 500, Integer: true, Description: "lookback in bars"},
		strategy.ParamSpec{Name: "overbought", Default: 70, Min: 50, Max: 100, Description: "sell above this level"},
		strategy.ParamSpec{Name: "oversold", Default: 30, Min: 0, Max: 50, Description: "buy below this level"},
	)
}

func (RSI) Init(p strategy.Params) (strategy.State, error) {
	if p["oversold"] >= p["overbought"] {
		return nil, fmt.Errorf("rsi: oversold %v must be below overbought %v", p["oversold"], p["overbought"])
	}
	return &rsiState{
		period:     p.Int("rsi_period"),
		overbought: p["overbought"],
		oversold:   p["oversold"],
		exit:       exitPolicy(p),
	}, nil
}

type rsiState struct {
	period     int
	overbought float64
	oversold   float64
	exit       strategy.ExitPolicy

	prevClose float64
	seen      int
	gainSum   float64
	lossSum   float64
	avgGain   float64
	avgLoss   float64
}

// update feeds one close and reports the RSI once period deltas are known.
func (s *rsiState) update(close float64) (float64, bool) {
	s.seen++
	if s.seen == 1 {
		s.prevClose = close
		return 0, false
	}
	delta := close - s.prevClose
	s.prevClose = close
	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	n := float64(s.period)
	deltas := s.seen - 1
	switch {
	case deltas < s.period:
		s.gainSum += gain
		s.lossSum += loss
		return 0, false
	case deltas == s.period:
		s.avgGain = (s.gainSum + gain) / n
		s.avgLoss = (s.lossSum + loss) / n
	default:
		s.avgGain = (s.avgGain*(n-1) + gain) / n
		s.avgLoss = (s.avgLoss*(n-1) + loss) / n
	}
	if s.avgLoss == 0 {
		if s.avgGain == 0 {
			return 50, true
		}
		return 100, true
	}
	rs := s.avgGain / s.avgLoss
	return 100 - 100/(1+rs), true
}

func (s *rsiState) OnBar(bar domain.Candle, _ domain.Position) (*domain.Signal, error) {
	rsi, ok := s.update(bar.Close)
	if !ok {
		return nil, nil
	}
	switch {
	case rsi < s.oversold:
		conf := 1.0
		if s.oversold > 0 {
			conf = clamp01(0.5 + 0.5*(s.oversold-rsi)/s.oversold)
		}
		return &domain.Signal{Kind: domain.SignalBuy, Confidence: conf, Reason: fmt.Sprintf("rsi %.1f below %.0f", rsi, s.oversold)}, nil
	case rsi > s.overbought:
		conf := 1.0
		if s.overbought < 100 {
			conf = clamp01(0.5 + 0.5*(rsi-s.overbought)/(100-s.overbought))
		}
		return &domain.Signal{Kind: domain.SignalSell, Confidence: conf, Reason: fmt.Sprintf("rsi %.1f above %.0f", rsi, s.overbought)}, nil
	}
	return nil, nil
}

func (s *rsiState) ExitPolicy() strategy.ExitPolicy { return s.exit }
