// Package builtins provides the strategies that ship with cryptobot.
package builtins

import (
	"slices"

	"cryptobot/internal/strategy"
)

// All returns one instance of every built-in strategy.
func All() []strategy.Strategy {
	return []strategy.Strategy{
		BuyHold{},
		SMACross{},
		RSI{},
		Bollinger{},
		MACD{},
		MeanReversion{},
		VolatilityBreakout{},
		VolumeProfile{},
	}
}

// Registry returns a registry holding every built-in strategy.
func Registry() *strategy.Registry {
	return strategy.NewRegistry(All()...)
}

var exitSpecs = []strategy.ParamSpec{
	{Name: "stop_loss", Default: 0, Min: 0, Max: 1, Description: "stop-loss as a fraction of entry price, 0 disables"},
	{Name: "take_profit", Default: 0, Min: 0, Max: 10, Description: "take-profit as a fraction of entry price, 0 disables"},
}

func withExits(specs ...strategy.ParamSpec) []strategy.ParamSpec {
	return append(specs, exitSpecs...)
}

// withExitDefaults is withExits with a strategy's own stop-loss and
// take-profit defaults.
func withExitDefaults(stopLoss, takeProfit float64, specs ...strategy.ParamSpec) []strategy.ParamSpec {
	exits := slices.Clone(exitSpecs)
	exits[0].Default, exits[1].Default = stopLoss, takeProfit
	return append(specs, exits...)
}

func exitPolicy(p strategy.Params) strategy.ExitPolicy {
	return strategy.ExitPolicy{
		Rule:       strategy.ExitOnOpposite,
		StopLoss:   p["stop_loss"],
		TakeProfit: p["take_profit"],
	}
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}

// window is a fixed-size ring of closes with a running sum.
type window struct {
	vals []float64
	next int
	full bool
	sum  float64
}

func newWindow(n int) *window { return &window{vals: make([]float64, n)} }

func (w *window) push(v float64) {
	if w.full {
		w.sum -= w.vals[w.next]
	}
	w.vals[w.next] = v
	w.sum += v
	w.next++
	if w.next == len(w.vals) {
		w.next = 0
		w.full = true
	}
}

func (w *window) ready() bool { return w.full }

func (w *window) mean() float64 { return w.sum / float64(len(w.vals)) }

// values returns the window contents oldest first.
func (w *window) values() []float64 {
	out := make([]float64, 0, len(w.vals))
	out = append(out, w.vals[w.next:]...)
	return append(out, w.vals[:w.next]...)
}
