// Package broker simulates order execution for backtests: fill prices with
// slippage, fees, position sizing and exit handling.
package broker

import (
	"fmt"
	"math"

	"cryptobot/internal/domain"
)

// Friction is the cost model applied to every fill.
type Friction struct {
	SlippageRate float64 `json:"slippageRate" yaml:"slippage_rate"`
	FeeRate      float64 `json:"feeRate" yaml:"fee_rate"`
}

// Validate checks both rates lie in [0, 1).
func (f Friction) Validate() error {
	if f.SlippageRate < 0 || f.SlippageRate >= 1 || math.IsNaN(f.SlippageRate) {
		return fmt.Errorf("slippage rate %v outside [0, 1)", f.SlippageRate)
	}
	if f.FeeRate < 0 || f.FeeRate >= 1 || math.IsNaN(f.FeeRate) {
		return fmt.Errorf("fee rate %v outside [0, 1)", f.FeeRate)
	}
	return nil
}

// BuyPrice is the fill for an order that buys at price.
func (f Friction) BuyPrice(price float64) float64 { return price * (1 + f.SlippageRate) }

// SellPrice is the fill for an order that sells at price.
func (f Friction) SellPrice(price float64) float64 { return price * (1 - f.SlippageRate) }

// Fee returns the fee for size units filled at price.
func (f Friction) Fee(size, price float64) float64 { return size * price * f.FeeRate }

// Sizer decides how many units to trade for an entry signal. The simulator
// clamps the result to what equity can pay for.
type Sizer interface {
	Size(equity, price float64, sig domain.Signal) float64
}

// FixedFractional commits Fraction of current equity to each entry.
type FixedFractional struct {
	Fraction float64
}

func (s FixedFractional) Size(equity, price float64, _ domain.Signal) float64 {
	if price <= 0 {
		return 0
	}
	return s.Fraction * equity / price
}

// FixedSize trades a constant number of units.
type FixedSize struct {
	Units float64
}

func (s FixedSize) Size(_, _ float64, _ domain.Signal) float64 { return s.Units }

// ConfidenceScaled is FixedFractional scaled by the signal's confidence.
type ConfidenceScaled struct {
	Fraction float64
}

func (s ConfidenceScaled) Size(equity, price float64, sig domain.Signal) float64 {
	if price <= 0 {
		return 0
	}
	return s.Fraction * sig.Confidence * equity / price
}

// SizerFor maps a sizing policy name onto a Sizer. Recognised names are
// "fixed_fractional" (default), "fixed_size" and "confidence".
func SizerFor(policy string, value float64) (Sizer, error) {
	if value <= 0 {
		return nil, fmt.Errorf("sizing value %v must be positive", value)
	}
	switch policy {
	case "", "fixed_fractional":
		return FixedFractional{Fraction: value}, nil
	case "fixed_size":
		return FixedSize{Units: value}, nil
	case "confidence":
		return ConfidenceScaled{Fraction: value}, nil
	default:
		return nil, fmt.Errorf("unknown sizing policy %q", policy)
	}
}
