package metrics

import (
	"math"
	"slices"

	"github.com/montanaflynn/stats"

	"cryptobot/internal/domain"
)

// RiskMetrics describe the loss tail of the per-period return distribution.
// VaR and CVaR are signed returns, so CVaR <= VaR whenever both are defined.
type RiskMetrics struct {
	Confidence             float64 `json:"confidence"`
	ValueAtRisk            Ratio   `json:"valueAtRisk"`
	ConditionalValueAtRisk Ratio   `json:"conditionalValueAtRisk"`
	TailRisk               Ratio   `json:"tailRisk"`
	DownsideDeviation      Ratio   `json:"downsideDeviation"`
	Volatility             Ratio   `json:"volatility"` // annualised
}

// EvaluateRisk computes RiskMetrics from an equity curve.
func EvaluateRisk(curve []domain.EquityPoint, opts Options) RiskMetrics {
	opts = opts.withDefaults()
	returns := Returns(curve)
	rm := RiskMetrics{Confidence: opts.Confidence}
	rm.ValueAtRisk, rm.ConditionalValueAtRisk = VaR(returns, opts.Confidence)
	if rm.ValueAtRisk.Defined && rm.ValueAtRisk.Value != 0 {
		rm.TailRisk = Def(rm.ConditionalValueAtRisk.Value / rm.ValueAtRisk.Value)
	}
	rm.DownsideDeviation = DownsideDeviation(returns)
	rate := opts.sampled(curve, len(returns)).PeriodsPerYear
	if len(returns) >= 2 && rate > 0 {
		if sd, err := stats.StandardDeviationSample(returns); err == nil {
			rm.Volatility = Def(sd * math.Sqrt(rate))
		}
	}
	return rm
}

// VaR returns the historical value-at-risk and expected shortfall at
// confidence c. Returns are sorted ascending and the cut index is
// ceil((1-c)·n) - 1, clamped to the series.
func VaR(returns []float64, c float64) (Ratio, Ratio) {
	n := len(returns)
	if n == 0 {
		return Undefined, Undefined
	}
	sorted := slices.Clone(returns)
	slices.Sort(sorted)

	// The epsilon keeps (1-0.95)*20 from rounding up past 1.
	k := int(math.Ceil((1-c)*float64(n)-1e-9)) - 1
	k = max(0, min(k, n-1))

	tail := stats.Float64Data(sorted[:k+1])
	cvar, err := stats.Mean(tail)
	if err != nil {
		return Def(sorted[k]), Undefined
	}
	return Def(sorted[k]), Def(cvar)
}
