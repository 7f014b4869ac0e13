package metrics

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptobot/internal/domain"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func curveOf(values ...float64) []domain.EquityPoint {
	out := make([]domain.EquityPoint, len(values))
	for i, v := range values {
		out[i] = domain.EquityPoint{Timestamp: t0.Add(time.Duration(i) * 24 * time.Hour), Value: v}
	}
	return out
}

func tradesOf(profits ...float64) []domain.Trade {
	out := make([]domain.Trade, len(profits))
	for i, p := range profits {
		out[i] = domain.Trade{
			Side:      domain.SideLong,
			EntryTime: t0.Add(time.Duration(i) * 24 * time.Hour),
			ExitTime:  t0.Add(time.Duration(i+1) * 24 * time.Hour),
			Size:      1,
			Profit:    p,
			Fees:      0.5,
		}
	}
	return out
}

func TestEvaluateEmpty(t *testing.T) {
	m := Evaluate(nil, curveOf(1000), DefaultOptions())
	assert.Equal(t, 0, m.TotalTrades)
	assert.Equal(t, 0.0, m.WinRate)
	assert.Equal(t, Factor(0), m.ProfitFactor)
	assert.Equal(t, 0.0, m.MaxDrawdown)
	assert.False(t, m.SharpeRatio.Defined)
	assert.False(t, m.SortinoRatio.Defined)
	assert.False(t, m.CalmarRatio.Defined)
}

func TestEvaluateSingleLoss(t *testing.T) {
	m := Evaluate(tradesOf(-10), curveOf(1000, 990), DefaultOptions())
	assert.Equal(t, 1, m.TotalTrades)
	assert.Equal(t, 0.0, m.WinRate)
	assert.Greater(t, m.MaxDrawdown, 0.0)
	assert.InDelta(t, 0.01, m.MaxDrawdown, 1e-12)
	assert.Equal(t, Factor(0), m.ProfitFactor)
	assert.Equal(t, -10.0, m.LargestLoss)
	assert.Equal(t, 24*time.Hour, m.AverageHoldingTime)
}

func TestEvaluateAllWinning(t *testing.T) {
	m := Evaluate(tradesOf(5, 10), curveOf(100, 105, 115), DefaultOptions())
	assert.True(t, m.ProfitFactor.IsInf())
	assert.Equal(t, 1.0, m.WinRate)
	assert.Equal(t, 0.0, m.MaxDrawdown)
	assert.False(t, m.RiskRewardRatio.Defined)
	assert.InDelta(t, 15.0, m.TotalProfit, 1e-12)
	assert.InDelta(t, 1.0, m.TotalFees, 1e-12)
	assert.InDelta(t, 0.15, m.TotalReturn, 1e-12)
}

func TestEvaluateMixed(t *testing.T) {
	m := Evaluate(tradesOf(30, -10, -5, 15), curveOf(1000, 1030, 1020, 1015, 1030), DefaultOptions())
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 2, m.LosingTrades)
	assert.Equal(t, 0.5, m.WinRate)
	assert.InDelta(t, 3.0, float64(m.ProfitFactor), 1e-12)
	assert.InDelta(t, 22.5, m.AverageWin, 1e-12)
	assert.InDelta(t, -7.5, m.AverageLoss, 1e-12)
	require.True(t, m.RiskRewardRatio.Defined)
	assert.InDelta(t, 3.0, m.RiskRewardRatio.Value, 1e-12)
	assert.InDelta(t, 7.5, m.AverageTrade, 1e-12)
	assert.GreaterOrEqual(t, m.WinRate, 0.0)
	assert.LessOrEqual(t, m.WinRate, 1.0)
}

func TestMaxDrawdownDuration(t *testing.T) {
	dd, dur := MaxDrawdown(curveOf(100, 120, 90, 130))
	assert.InDelta(t, 0.25, dd, 1e-12)
	assert.Equal(t, 48*time.Hour, dur)

	_, dur = MaxDrawdown(curveOf(100, 120, 110, 100))
	assert.Equal(t, 48*time.Hour, dur, "unrecovered drawdown runs to the end of the series")

	dd, _ = MaxDrawdown(curveOf(100, 100, 101, 150))
	assert.Equal(t, 0.0, dd)
}

var daily = Options{PeriodsPerYear: 252, Confidence: 0.95}

func TestSharpeSampleStdev(t *testing.T) {
	r := Sharpe([]float64{0.01, 0.03}, daily)
	require.True(t, r.Defined)
	assert.InDelta(t, math.Sqrt2*math.Sqrt(252), r.Value, 1e-9)

	assert.False(t, Sharpe([]float64{0.01}, daily).Defined)
	assert.False(t, Sharpe([]float64{0.02, 0.02, 0.02}, daily).Defined, "zero stdev")
	assert.False(t, Sharpe([]float64{0.01, 0.03}, DefaultOptions()).Defined, "no sampling rate")
}

func TestSharpeRiskFree(t *testing.T) {
	opts := Options{PeriodsPerYear: 252, RiskFreeRate: 0.252}
	r := Sharpe([]float64{0.002, 0.004}, opts)
	require.True(t, r.Defined)
	// Excess returns are 0.001 and 0.003.
	assert.InDelta(t, math.Sqrt2*math.Sqrt(252), r.Value, 1e-6)
}

func TestSortino(t *testing.T) {
	r := Sortino([]float64{-0.01, -0.03, 0.1}, daily)
	require.True(t, r.Defined)
	assert.InDelta(t, math.Sqrt2*math.Sqrt(252), r.Value, 1e-9)

	assert.False(t, Sortino([]float64{0.01, 0.02, -0.01}, daily).Defined, "one negative return")
}

func TestVaRAndCVaR(t *testing.T) {
	returns := make([]float64, 20)
	for i := range returns {
		returns[19-i] = float64(i-10) / 100
	}

	v, cv := VaR(returns, 0.95)
	assert.InDelta(t, -0.10, v.Value, 1e-12)
	assert.InDelta(t, -0.10, cv.Value, 1e-12)

	v, cv = VaR(returns, 0.90)
	assert.InDelta(t, -0.09, v.Value, 1e-12)
	assert.InDelta(t, -0.095, cv.Value, 1e-12)
	assert.LessOrEqual(t, cv.Value, v.Value)

	v, cv = VaR(nil, 0.95)
	assert.False(t, v.Defined)
	assert.False(t, cv.Defined)
}

func TestEvaluateRisk(t *testing.T) {
	rm := EvaluateRisk(curveOf(100, 90, 99, 89.1, 98.01), Options{Confidence: 0.5})
	assert.Equal(t, 0.5, rm.Confidence)
	require.True(t, rm.ValueAtRisk.Defined)
	assert.InDelta(t, -0.1, rm.ValueAtRisk.Value, 1e-9)
	require.True(t, rm.TailRisk.Defined)
	assert.InDelta(t, 1.0, rm.TailRisk.Value, 1e-9)
	assert.True(t, rm.Volatility.Defined)

	flat := EvaluateRisk(curveOf(100, 100), DefaultOptions())
	assert.False(t, flat.TailRisk.Defined, "zero VaR leaves tail risk undefined")
	assert.False(t, flat.Volatility.Defined)
}

func TestDiversification(t *testing.T) {
	d, err := Diversification(map[string]float64{"BTC": 1, "ETH": 1, "SOL": 1, "ADA": 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, d.HerfindahlIndex, 1e-12)
	assert.InDelta(t, 0.0, d.GiniCoefficient, 1e-12)
	assert.InDelta(t, 4.0, d.EffectiveN, 1e-12)

	d, err = Diversification(map[string]float64{"BTC": 3, "ETH": 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.625, d.HerfindahlIndex, 1e-12)
	assert.InDelta(t, 0.25, d.GiniCoefficient, 1e-12)
	assert.InDelta(t, 1.6, d.EffectiveN, 1e-12)
	assert.InDelta(t, 0.75, d.Weights["BTC"], 1e-12)

	d, err = Diversification(map[string]float64{"BTC": 5})
	require.NoError(t, err)
	assert.Equal(t, 1.0, d.HerfindahlIndex)

	for _, bad := range []map[string]float64{nil, {"BTC": -1, "ETH": 2}, {"BTC": 0}} {
		_, err := Diversification(bad)
		assert.ErrorIs(t, err, ErrBadWeights)
	}
}

func TestAnnualizedAndCalmar(t *testing.T) {
	r := AnnualizedReturn(0.21, 2)
	require.True(t, r.Defined)
	assert.InDelta(t, 0.1, r.Value, 1e-12)
	assert.False(t, AnnualizedReturn(-1.5, 1).Defined)
	assert.False(t, AnnualizedReturn(0.1, 0).Defined, "no elapsed time")

	m := Evaluate(tradesOf(20, -10), curveOf(100, 120, 110), Options{Elapsed: Year})
	require.True(t, m.AnnualizedReturn.Defined)
	assert.InDelta(t, 0.1, m.AnnualizedReturn.Value, 1e-12)
	require.True(t, m.CalmarRatio.Defined)
	assert.InDelta(t, m.AnnualizedReturn.Value/m.MaxDrawdown, m.CalmarRatio.Value, 1e-12)
}

func TestAnnualizeOverElapsedTime(t *testing.T) {
	// One +10% trade closed on day one of a year-long flat run.
	m := Evaluate(tradesOf(10), curveOf(100, 110), Options{Elapsed: Year})
	require.True(t, m.AnnualizedReturn.Defined)
	assert.InDelta(t, 0.1, m.AnnualizedReturn.Value, 1e-12)

	// Without Elapsed the curve's span is used: one day.
	m = Evaluate(tradesOf(10), curveOf(100, 110), DefaultOptions())
	assert.InDelta(t, math.Pow(1.1, 365)-1, m.AnnualizedReturn.Value, 1e-3*math.Pow(1.1, 365))

	assert.Equal(t, 2.0, Options{Elapsed: 2 * Year}.Years(nil))
	assert.Equal(t, 0.0, DefaultOptions().Years(curveOf(100)))
}

func TestSharpeUsesObservedRate(t *testing.T) {
	curve := curveOf(100, 101, 100.5, 102)
	returns := Returns(curve)

	// Three returns over the run's year sample at 3 per year.
	m := Evaluate(tradesOf(1, -0.5, 1.5), curve, Options{Elapsed: Year})
	want := Sharpe(returns, Options{PeriodsPerYear: 3})
	require.True(t, want.Defined)
	assert.InDelta(t, want.Value, m.SharpeRatio.Value, 1e-12)

	fixed := Evaluate(tradesOf(1, -0.5, 1.5), curve, Options{Elapsed: Year, PeriodsPerYear: 252})
	assert.InDelta(t, Sharpe(returns, daily).Value, fixed.SharpeRatio.Value, 1e-12)

	rm := EvaluateRisk(curve, Options{Elapsed: Year})
	require.True(t, rm.Volatility.Defined)
	sd := stdevSample(returns)
	assert.InDelta(t, sd*math.Sqrt(3), rm.Volatility.Value, 1e-12)
}

func stdevSample(xs []float64) float64 {
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func TestJSONEncoding(t *testing.T) {
	m := Evaluate(tradesOf(5), curveOf(100, 105), DefaultOptions())
	data, err := json.Marshal(m)
	require.NoError(t, err)
	s := string(data)
	assert.True(t, strings.Contains(s, `"sharpeRatio":null`), s)
	assert.True(t, strings.Contains(s, `"profitFactor":"+Inf"`), s)

	var back PerformanceMetrics
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.ProfitFactor.IsInf())
	assert.False(t, back.SharpeRatio.Defined)
	assert.Equal(t, m.TotalReturn, back.TotalReturn)
}
