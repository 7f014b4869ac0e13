// Package metrics computes performance, tail-risk and diversification
// statistics from a completed trade ledger and its equity curve. Every
// function works on the full history it is given.
package metrics

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"cryptobot/internal/domain"
)

// Year is the 365-day year every annualised figure is expressed in.
const Year = 365 * 24 * time.Hour

// Options tune annualisation and tail-risk confidence.
type Options struct {
	// PeriodsPerYear fixes the sampling rate used to annualise Sharpe,
	// Sortino and volatility. Zero uses the observed rate: returns per year
	// of elapsed time.
	PeriodsPerYear float64 `json:"periodsPerYear" yaml:"periods_per_year"`
	Confidence     float64 `json:"confidence" yaml:"confidence"`
	RiskFreeRate   float64 `json:"riskFreeRate" yaml:"risk_free_rate"` // annual

	// Elapsed is the length of the evaluated run. Zero falls back to the
	// time spanned by the equity curve.
	Elapsed time.Duration `json:"-" yaml:"-"`
}

// DefaultOptions use the observed sampling rate at 95% confidence with no
// risk-free rate.
func DefaultOptions() Options {
	return Options{Confidence: 0.95}
}

func (o Options) withDefaults() Options {
	if o.Confidence <= 0 || o.Confidence >= 1 {
		o.Confidence = DefaultOptions().Confidence
	}
	return o
}

// Years is the elapsed time of the run in 365-day years.
func (o Options) Years(curve []domain.EquityPoint) float64 {
	span := o.Elapsed
	if span <= 0 && len(curve) > 1 {
		span = curve[len(curve)-1].Timestamp.Sub(curve[0].Timestamp)
	}
	if span <= 0 {
		return 0
	}
	return float64(span) / float64(Year)
}

// sampled fills in PeriodsPerYear from n returns observed over the run when
// no rate is fixed. It stays zero when the run has no duration.
func (o Options) sampled(curve []domain.EquityPoint, n int) Options {
	if o.PeriodsPerYear <= 0 {
		if y := o.Years(curve); y > 0 {
			o.PeriodsPerYear = float64(n) / y
		}
	}
	return o
}

// PerformanceMetrics summarises a run.
type PerformanceMetrics struct {
	SharpeRatio         Ratio         `json:"sharpeRatio"`
	SortinoRatio        Ratio         `json:"sortinoRatio"`
	MaxDrawdown         float64       `json:"maxDrawdown"`
	MaxDrawdownDuration time.Duration `json:"maxDrawdownDuration"`
	WinRate             float64       `json:"winRate"`
	ProfitFactor        Factor        `json:"profitFactor"`
	TotalTrades         int           `json:"totalTrades"`
	WinningTrades       int           `json:"winningTrades"`
	LosingTrades        int           `json:"losingTrades"`
	AverageTrade        float64       `json:"averageTrade"`
	AverageWin          float64       `json:"averageWin"`
	AverageLoss         float64       `json:"averageLoss"`
	LargestWin          float64       `json:"largestWin"`
	LargestLoss         float64       `json:"largestLoss"`
	RiskRewardRatio     Ratio         `json:"riskRewardRatio"`
	TotalProfit         float64       `json:"totalProfit"`
	TotalFees           float64       `json:"totalFees"`
	TotalReturn         float64       `json:"totalReturn"`
	AnnualizedReturn    Ratio         `json:"annualizedReturn"`
	CalmarRatio         Ratio         `json:"calmarRatio"`
	AverageHoldingTime  time.Duration `json:"averageHoldingTime"`
}

// Evaluate computes PerformanceMetrics. curve must start with the initial
// capital point, as produced by the ledger.
func Evaluate(trades []domain.Trade, curve []domain.EquityPoint, opts Options) PerformanceMetrics {
	opts = opts.withDefaults()
	var m PerformanceMetrics

	tradeStats(&m, trades)

	dd, ddDur := MaxDrawdown(curve)
	m.MaxDrawdown, m.MaxDrawdownDuration = dd, ddDur

	returns := Returns(curve)
	rate := opts.sampled(curve, len(returns))
	m.SharpeRatio = Sharpe(returns, rate)
	m.SortinoRatio = Sortino(returns, rate)

	if len(curve) > 0 && curve[0].Value > 0 {
		m.TotalReturn = (curve[len(curve)-1].Value - curve[0].Value) / curve[0].Value
	}
	m.AnnualizedReturn = AnnualizedReturn(m.TotalReturn, opts.Years(curve))
	if m.AnnualizedReturn.Defined && m.MaxDrawdown > 0 {
		m.CalmarRatio = Def(m.AnnualizedReturn.Value / m.MaxDrawdown)
	}
	return m
}

func tradeStats(m *PerformanceMetrics, trades []domain.Trade) {
	m.TotalTrades = len(trades)
	if len(trades) == 0 {
		return
	}
	var gains, losses float64
	var held time.Duration
	for _, t := range trades {
		m.TotalProfit += t.Profit
		m.TotalFees += t.Fees
		held += t.HoldingTime()
		switch {
		case t.Profit > 0:
			m.WinningTrades++
			gains += t.Profit
			m.LargestWin = math.Max(m.LargestWin, t.Profit)
		case t.Profit < 0:
			m.LosingTrades++
			losses += t.Profit
			m.LargestLoss = math.Min(m.LargestLoss, t.Profit)
		}
	}
	n := float64(len(trades))
	m.WinRate = float64(m.WinningTrades) / n
	m.AverageTrade = m.TotalProfit / n
	m.AverageHoldingTime = held / time.Duration(len(trades))
	if m.WinningTrades > 0 {
		m.AverageWin = gains / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = losses / float64(m.LosingTrades)
	}
	if m.WinningTrades > 0 && m.LosingTrades > 0 {
		m.RiskRewardRatio = Def(m.AverageWin / math.Abs(m.AverageLoss))
	}
	m.ProfitFactor = ProfitFactor(gains, losses)
}

// ProfitFactor is gains / |losses|: +Inf when there are gains and no losses,
// 0 when both are zero.
func ProfitFactor(gains, losses float64) Factor {
	losses = math.Abs(losses)
	switch {
	case losses == 0 && gains > 0:
		return Factor(math.Inf(1))
	case losses == 0:
		return 0
	}
	return Factor(gains / losses)
}

// Returns are the simple returns between consecutive curve points. Steps
// from a non-positive value are skipped.
func Returns(curve []domain.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Value
		if prev <= 0 {
			continue
		}
		out = append(out, (curve[i].Value-prev)/prev)
	}
	return out
}

// MaxDrawdown returns the largest peak-to-trough decline as a fraction of the
// peak, found in one forward pass, and the longest time spent below a peak.
func MaxDrawdown(curve []domain.EquityPoint) (float64, time.Duration) {
	if len(curve) == 0 {
		return 0, 0
	}
	peak, peakAt := curve[0].Value, curve[0].Timestamp
	var maxDD float64
	var longest time.Duration
	under := false
	for _, p := range curve[1:] {
		if p.Value >= peak {
			if under {
				longest = max(longest, p.Timestamp.Sub(peakAt))
				under = false
			}
			peak, peakAt = p.Value, p.Timestamp
			continue
		}
		under = true
		if peak > 0 {
			maxDD = math.Max(maxDD, (peak-p.Value)/peak)
		}
	}
	if under {
		longest = max(longest, curve[len(curve)-1].Timestamp.Sub(peakAt))
	}
	return maxDD, longest
}

func excess(returns []float64, opts Options) stats.Float64Data {
	rf := opts.RiskFreeRate / opts.PeriodsPerYear
	out := make(stats.Float64Data, len(returns))
	for i, r := range returns {
		out[i] = r - rf
	}
	return out
}

// Sharpe is mean excess return over its sample standard deviation,
// annualised by √PeriodsPerYear. It is undefined without a sampling rate.
func Sharpe(returns []float64, opts Options) Ratio {
	if len(returns) < 2 || opts.PeriodsPerYear <= 0 {
		return Undefined
	}
	ex := excess(returns, opts)
	mean, err := stats.Mean(ex)
	if err != nil {
		return Undefined
	}
	sd, err := stats.StandardDeviationSample(ex)
	if err != nil || sd == 0 {
		return Undefined
	}
	return Def(mean / sd * math.Sqrt(opts.PeriodsPerYear))
}

// DownsideDeviation is the sample standard deviation of the negative
// returns only.
func DownsideDeviation(returns []float64) Ratio {
	var neg stats.Float64Data
	for _, r := range returns {
		if r < 0 {
			neg = append(neg, r)
		}
	}
	if len(neg) < 2 {
		return Undefined
	}
	sd, err := stats.StandardDeviationSample(neg)
	if err != nil || sd == 0 {
		return Undefined
	}
	return Def(sd)
}

// Sortino is mean excess return over the downside deviation, annualised by
// √PeriodsPerYear.
func Sortino(returns []float64, opts Options) Ratio {
	if len(returns) < 2 || opts.PeriodsPerYear <= 0 {
		return Undefined
	}
	ex := excess(returns, opts)
	dd := DownsideDeviation(ex)
	if !dd.Defined {
		return Undefined
	}
	mean, err := stats.Mean(ex)
	if err != nil {
		return Undefined
	}
	return Def(mean / dd.Value * math.Sqrt(opts.PeriodsPerYear))
}

// AnnualizedReturn is the constant yearly rate that compounds to totalReturn
// over years: (1 + totalReturn)^(1/years) - 1.
func AnnualizedReturn(totalReturn, years float64) Ratio {
	if years <= 0 || 1+totalReturn <= 0 {
		return Undefined
	}
	return Def(math.Pow(1+totalReturn, 1/years) - 1)
}
