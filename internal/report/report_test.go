package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptobot/internal/domain"
	"cryptobot/internal/engine"
	"cryptobot/internal/metrics"
	"cryptobot/internal/store"
	"cryptobot/internal/strategy"
	"cryptobot/internal/strategy/builtins"
	"cryptobot/internal/sweep"
)

func sampleTrades() []domain.Trade {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []domain.Trade{{
		Symbol: "BTC/USD", Side: domain.SideLong,
		EntryPrice: 100, ExitPrice: 110, Size: 10,
		EntryTime: t0, ExitTime: t0.Add(24 * time.Hour),
		Fees: 2.1, Profit: 97.9, ExitReason: domain.ExitSignal,
	}}
}

func TestWriteTradesCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTradesCSV(&buf, sampleTrades()))

	var rows []TradeRow
	require.NoError(t, gocsv.UnmarshalString(buf.String(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "97.90", rows[0].Profit)
	assert.Equal(t, "2.10", rows[0].Fees)
	assert.Equal(t, "110", rows[0].ExitPrice)
	assert.Equal(t, "2024-01-02T00:00:00Z", rows[0].ExitTime)

	buf.Reset()
	require.NoError(t, WriteTradesCSV(&buf, nil))
	assert.True(t, strings.HasPrefix(buf.String(), "symbol,side,"))
}

func TestPrintRun(t *testing.T) {
	res := &engine.BacktestResult{
		InitialCapital: 1000,
		FinalEquity:    1097.9,
		TotalProfit:    97.9,
		Params:         strategy.Params{"fast_period": 5},
		Trades:         sampleTrades(),
		Metrics: metrics.PerformanceMetrics{
			TotalTrades:  1,
			WinRate:      1,
			ProfitFactor: metrics.ProfitFactor(97.9, 0),
		},
		Risk: metrics.RiskMetrics{Confidence: 0.95},
	}
	run := &store.RunRecord{
		ID: "abc", StrategyID: "sma-cross", Symbol: "BTC/USD",
		Timeframe: domain.Timeframe1d, DataSource: "synthetic", Result: res,
	}
	var buf bytes.Buffer
	PrintRun(&buf, run)
	out := buf.String()
	for _, want := range []string{"sma-cross on BTC/USD", "SYNTHETIC", "1097.90", "100.00%", "+Inf", "n/a", "fast_period=5"} {
		assert.Contains(t, out, want)
	}

	buf.Reset()
	PrintTrades(&buf, res.Trades)
	assert.Contains(t, buf.String(), "signal")
}

func TestPrintStrategiesAndSweep(t *testing.T) {
	var buf bytes.Buffer
	PrintStrategies(&buf, builtins.Registry().Describe())
	assert.Contains(t, buf.String(), "slow_period")
	assert.Contains(t, buf.String(), "macd")

	results := []sweep.Result{
		{Index: 0, Params: strategy.Params{"fast_period": 5}, Result: &engine.BacktestResult{
			Metrics: metrics.PerformanceMetrics{SharpeRatio: metrics.Def(1.5), TotalProfit: 12},
		}},
		{Index: 1, Params: strategy.Params{"fast_period": 50}, Err: "fast_period 50 must be below slow_period 20"},
	}
	buf.Reset()
	PrintSweep(&buf, results, sweep.BySharpe, 0)
	out := buf.String()
	assert.Contains(t, out, "1.500")
	assert.Contains(t, out, "1 parameter sets failed")
}
