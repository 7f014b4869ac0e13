package broker

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptobot/internal/domain"
	"cryptobot/internal/strategy"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func bar(i int, close float64) domain.Candle {
	return domain.Candle{
		Symbol:    "BTCUSDT",
		Timestamp: t0.Add(time.Duration(i) * time.Hour),
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    10,
	}
}

var (
	buy  = domain.Signal{Kind: domain.SignalBuy, Confidence: 1}
	sell = domain.Signal{Kind: domain.SignalSell, Confidence: 1}
)

func newSim(cfg Config) *Simulator {
	if cfg.InitialCapital == 0 {
		cfg.InitialCapital = 10_000
	}
	cfg.Symbol = "BTCUSDT"
	cfg.Start = t0
	return NewSimulator(cfg)
}

func TestLongRoundTripLoss(t *testing.T) {
	sim := newSim(Config{Sizer: FixedSize{Units: 1}})

	tr, err := sim.Execute(buy, bar(0, 100))
	require.NoError(t, err)
	assert.Nil(t, tr)
	assert.True(t, sim.Position().Open())

	tr, err = sim.Execute(domain.Signal{Kind: domain.SignalHold, Confidence: 1}, bar(1, 110))
	require.NoError(t, err)
	assert.Nil(t, tr)

	tr, err = sim.Execute(sell, bar(2, 90))
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, 100.0, tr.EntryPrice)
	assert.Equal(t, 90.0, tr.ExitPrice)
	assert.Equal(t, -10.0, tr.Profit)
	assert.Equal(t, domain.ExitSignal, tr.ExitReason)
	assert.False(t, sim.Position().Open())
	assert.Equal(t, 9_990.0, sim.Equity())
}

func TestFeesOnEntryAndExit(t *testing.T) {
	sim := newSim(Config{Sizer: FixedSize{Units: 1}, Friction: Friction{FeeRate: 0.001}})

	_, err := sim.Execute(buy, bar(0, 1000))
	require.NoError(t, err)
	tr, err := sim.Execute(sell, bar(1, 1100))
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.InDelta(t, 2.1, tr.Fees, 1e-9)
	assert.InDelta(t, 97.9, tr.Profit, 1e-9)
}

func TestSlippageDirection(t *testing.T) {
	f := Friction{SlippageRate: 0.01}
	sim := newSim(Config{Sizer: FixedSize{Units: 2}, Friction: f, AllowShort: true})

	_, _ = sim.Execute(sell, bar(0, 100))
	pos := sim.Position()
	assert.Equal(t, domain.SideShort, pos.Side)
	assert.InDelta(t, 99.0, pos.EntryPrice, 1e-9, "short entry sells below close")

	tr, err := sim.Execute(buy, bar(1, 100))
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.InDelta(t, 101.0, tr.ExitPrice, 1e-9, "short exit buys above close")
	assert.InDelta(t, -4.0, tr.Profit, 1e-9)
}

func TestNoTradeOutcomes(t *testing.T) {
	sim := newSim(Config{})

	tr, err := sim.Execute(domain.Signal{Kind: domain.SignalHold, Confidence: 1}, bar(0, 100))
	assert.NoError(t, err)
	assert.Nil(t, tr)

	tr, _ = sim.Execute(domain.Signal{Kind: domain.SignalBuy, Confidence: 0}, bar(0, 100))
	assert.Nil(t, tr)
	assert.False(t, sim.Position().Open(), "zero confidence must not open")

	tr, _ = sim.Execute(sell, bar(0, 100))
	assert.Nil(t, tr)
	assert.False(t, sim.Position().Open(), "sell while flat without shorting must not open")

	_, _ = sim.Execute(buy, bar(1, 100))
	size := sim.Position().Size
	tr, _ = sim.Execute(buy, bar(2, 120))
	assert.Nil(t, tr)
	assert.Equal(t, size, sim.Position().Size, "repeated buy must not pyramid")
}

func TestInsufficientEquity(t *testing.T) {
	sim := newSim(Config{InitialCapital: 100, Sizer: FixedSize{Units: 1}, AllowShort: true})
	// Short 1 unit at 100 and cover at 250: equity goes negative.
	_, _ = sim.Execute(sell, bar(0, 100))
	tr, err := sim.Execute(buy, bar(1, 250))
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, -50.0, sim.Equity())

	_, err = sim.EntrySize(buy, 50)
	assert.ErrorIs(t, err, domain.ErrInsufficientEquity)

	tr, err = sim.Execute(buy, bar(2, 50))
	assert.NoError(t, err)
	assert.Nil(t, tr)
	assert.False(t, sim.Position().Open())
}

func TestSizeClampedToEquity(t *testing.T) {
	sim := newSim(Config{InitialCapital: 1000, Sizer: FixedSize{Units: 50}, Friction: Friction{FeeRate: 0.01}})
	size, err := sim.EntrySize(buy, 100)
	require.NoError(t, err)
	assert.InDelta(t, 1000/(100*1.01), size, 1e-9)
	assert.LessOrEqual(t, size*100*1.01, 1000.0+1e-9)
}

func TestSizers(t *testing.T) {
	sig := domain.Signal{Kind: domain.SignalBuy, Confidence: 0.5}
	assert.InDelta(t, 5.0, FixedFractional{Fraction: 0.5}.Size(1000, 100, sig), 1e-12)
	assert.Equal(t, 3.0, FixedSize{Units: 3}.Size(1000, 100, sig))
	assert.InDelta(t, 2.5, ConfidenceScaled{Fraction: 0.5}.Size(1000, 100, sig), 1e-12)

	s, err := SizerFor("confidence", 0.2)
	require.NoError(t, err)
	assert.IsType(t, ConfidenceScaled{}, s)
	_, err = SizerFor("martingale", 1)
	assert.Error(t, err)
}

func TestStopLossGapFillsAtOpen(t *testing.T) {
	sim := newSim(Config{Sizer: FixedSize{Units: 1}, Exit: strategy.ExitPolicy{StopLoss: 0.05}})
	_, _ = sim.Execute(buy, bar(0, 100))

	// Stays above the stop.
	tr, err := sim.CheckExits(domain.Candle{Timestamp: t0.Add(time.Hour), Open: 99, High: 100, Low: 96, Close: 98})
	require.NoError(t, err)
	assert.Nil(t, tr)

	// Gaps through the stop at 95.
	tr, err = sim.CheckExits(domain.Candle{Timestamp: t0.Add(2 * time.Hour), Open: 90, High: 92, Low: 88, Close: 91})
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, domain.ExitStopLoss, tr.ExitReason)
	assert.Equal(t, 90.0, tr.ExitPrice)
}

func TestTakeProfitIntrabar(t *testing.T) {
	sim := newSim(Config{Sizer: FixedSize{Units: 1}, Exit: strategy.ExitPolicy{TakeProfit: 0.1}})
	_, _ = sim.Execute(buy, bar(0, 100))

	tr, err := sim.CheckExits(domain.Candle{Timestamp: t0.Add(time.Hour), Open: 101, High: 115, Low: 100, Close: 104})
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, domain.ExitTakeProfit, tr.ExitReason)
	assert.InDelta(t, 110.0, tr.ExitPrice, 1e-9)
}

func TestExitNextBar(t *testing.T) {
	sim := newSim(Config{Sizer: FixedSize{Units: 1}, Exit: strategy.ExitPolicy{Rule: strategy.ExitNextBar}})
	_, _ = sim.Execute(buy, bar(0, 100))

	tr, _ := sim.CheckExits(bar(0, 100))
	assert.Nil(t, tr, "same bar must not exit")

	tr, _ = sim.Execute(sell, bar(0, 100))
	assert.Nil(t, tr, "opposite signal ignored under next-bar rule")

	tr, err := sim.CheckExits(bar(1, 104))
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, domain.ExitNextBar, tr.ExitReason)
	assert.Equal(t, 4.0, tr.Profit)
}

func TestForceExit(t *testing.T) {
	sim := newSim(Config{Sizer: FixedSize{Units: 2}})
	tr, err := sim.ForceExit(bar(0, 100), domain.ExitEndOfSeries)
	assert.NoError(t, err)
	assert.Nil(t, tr, "flat simulator has nothing to force out")

	_, _ = sim.Execute(buy, bar(0, 100))
	tr, err = sim.ForceExit(bar(3, 103), domain.ExitEndOfSeries)
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, domain.ExitEndOfSeries, tr.ExitReason)
	assert.Equal(t, 6.0, tr.Profit)
	assert.Equal(t, 1, sim.Ledger().Len())
}

func TestFrictionValidate(t *testing.T) {
	assert.NoError(t, Friction{SlippageRate: 0.001, FeeRate: 0.001}.Validate())
	assert.Error(t, Friction{SlippageRate: -0.1}.Validate())
	assert.Error(t, Friction{FeeRate: 1}.Validate())
	assert.Error(t, Friction{FeeRate: math.NaN()}.Validate())
}
