package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func validCandle() Candle {
	return Candle{
		Symbol:    "BTCUSDT",
		Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Open:      100,
		High:      105,
		Low:       98,
		Close:     103,
		Volume:    1200,
	}
}

func TestCandleValidate(t *testing.T) {
	if err := validCandle().Validate(); err != nil {
		t.Fatalf("Validate() on a good candle returned %v", err)
	}

	cases := map[string]func(c *Candle){
		"nan close":        func(c *Candle) { c.Close = math.NaN() },
		"negative open":    func(c *Candle) { c.Open = -1 },
		"high below low":   func(c *Candle) { c.High, c.Low = 90, 95 },
		"close above high": func(c *Candle) { c.Close = 110 },
		"negative volume":  func(c *Candle) { c.Volume = -5 },
		"zero timestamp":   func(c *Candle) { c.Timestamp = time.Time{} },
		"infinite low":     func(c *Candle) { c.Low = math.Inf(-1) },
	}
	for name, mutate := range cases {
		c := validCandle()
		mutate(&c)
		err := c.Validate()
		if !errors.Is(err, ErrInvalidCandle) {
			t.Errorf("%s: Validate() = %v, want ErrInvalidCandle", name, err)
		}
	}
}

func TestSignalActionable(t *testing.T) {
	if (Signal{Kind: SignalHold, Confidence: 1}).Actionable() {
		t.Error("hold signal should not be actionable")
	}
	if (Signal{Kind: SignalBuy, Confidence: 0}).Actionable() {
		t.Error("zero-confidence signal should not be actionable")
	}
	if !(Signal{Kind: SignalSell, Confidence: 0.4}).Actionable() {
		t.Error("sell with confidence should be actionable")
	}
}

func TestTradeGrossProfit(t *testing.T) {
	long := Trade{Side: SideLong, EntryPrice: 100, ExitPrice: 110, Size: 2}
	if got := long.GrossProfit(); got != 20 {
		t.Errorf("long GrossProfit = %v, want 20", got)
	}
	short := Trade{Side: SideShort, EntryPrice: 100, ExitPrice: 110, Size: 2}
	if got := short.GrossProfit(); got != -20 {
		t.Errorf("short GrossProfit = %v, want -20", got)
	}
}

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe(" 1D ")
	if err != nil {
		t.Fatalf("ParseTimeframe returned error: %v", err)
	}
	if tf != Timeframe1d {
		t.Errorf("ParseTimeframe = %q, want %q", tf, Timeframe1d)
	}
	if tf.Duration() != 24*time.Hour {
		t.Errorf("Duration = %v, want 24h", tf.Duration())
	}
	if _, err := ParseTimeframe("7m"); err == nil {
		t.Error("ParseTimeframe(7m) should fail")
	}
}

func TestStrategyErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := error(&StrategyError{Strategy: "rsi", At: time.Unix(0, 0).UTC(), Err: inner})
	if !errors.Is(err, inner) {
		t.Error("StrategyError should unwrap to the inner error")
	}
	var se *StrategyError
	if !errors.As(err, &se) || se.Strategy != "rsi" {
		t.Errorf("errors.As failed or wrong strategy: %+v", se)
	}
}
