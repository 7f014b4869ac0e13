package ledger

import (
	"errors"
	"testing"
	"time"

	"cryptobot/internal/domain"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time { return t0.Add(time.Duration(n) * 24 * time.Hour) }

func trade(entry, exit int, profit float64) domain.Trade {
	return domain.Trade{
		Symbol:    "ETHUSDT",
		Side:      domain.SideLong,
		EntryTime: day(entry),
		ExitTime:  day(exit),
		Size:      1,
		Profit:    profit,
	}
}

func TestRecordAndCurve(t *testing.T) {
	l := New(1000, t0)
	for _, tr := range []domain.Trade{trade(1, 2, 50), trade(3, 5, -20), trade(5, 6, 5)} {
		if err := l.Record(tr); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if l.Len() != 3 {
		t.Fatalf("Len = %d, want 3", l.Len())
	}

	curve := l.Curve()
	want := []float64{1000, 1050, 1030, 1035}
	if len(curve) != len(want) {
		t.Fatalf("curve has %d points, want %d", len(curve), len(want))
	}
	for i, v := range want {
		if curve[i].Value != v {
			t.Errorf("curve[%d] = %v, want %v", i, curve[i].Value, v)
		}
	}
	if !curve[0].Timestamp.Equal(t0) || !curve[2].Timestamp.Equal(day(5)) {
		t.Errorf("curve timestamps = %v, %v", curve[0].Timestamp, curve[2].Timestamp)
	}
	if l.Equity() != curve[len(curve)-1].Value {
		t.Errorf("Equity() = %v, last curve point = %v", l.Equity(), curve[len(curve)-1].Value)
	}
}

func TestEquityCurveRestartable(t *testing.T) {
	l := New(100, t0)
	_ = l.Record(trade(1, 2, 10))
	seq := l.EquityCurve()

	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}
	if a, b := count(), count(); a != 2 || b != 2 {
		t.Errorf("iterations yielded %d and %d points, want 2 each", a, b)
	}

	// Early break must not panic and must stop yielding.
	for p := range seq {
		if p.Value != 100 {
			t.Errorf("first point = %v, want 100", p.Value)
		}
		break
	}
}

func TestRecordRejects(t *testing.T) {
	l := New(100, t0)
	if err := l.Record(trade(5, 6, 1)); err != nil {
		t.Fatal(err)
	}
	bad := map[string]domain.Trade{
		"entry before last entry": trade(4, 7, 1),
		"exit before entry":       trade(8, 7, 1),
		"negative fees":           func() domain.Trade { tr := trade(6, 7, 1); tr.Fees = -1; return tr }(),
		"zero size":               func() domain.Trade { tr := trade(6, 7, 1); tr.Size = 0; return tr }(),
	}
	for name, tr := range bad {
		if err := l.Record(tr); !errors.Is(err, ErrRejected) {
			t.Errorf("%s: Record = %v, want ErrRejected", name, err)
		}
	}
	if l.Len() != 1 {
		t.Errorf("rejected trades were recorded: Len = %d", l.Len())
	}
}

func TestFreezeIsIndependent(t *testing.T) {
	l, err := FromTrades(100, t0, []domain.Trade{trade(1, 2, 10)})
	if err != nil {
		t.Fatal(err)
	}
	snap := l.Freeze()
	_ = l.Record(trade(3, 4, 10))
	snap.Trades[0].Profit = 999

	if len(snap.Trades) != 1 || snap.FinalEquity() != 110 {
		t.Errorf("snapshot changed with ledger: %+v", snap)
	}
	if l.Trades()[0].Profit != 10 {
		t.Error("mutating a snapshot leaked into the ledger")
	}
}

func TestEmptyLedger(t *testing.T) {
	l := New(250, t0)
	curve := l.Curve()
	if len(curve) != 1 || curve[0].Value != 250 {
		t.Errorf("empty curve = %v, want single point at 250", curve)
	}
}
