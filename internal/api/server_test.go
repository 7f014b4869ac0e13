package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cryptobot/internal/backtest"
	"cryptobot/internal/domain"
	"cryptobot/internal/engine"
	"cryptobot/internal/store"
	"cryptobot/internal/strategy"
	"cryptobot/internal/strategy/builtins"
)

type sliceFeed []domain.Candle

func (f sliceFeed) Name() string { return "memory" }

func (f sliceFeed) Candles(_ context.Context, symbol string, _ domain.Timeframe, start, end time.Time) ([]domain.Candle, error) {
	var out []domain.Candle
	for _, c := range f {
		if c.Symbol == symbol && !c.Timestamp.Before(start) && c.Timestamp.Before(end) {
			out = append(out, c)
		}
	}
	return out, nil
}

func day(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

func testService(t *testing.T) *backtest.Service {
	t.Helper()
	var candles sliceFeed
	for i := range 10 {
		p := 100 + float64(i)
		for _, sym := range []string{"BTC/USD", "ETH/USD"} {
			candles = append(candles, domain.Candle{Symbol: sym, Timestamp: day(i + 1), Open: p, High: p, Low: p, Close: p, Volume: 1})
		}
	}
	svc, err := backtest.NewService(backtest.Options{
		Registry: builtins.Registry(),
		Feed:     candles,
		Store:    store.NewMemoryStore(),
		Engine:   engine.Config{InitialCapital: 1000},
	})
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func newTestHTTP(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(NewServer(testService(t), Options{HTTPAddr: ":0"}).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	ts := newTestHTTP(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestRunAndFetchBacktest(t *testing.T) {
	ts := newTestHTTP(t)
	resp := postJSON(t, ts.URL+"/api/v1/backtests", backtest.Request{
		StrategyID: "buy-hold",
		Symbol:     "BTC/USD",
		Start:      day(1),
		End:        day(20),
	})
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d: %s", resp.StatusCode, b)
	}
	var run backtest.Run
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		t.Fatal(err)
	}
	if run.ID == "" || run.Result == nil || run.Result.TotalTrades != 1 {
		t.Fatalf("run = %+v", run)
	}

	get, err := http.Get(ts.URL + "/api/v1/backtests/" + run.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer get.Body.Close()
	if get.StatusCode != http.StatusOK {
		t.Fatalf("GET status = %d", get.StatusCode)
	}
	var fetched backtest.Run
	json.NewDecoder(get.Body).Decode(&fetched)
	if fetched.Result.FinalEquity != run.Result.FinalEquity {
		t.Errorf("fetched equity %v, want %v", fetched.Result.FinalEquity, run.Result.FinalEquity)
	}

	csv, err := http.Get(ts.URL + "/api/v1/backtests/" + run.ID + "/trades.csv")
	if err != nil {
		t.Fatal(err)
	}
	defer csv.Body.Close()
	body, _ := io.ReadAll(csv.Body)
	if lines := strings.Split(strings.TrimSpace(string(body)), "\n"); len(lines) != 2 {
		t.Errorf("csv has %d lines, want header + 1 trade:\n%s", len(lines), body)
	}

	list, err := http.Get(ts.URL + "/api/v1/backtests?limit=5")
	if err != nil {
		t.Fatal(err)
	}
	defer list.Body.Close()
	var summaries []store.RunSummary
	json.NewDecoder(list.Body).Decode(&summaries)
	if len(summaries) != 1 || summaries[0].ID != run.ID {
		t.Errorf("summaries = %+v", summaries)
	}
}

func TestErrorStatuses(t *testing.T) {
	ts := newTestHTTP(t)
	cases := []struct {
		name string
		body any
		want int
	}{
		{"unknown strategy", backtest.Request{StrategyID: "nope", Symbol: "BTC/USD", Start: day(1), End: day(5)}, http.StatusNotFound},
		{"reversed range", backtest.Request{StrategyID: "rsi", Symbol: "BTC/USD", Start: day(5), End: day(1)}, http.StatusBadRequest},
		{"no candles", backtest.Request{StrategyID: "rsi", Symbol: "DOGE/USD", Start: day(1), End: day(5)}, http.StatusBadRequest},
		{"bad params", backtest.Request{StrategyID: "rsi", Symbol: "BTC/USD", Start: day(1), End: day(5), Params: strategy.Params{"nope": 1}}, http.StatusBadRequest},
		{"unknown field", map[string]any{"strategy": "rsi"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp := postJSON(t, ts.URL+"/api/v1/backtests", tc.body)
		if resp.StatusCode != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, resp.StatusCode, tc.want)
		}
	}

	resp, err := http.Get(ts.URL + "/api/v1/backtests/missing")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing run status = %d, want 404", resp.StatusCode)
	}
}

func TestPortfolioAndStrategies(t *testing.T) {
	ts := newTestHTTP(t)
	resp := postJSON(t, ts.URL+"/api/v1/portfolios", backtest.PortfolioRequest{
		StrategyID: "buy-hold",
		Symbols:    []string{"BTC/USD", "ETH/USD"},
		Weights:    map[string]float64{"BTC/USD": 3, "ETH/USD": 1},
		Start:      day(1),
		End:        day(20),
	})
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d: %s", resp.StatusCode, b)
	}
	var run backtest.Run
	json.NewDecoder(resp.Body).Decode(&run)
	if len(run.Result.Components) != 2 || run.Result.Components[0].Weight != 0.75 {
		t.Errorf("components = %+v", run.Result.Components)
	}

	sr, err := http.Get(ts.URL + "/api/v1/strategies")
	if err != nil {
		t.Fatal(err)
	}
	defer sr.Body.Close()
	var infos []strategy.Info
	json.NewDecoder(sr.Body).Decode(&infos)
	if len(infos) != 8 {
		t.Errorf("got %d strategies, want 8", len(infos))
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	srv := NewServer(testService(t), Options{HTTPAddr: "127.0.0.1:0", GRPCAddr: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
