package cryptobot

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cryptobot/internal/api"
	"cryptobot/internal/backtest"
	"cryptobot/internal/engine"
	"cryptobot/internal/feed"
	"cryptobot/internal/store"
	"cryptobot/internal/strategy/builtins"
)

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:8080/")
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("expected trailing slash trimmed, got %q", c.baseURL)
	}
	if c.httpClient == nil {
		t.Fatal("expected non-nil httpClient")
	}
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	svc, err := backtest.NewService(backtest.Options{
		Registry: builtins.Registry(),
		Feed:     feed.NewSyntheticFeed(11),
		Store:    store.NewMemoryStore(),
		Engine:   engine.Config{InitialCapital: 10_000},
	})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(api.NewServer(svc, api.Options{}).Handler())
	t.Cleanup(ts.Close)
	return NewClient(ts.URL)
}

func TestClientRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if err := c.Health(ctx); err != nil {
		t.Fatalf("Health: %v", err)
	}
	infos, err := c.Strategies(ctx)
	if err != nil || len(infos) == 0 {
		t.Fatalf("Strategies = %v, %v", infos, err)
	}

	run, err := c.RunBacktest(ctx, Request{
		StrategyID: "rsi",
		Symbol:     "BTC/USD",
		Start:      time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("RunBacktest: %v", err)
	}
	if run.DataSource != "synthetic" || run.Result.CandlesProcessed != 365 {
		t.Errorf("run source %q candles %d", run.DataSource, run.Result.CandlesProcessed)
	}

	got, err := c.GetBacktest(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetBacktest: %v", err)
	}
	if len(got.Result.Trades) != len(run.Result.Trades) {
		t.Errorf("trades %d, want %d", len(got.Result.Trades), len(run.Result.Trades))
	}

	list, err := c.ListBacktests(ctx, 10)
	if err != nil || len(list) != 1 {
		t.Errorf("ListBacktests = %v, %v", list, err)
	}

	var buf bytes.Buffer
	if err := c.DownloadTrades(ctx, run.ID, &buf); err != nil {
		t.Fatalf("DownloadTrades: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "symbol,side,") {
		t.Errorf("csv = %q", buf.String())
	}
}

func TestClientErrors(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.GetBacktest(ctx, "does-not-exist")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	_, err = c.RunBacktest(ctx, Request{StrategyID: "rsi", Symbol: "BTC/USD"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 400 {
		t.Errorf("err = %v, want 400 APIError", err)
	}
}
