package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	t.Setenv("CRYPTOBOT_CONFIG", "")
	t.Setenv("CRYPTOBOT_DATA_SOURCE", "")
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestVersion(t *testing.T) {
	if out := execute(t, "version"); !strings.Contains(out, version) {
		t.Errorf("version output = %q", out)
	}
}

func TestBacktestSynthetic(t *testing.T) {
	csv := filepath.Join(t.TempDir(), "trades.csv")
	out := execute(t, "--source", "synthetic", "--log-level", "error",
		"backtest", "-s", "sma-cross", "--symbol", "BTC/USD",
		"--start", "2023-01-01", "--end", "2024-01-01",
		"-p", "fast_period=5", "-p", "slow_period=20", "--csv", csv)
	for _, want := range []string{"sma-cross on BTC/USD", "SYNTHETIC", "Sharpe"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	data, err := os.ReadFile(csv)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "symbol,side,") {
		t.Errorf("csv = %q", data)
	}
}

func TestImportThenBacktest(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	src := filepath.Join(dir, "eth.csv")
	rows := "timestamp,open,high,low,close,volume\n"
	for i, px := range []string{"100", "101", "103", "102", "105"} {
		rows += fmt.Sprintf("2024-01-0%d,%s,%s,%s,%s,1\n", i+1, px, px, px, px)
	}
	if err := os.WriteFile(src, []byte(rows), 0o644); err != nil {
		t.Fatal(err)
	}

	out := execute(t, "--source", "parquet", "import", "-f", src, "--symbol", "ETH/USD")
	if !strings.Contains(out, "imported 5") {
		t.Fatalf("import output = %q", out)
	}
	out = execute(t, "--source", "parquet", "--log-level", "error",
		"backtest", "-s", "buy-hold", "--symbol", "ETH/USD", "--start", "2024-01-01", "--end", "2024-02-01")
	if !strings.Contains(out, "5 processed, 0 skipped") {
		t.Errorf("backtest output:\n%s", out)
	}
}

func TestParseWeights(t *testing.T) {
	w, err := parseWeights("BTC/USD=3, ETH/USD=1")
	if err != nil {
		t.Fatal(err)
	}
	if w["BTC/USD"] != 3 || w["ETH/USD"] != 1 {
		t.Errorf("weights = %v", w)
	}
	if w, _ := parseWeights(""); w != nil {
		t.Errorf("empty weights = %v, want nil", w)
	}
	if _, err := parseWeights("BTC"); err == nil {
		t.Error("expected error for missing =")
	}
}
