package engine

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"cryptobot/internal/domain"
	"cryptobot/internal/ledger"
	"cryptobot/internal/metrics"
	"cryptobot/internal/strategy"
)

// Component summarises one symbol's sub-run inside a portfolio result.
type Component struct {
	Symbol      string  `json:"symbol"`
	Weight      float64 `json:"weight"`
	Capital     float64 `json:"capital"`
	FinalEquity float64 `json:"finalEquity"`
	TotalTrades int     `json:"totalTrades"`
	TotalProfit float64 `json:"totalProfit"`
}

// RunPortfolio runs strat independently on every symbol in series, each
// with its weighted share of cfg.InitialCapital, then merges the trades into
// one ledger. Nil weights mean an equal split. Symbols are processed in
// sorted order; zero-weight symbols are skipped. The equity curve is in exit
// order, one point per realized trade.
func RunPortfolio(
	strat strategy.Strategy,
	series map[string][]domain.Candle,
	weights map[string]float64,
	params strategy.Params,
	cfg Config,
) (*BacktestResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: portfolio has no symbols", domain.ErrInvalidRange)
	}
	if weights == nil {
		weights = make(map[string]float64, len(series))
		for sym := range series {
			weights[sym] = 1
		}
	}
	for sym := range weights {
		if _, ok := series[sym]; !ok {
			return nil, fmt.Errorf("%w: portfolio weight for %s has no candle series", domain.ErrInvalidConfig, sym)
		}
	}
	div, err := metrics.Diversification(weights)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}

	symbols := make([]string, 0, len(div.Weights))
	for sym, w := range div.Weights {
		if w > 0 {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)

	var (
		trades     []domain.Trade
		diags      []Diagnostic
		components []Component
		start, end time.Time
		processed  int
		skipped    int
		resolved   strategy.Params
	)
	for _, sym := range symbols {
		sub := cfg
		sub.InitialCapital = cfg.InitialCapital * div.Weights[sym]
		res, err := Run(strat, series[sym], params, sub)
		if err != nil {
			return nil, fmt.Errorf("portfolio %s: %w", sym, err)
		}
		trades = append(trades, res.Trades...)
		diags = append(diags, res.Diagnostics...)
		processed += res.CandlesProcessed
		skipped += res.CandlesSkipped
		resolved = res.Params
		if start.IsZero() || res.Start.Before(start) {
			start = res.Start
		}
		if res.End.After(end) {
			end = res.End
		}
		components = append(components, Component{
			Symbol:      sym,
			Weight:      div.Weights[sym],
			Capital:     sub.InitialCapital,
			FinalEquity: res.FinalEquity,
			TotalTrades: res.TotalTrades,
			TotalProfit: res.TotalProfit,
		})
	}

	sort.SliceStable(trades, func(i, j int) bool {
		a, b := trades[i], trades[j]
		if !a.EntryTime.Equal(b.EntryTime) {
			return a.EntryTime.Before(b.EntryTime)
		}
		if !a.ExitTime.Equal(b.ExitTime) {
			return a.ExitTime.Before(b.ExitTime)
		}
		return a.Symbol < b.Symbol
	})
	l, err := ledger.FromTrades(cfg.InitialCapital, start, trades)
	if err != nil {
		return nil, fmt.Errorf("portfolio ledger: %w", err)
	}
	snap := l.Freeze()
	snap.Curve = realizedCurve(cfg.InitialCapital, start, snap.Trades)
	res := &BacktestResult{
		Strategy:         strat.Name(),
		Symbol:           strings.Join(symbols, ","),
		Params:           resolved,
		Friction:         cfg.Friction,
		InitialCapital:   cfg.InitialCapital,
		FinalEquity:      snap.FinalEquity(),
		Start:            start,
		End:              end,
		Diversification:  &div,
		Components:       components,
		Trades:           snap.Trades,
		EquityCurve:      snap.Curve,
		CandlesProcessed: processed,
		CandlesSkipped:   skipped,
		Diagnostics:      diags,
	}
	res.evaluate(cfg.Metrics)
	return res, nil
}

// realizedCurve is the equity path in exit order. Positions in different
// symbols overlap, so the entry-ordered ledger curve can step back in time;
// this one never does. Its last value equals the ledger's.
func realizedCurve(initial float64, start time.Time, trades []domain.Trade) []domain.EquityPoint {
	byExit := slices.Clone(trades)
	sort.SliceStable(byExit, func(i, j int) bool { return byExit[i].ExitTime.Before(byExit[j].ExitTime) })

	curve := make([]domain.EquityPoint, 0, len(byExit)+1)
	curve = append(curve, domain.EquityPoint{Timestamp: start, Value: initial})
	value := initial
	for _, t := range byExit {
		value += t.Profit
		curve = append(curve, domain.EquityPoint{Timestamp: t.ExitTime, Value: value})
	}
	return curve
}
