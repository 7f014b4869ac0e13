package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"cryptobot/internal/backtest"
	"cryptobot/internal/domain"
	"cryptobot/internal/report"
)

func backtestCmd() *cobra.Command {
	var (
		rf         rangeFlags
		symbol     string
		showTrades bool
		csvPath    string
	)
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run one strategy over one symbol's history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			start, end, err := rf.times()
			if err != nil {
				return err
			}
			params, err := rf.parameters()
			if err != nil {
				return err
			}
			run, err := a.svc.RunBacktest(cmd.Context(), backtest.Request{
				StrategyID:     rf.strategy,
				Symbol:         symbol,
				Timeframe:      domain.Timeframe(rf.timeframe),
				Start:          start,
				End:            end,
				InitialCapital: rf.capital,
				Params:         params,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			report.PrintRun(out, run)
			if showTrades {
				fmt.Fprintln(out)
				report.PrintTrades(out, run.Result.Trades)
			}
			if csvPath != "" {
				if err := writeTradesFile(csvPath, run); err != nil {
					return err
				}
				fmt.Fprintf(out, "\ntrades written to %s\n", csvPath)
			}
			return nil
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVar(&symbol, "symbol", "", "symbol, e.g. BTC/USD")
	cmd.Flags().BoolVar(&showTrades, "trades", false, "print every trade")
	cmd.Flags().StringVar(&csvPath, "csv", "", "write trades to this CSV file")
	_ = cmd.MarkFlagRequired("symbol")
	return cmd
}

func writeTradesFile(path string, run *backtest.Run) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteTradesCSV(f, run.Result.Trades); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func portfolioCmd() *cobra.Command {
	var (
		rf      rangeFlags
		symbols string
		weights string
	)
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Run one strategy across several symbols with split capital",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			start, end, err := rf.times()
			if err != nil {
				return err
			}
			params, err := rf.parameters()
			if err != nil {
				return err
			}
			w, err := parseWeights(weights)
			if err != nil {
				return err
			}
			run, err := a.svc.RunPortfolio(cmd.Context(), backtest.PortfolioRequest{
				StrategyID:     rf.strategy,
				Symbols:        splitList(symbols),
				Weights:        w,
				Timeframe:      domain.Timeframe(rf.timeframe),
				Start:          start,
				End:            end,
				InitialCapital: rf.capital,
				Params:         params,
			})
			if err != nil {
				return err
			}
			report.PrintRun(cmd.OutOrStdout(), run)
			return nil
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVar(&symbols, "symbols", "", "comma-separated symbols")
	cmd.Flags().StringVar(&weights, "weights", "", "comma-separated SYMBOL=weight (default equal)")
	_ = cmd.MarkFlagRequired("symbols")
	return cmd
}

// parseWeights parses "BTC/USD=3,ETH/USD=1". Empty means nil.
func parseWeights(s string) (map[string]float64, error) {
	parts := splitList(s)
	if len(parts) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(parts))
	for _, p := range parts {
		sym, raw, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("weight %q: want SYMBOL=weight", p)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("weight %q: %w", p, err)
		}
		out[strings.TrimSpace(sym)] = v
	}
	return out, nil
}

func strategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List strategies and their parameters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			report.PrintStrategies(cmd.OutOrStdout(), a.svc.Strategies())
			return nil
		},
	}
}

func runsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs recorded with --save",
		RunE: func(cmd *cobra.Command, _ []string) error {
			saveRuns = true
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			runs, err := a.svc.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range runs {
				fmt.Fprintf(out, "%s  %s  %-10s %-12s %-9s trades=%-4d profit=%.2f\n",
					r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.StrategyID, r.Symbol, r.DataSource, r.TotalTrades, r.TotalProfit)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}
