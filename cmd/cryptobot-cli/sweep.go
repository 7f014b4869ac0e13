package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cryptobot/internal/domain"
	"cryptobot/internal/report"
	"cryptobot/internal/sweep"
)

func sweepCmd() *cobra.Command {
	var (
		rf        rangeFlags
		symbol    string
		axes      []string
		workers   int
		objective string
		top       int
		windows   int
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a parameter grid or walk-forward windows in parallel",
		Example: `  cryptobot-cli sweep -s sma-cross --symbol BTC/USD --start 2023-01-01 --end 2024-01-01 \
      --axis fast_period=5:30:5 --axis slow_period=40,60,80`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			strat, err := a.svc.Registry().Lookup(rf.strategy)
			if err != nil {
				return err
			}
			start, end, err := rf.times()
			if err != nil {
				return err
			}
			params, err := rf.parameters()
			if err != nil {
				return err
			}
			tf := a.cfg.Timeframe()
			if rf.timeframe != "" {
				if tf, err = domain.ParseTimeframe(rf.timeframe); err != nil {
					return err
				}
			}
			if objective == "" {
				objective = a.cfg.Sweep.Objective
			}
			by, err := sweep.ParseObjective(objective)
			if err != nil {
				return err
			}
			if workers == 0 {
				workers = a.cfg.Sweep.Workers
			}

			candles, err := a.svc.LoadCandles(cmd.Context(), strings.ToUpper(symbol), tf, start, end)
			if err != nil {
				return err
			}
			cfg := a.svc.EngineConfig(rf.capital)
			runner := sweep.NewRunner(workers, a.log)
			out := cmd.OutOrStdout()

			if windows > 0 {
				results, err := runner.WalkForward(cmd.Context(), strat, candles, windows, params, cfg)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "walk-forward %s on %s, %d windows (source %s)\n\n", strat.Name(), symbol, windows, a.svc.DataSource())
				for i, r := range results {
					if !r.OK() {
						fmt.Fprintf(out, "window %d  %s → %s  failed: %s\n", i+1, r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"), r.Err)
						continue
					}
					m := r.Result.Metrics
					fmt.Fprintf(out, "window %d  %s → %s  trades=%-4d profit=%10.2f  sharpe=%s  maxDD=%.2f%%\n",
						i+1, r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"),
						m.TotalTrades, m.TotalProfit, m.SharpeRatio, m.MaxDrawdown*100)
				}
				return nil
			}

			grid := make(sweep.Grid, 0, len(axes))
			for _, s := range axes {
				ax, err := sweep.ParseAxis(s)
				if err != nil {
					return err
				}
				grid = append(grid, ax)
			}
			results, err := runner.Sweep(cmd.Context(), strat, candles, grid, params, cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "sweep %s on %s: %d runs ranked by %s (source %s)\n\n", strat.Name(), symbol, len(results), by, a.svc.DataSource())
			report.PrintSweep(out, results, by, top)
			return nil
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVar(&symbol, "symbol", "", "symbol, e.g. BTC/USD")
	cmd.Flags().StringArrayVar(&axes, "axis", nil, "swept parameter name=from:to:step or name=v1,v2; repeatable")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "parallel runs (default sweep.workers, then GOMAXPROCS)")
	cmd.Flags().StringVar(&objective, "objective", "", "rank by sharpe, sortino, profit, profit_factor or calmar")
	cmd.Flags().IntVar(&top, "top", 20, "rows to print, 0 for all")
	cmd.Flags().IntVar(&windows, "walk-forward", 0, "split the range into N windows instead of sweeping a grid")
	_ = cmd.MarkFlagRequired("symbol")
	return cmd
}
