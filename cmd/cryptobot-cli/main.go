package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cryptobot/internal/backtest"
	"cryptobot/internal/config"
	"cryptobot/internal/feed"
	"cryptobot/internal/store"
	"cryptobot/internal/strategy"
	"cryptobot/internal/strategy/builtins"
	"cryptobot/internal/util"
)

const version = "0.1.0"

const defaultConfigPath = "config/cryptobot.yaml"

var (
	configPath string
	sourceFlag string
	logLevel   string
	saveRuns   bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cryptobot-cli",
		Short:         "Backtest and evaluate trading strategies on historical candles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $CRYPTOBOT_CONFIG or "+defaultConfigPath+" when present)")
	root.PersistentFlags().StringVar(&sourceFlag, "source", "", "override data.source: parquet, csv, alpaca or synthetic")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")
	root.PersistentFlags().BoolVar(&saveRuns, "save", false, "record runs in the sqlite result store")

	root.AddCommand(
		backtestCmd(),
		portfolioCmd(),
		sweepCmd(),
		strategiesCmd(),
		importCmd(),
		runsCmd(),
		versionCmd(),
	)
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cryptobot-cli %s\n", version)
		},
	}
}

// app bundles what every command needs.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	svc   *backtest.Service
	feed  feed.Feed
	close func() error
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv("CRYPTOBOT_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	if sourceFlag != "" {
		cfg.Data.Source = sourceFlag
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, cfg.Validate()
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	f, err := feed.Open(cfg, log)
	if err != nil {
		return nil, err
	}
	ec, err := cfg.EngineConfig(log)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, feed: f, close: func() error { return nil }}
	var rs store.ResultStore
	if saveRuns {
		sq, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		rs, a.close = sq, sq.Close
	}

	a.svc, err = backtest.NewService(backtest.Options{
		Registry:  builtins.Registry(),
		Feed:      f,
		Store:     rs,
		Engine:    ec,
		Timeframe: cfg.Timeframe(),
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// parseTime accepts a date, a date-time or RFC 3339.
func parseTime(flag, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("--%s is required", flag)
	}
	t, err := feed.ParseTimestamp(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", flag, err)
	}
	return t, nil
}

// rangeFlags are shared by commands that load a candle range.
type rangeFlags struct {
	strategy  string
	start     string
	end       string
	timeframe string
	capital   float64
	params    []string
	paramFile string
}

func (r *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&r.strategy, "strategy", "s", "", "strategy id (see the strategies command)")
	cmd.Flags().StringVar(&r.start, "start", "", "range start, inclusive (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&r.end, "end", "", "range end, exclusive")
	cmd.Flags().StringVarP(&r.timeframe, "timeframe", "t", "", "bar timeframe (default data.timeframe)")
	cmd.Flags().Float64Var(&r.capital, "capital", 0, "initial capital (default backtest.initial_capital)")
	cmd.Flags().StringArrayVarP(&r.params, "param", "p", nil, "strategy parameter name=value, repeatable")
	cmd.Flags().StringVar(&r.paramFile, "params-file", "", "YAML file of strategy parameters")
	_ = cmd.MarkFlagRequired("strategy")
}

func (r *rangeFlags) times() (time.Time, time.Time, error) {
	start, err := parseTime("start", r.start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseTime("end", r.end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func (r *rangeFlags) parameters() (strategy.Params, error) {
	out := strategy.Params{}
	if r.paramFile != "" {
		p, err := strategy.LoadParams(r.paramFile)
		if err != nil {
			return nil, err
		}
		for k, v := range p {
			out[k] = v
		}
	}
	p, err := strategy.ParseParams(r.params)
	if err != nil {
		return nil, err
	}
	for k, v := range p {
		out[k] = v
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
