// Package backtest is the runBacktest entry point shared by the CLI, the
// HTTP and gRPC APIs: it loads candles from a feed, runs the engine and
// records the run.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"cryptobot/internal/domain"
	"cryptobot/internal/engine"
	"cryptobot/internal/feed"
	"cryptobot/internal/store"
	"cryptobot/internal/strategy"
	"cryptobot/internal/util"
)

// ErrInvalidRequest marks a request missing required fields.
var ErrInvalidRequest = errors.New("invalid backtest request")

// Run is a completed, recorded backtest.
type Run = store.RunRecord

// Request describes a single-symbol backtest. Zero InitialCapital and an
// empty Timeframe fall back to the service defaults.
type Request struct {
	StrategyID     string           `json:"strategyId"`
	Symbol         string           `json:"symbol"`
	Timeframe      domain.Timeframe `json:"timeframe"`
	Start          time.Time        `json:"start"`
	End            time.Time        `json:"end"`
	InitialCapital float64          `json:"initialCapital"`
	Params         strategy.Params  `json:"params,omitempty"`
}

// PortfolioRequest runs one strategy across several symbols. Nil Weights
// split capital equally.
type PortfolioRequest struct {
	StrategyID     string             `json:"strategyId"`
	Symbols        []string           `json:"symbols"`
	Weights        map[string]float64 `json:"weights,omitempty"`
	Timeframe      domain.Timeframe   `json:"timeframe"`
	Start          time.Time          `json:"start"`
	End            time.Time          `json:"end"`
	InitialCapital float64            `json:"initialCapital"`
	Params         strategy.Params    `json:"params,omitempty"`
}

// Options configure a Service.
type Options struct {
	Registry  *strategy.Registry
	Feed      feed.Feed
	Store     store.ResultStore // optional
	Engine    engine.Config     // defaults for every run
	Timeframe domain.Timeframe  // default "1d"
	Logger    *slog.Logger
}

// Service runs and records backtests.
type Service struct {
	registry  *strategy.Registry
	feed      feed.Feed
	store     store.ResultStore
	engine    engine.Config
	timeframe domain.Timeframe
	log       *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewService creates a Service. Registry and Feed are required.
func NewService(opts Options) (*Service, error) {
	if opts.Registry == nil || opts.Feed == nil {
		return nil, errors.New("backtest service needs a registry and a feed")
	}
	log := opts.Logger
	if log == nil {
		log = util.Discard()
	}
	tf := opts.Timeframe
	if tf == "" {
		tf = domain.Timeframe1d
	}
	cfg := opts.Engine
	if cfg.Logger == nil {
		cfg.Logger = log
	}
	return &Service{
		registry:  opts.Registry,
		feed:      opts.Feed,
		store:     opts.Store,
		engine:    cfg,
		timeframe: tf,
		log:       log.With("component", "backtest"),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.NewString() },
	}, nil
}

// Strategies lists the registered strategies and their parameter schemas.
func (s *Service) Strategies() []strategy.Info { return s.registry.Describe() }

// Registry returns the strategy registry the service resolves ids against.
func (s *Service) Registry() *strategy.Registry { return s.registry }

// DataSource names the feed runs are loaded from.
func (s *Service) DataSource() string { return dataSource(s.feed) }

// EngineConfig returns a copy of the default engine config with capital
// overridden when positive.
func (s *Service) EngineConfig(capital float64) engine.Config {
	cfg := s.engine
	if capital > 0 {
		cfg.InitialCapital = capital
	}
	return cfg
}

func dataSource(f feed.Feed) string {
	if feed.IsSynthetic(f) {
		return "synthetic"
	}
	return f.Name()
}

func (s *Service) resolveTimeframe(tf domain.Timeframe) (domain.Timeframe, error) {
	if tf == "" {
		return s.timeframe, nil
	}
	parsed, err := domain.ParseTimeframe(string(tf))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return parsed, nil
}

// LoadCandles fetches candles for symbol in [start, end) from the
// service's feed. An empty range is ErrInvalidRange.
func (s *Service) LoadCandles(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Candle, error) {
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start %s is not before end %s", domain.ErrInvalidRange,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	candles, err := s.feed.Candles(ctx, symbol, tf, start, end)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", symbol, err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no %s candles for %s in range", domain.ErrInvalidRange, tf, symbol)
	}
	return candles, nil
}

// RunBacktest loads the requested series, runs it and records the result.
func (s *Service) RunBacktest(ctx context.Context, req Request) (*Run, error) {
	strat, err := s.registry.Lookup(req.StrategyID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Symbol) == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}
	tf, err := s.resolveTimeframe(req.Timeframe)
	if err != nil {
		return nil, err
	}
	candles, err := s.LoadCandles(ctx, req.Symbol, tf, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	res, err := engine.Run(strat, candles, req.Params, s.EngineConfig(req.InitialCapital))
	if err != nil {
		return nil, err
	}
	run := &Run{
		ID:         s.newID(),
		CreatedAt:  s.now(),
		StrategyID: strat.Name(),
		Symbol:     strings.ToUpper(req.Symbol),
		Timeframe:  tf,
		Start:      req.Start.UTC(),
		End:        req.End.UTC(),
		DataSource: dataSource(s.feed),
		Result:     res,
	}
	return run, s.record(ctx, run)
}

// RunPortfolio loads every symbol, runs the portfolio and records it. The
// run's Symbol is the sorted, comma-joined symbol list.
func (s *Service) RunPortfolio(ctx context.Context, req PortfolioRequest) (*Run, error) {
	strat, err := s.registry.Lookup(req.StrategyID)
	if err != nil {
		return nil, err
	}
	if len(req.Symbols) == 0 {
		return nil, fmt.Errorf("%w: portfolio needs at least one symbol", ErrInvalidRequest)
	}
	tf, err := s.resolveTimeframe(req.Timeframe)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(req.Symbols))
	series := make(map[string][]domain.Candle, len(req.Symbols))
	for _, sym := range req.Symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if _, dup := series[sym]; dup {
			continue
		}
		candles, err := s.LoadCandles(ctx, sym, tf, req.Start, req.End)
		if err != nil {
			return nil, err
		}
		series[sym] = candles
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var weights map[string]float64
	if req.Weights != nil {
		weights = make(map[string]float64, len(req.Weights))
		for sym, w := range req.Weights {
			weights[strings.ToUpper(sym)] = w
		}
	}

	res, err := engine.RunPortfolio(strat, series, weights, req.Params, s.EngineConfig(req.InitialCapital))
	if err != nil {
		return nil, err
	}
	run := &Run{
		ID:         s.newID(),
		CreatedAt:  s.now(),
		StrategyID: strat.Name(),
		Symbol:     strings.Join(symbols, ","),
		Timeframe:  tf,
		Start:      req.Start.UTC(),
		End:        req.End.UTC(),
		DataSource: dataSource(s.feed),
		Result:     res,
	}
	return run, s.record(ctx, run)
}

func (s *Service) record(ctx context.Context, run *Run) error {
	if s.store != nil {
		if err := s.store.SaveRun(ctx, run); err != nil {
			return fmt.Errorf("save run %s: %w", run.ID, err)
		}
	}
	attrs := []any{
		"id", run.ID,
		"strategy", run.StrategyID,
		"symbol", run.Symbol,
		"source", run.DataSource,
		"trades", run.Result.TotalTrades,
		"profit", run.Result.TotalProfit,
		"final_equity", run.Result.FinalEquity,
	}
	if run.DataSource == "synthetic" {
		s.log.Warn("backtest recorded on synthetic data", attrs...)
	} else {
		s.log.Info("backtest recorded", attrs...)
	}
	return nil
}

// GetRun fetches a recorded run. Without a result store every id is
// ErrNotFound.
func (s *Service) GetRun(ctx context.Context, id string) (*Run, error) {
	if s.store == nil {
		return nil, store.ErrNotFound
	}
	return s.store.GetRun(ctx, id)
}

// ListRuns lists recent runs, newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]store.RunSummary, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListRuns(ctx, limit)
}
