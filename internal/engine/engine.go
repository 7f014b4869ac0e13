// Package engine runs backtests: it replays a candle series through a
// strategy, executes signals on the simulator and evaluates the resulting
// ledger. A run is a pure function of its inputs.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cryptobot/internal/broker"
	"cryptobot/internal/domain"
	"cryptobot/internal/ledger"
	"cryptobot/internal/metrics"
	"cryptobot/internal/strategy"
	"cryptobot/internal/util"
)

// Config holds everything a run needs besides the strategy and candles.
type Config struct {
	InitialCapital float64
	Friction       broker.Friction
	Sizer          broker.Sizer // nil means FixedFractional{1}
	AllowShort     bool
	Risk           RiskLimits
	Metrics        metrics.Options
	Logger         *slog.Logger
}

// Validate checks the structural parts of the config.
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial capital %v must be positive", c.InitialCapital)
	}
	if err := c.Friction.Validate(); err != nil {
		return err
	}
	return c.Risk.Validate()
}

// DiagnosticKind classifies a non-fatal issue met during a run.
type DiagnosticKind string

const (
	DiagInvalidCandle DiagnosticKind = "invalid_candle"
	DiagOutOfOrder    DiagnosticKind = "out_of_order"
	DiagStrategyError DiagnosticKind = "strategy_error"
	DiagRiskBlocked   DiagnosticKind = "risk_blocked"
)

// Diagnostic is a local issue absorbed by the run.
type Diagnostic struct {
	At      time.Time      `json:"at"`
	Symbol  string         `json:"symbol,omitempty"`
	Kind    DiagnosticKind `json:"kind"`
	Message string         `json:"message"`
}

// BacktestResult is the immutable outcome of a run. The flat summary fields
// mirror Metrics for callers that bind to them directly.
type BacktestResult struct {
	Strategy        string                          `json:"strategy"`
	Symbol          string                          `json:"symbol"`
	Params          strategy.Params                 `json:"params"`
	Friction        broker.Friction                 `json:"friction"`
	InitialCapital  float64                         `json:"initialCapital"`
	FinalEquity     float64                         `json:"finalEquity"`
	Start           time.Time                       `json:"start"`
	End             time.Time                       `json:"end"`
	Metrics         metrics.PerformanceMetrics      `json:"metrics"`
	Risk            metrics.RiskMetrics             `json:"risk"`
	Diversification *metrics.DiversificationMetrics `json:"diversification,omitempty"`
	Components      []Component                     `json:"components,omitempty"`
	Trades          []domain.Trade                  `json:"trades"`
	EquityCurve     []domain.EquityPoint            `json:"equityCurve"`

	TotalProfit  float64       `json:"totalProfit"`
	TotalFees    float64       `json:"totalFees"`
	TotalTrades  int           `json:"totalTrades"`
	WinRate      float64       `json:"winRate"`
	MaxDrawdown  float64       `json:"maxDrawdown"`
	SharpeRatio  metrics.Ratio `json:"sharpeRatio"`
	SortinoRatio metrics.Ratio `json:"sortinoRatio"`

	CandlesProcessed int          `json:"candlesProcessed"`
	CandlesSkipped   int          `json:"candlesSkipped"`
	Diagnostics      []Diagnostic `json:"diagnostics"`
}

// Run replays candles through strat. Bad candles and strategy failures are
// recorded as diagnostics and skipped; only misconfiguration or an empty
// series fails the run.
func Run(strat strategy.Strategy, candles []domain.Candle, params strategy.Params, cfg Config) (*BacktestResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}
	log := cfg.Logger
	if log == nil {
		log = util.Discard()
	}
	log = log.With("component", "engine", "strategy", strat.Name())

	resolved, err := strategy.Resolve(strat.Params(), params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrInvalidParams, strat.Name(), err)
	}
	state, err := strat.Init(resolved)
	if err != nil {
		return nil, fmt.Errorf("%w: %s init: %w", domain.ErrInvalidParams, strat.Name(), err)
	}

	r := &runner{
		name:  strat.Name(),
		state: state,
		cfg:   cfg,
		risk:  NewRiskManager(cfg.Risk.MaxPositionPct, cfg.Risk.MaxDailyLossPct),
		log:   log,
	}
	if err := r.replay(candles); err != nil {
		return nil, err
	}

	snap := r.sim.Ledger().Freeze()
	res := &BacktestResult{
		Strategy:         strat.Name(),
		Symbol:           r.last.Symbol,
		Params:           resolved,
		Friction:         cfg.Friction,
		InitialCapital:   cfg.InitialCapital,
		Start:            snap.Start,
		End:              r.last.Timestamp,
		Trades:           snap.Trades,
		EquityCurve:      snap.Curve,
		FinalEquity:      snap.FinalEquity(),
		CandlesProcessed: r.accepted,
		CandlesSkipped:   len(candles) - r.accepted,
		Diagnostics:      r.diags,
	}
	res.evaluate(cfg.Metrics)

	log.Info("backtest complete",
		"symbol", res.Symbol,
		"candles", res.CandlesProcessed,
		"skipped", res.CandlesSkipped,
		"trades", res.TotalTrades,
		"profit", res.TotalProfit,
		"final_equity", res.FinalEquity,
	)
	return res, nil
}

// evaluate annualises over the run's own span, Start to End.
func (res *BacktestResult) evaluate(opts metrics.Options) {
	opts.Elapsed = res.End.Sub(res.Start)
	m := metrics.Evaluate(res.Trades, res.EquityCurve, opts)
	rm := metrics.EvaluateRisk(res.EquityCurve, opts)
	res.Metrics, res.Risk = m, rm
	res.TotalProfit = m.TotalProfit
	res.TotalFees = m.TotalFees
	res.TotalTrades = m.TotalTrades
	res.WinRate = m.WinRate
	res.MaxDrawdown = m.MaxDrawdown
	res.SharpeRatio = m.SharpeRatio
	res.SortinoRatio = m.SortinoRatio
}

// runner is the mutable state of one replay.
type runner struct {
	name  string
	state strategy.State
	cfg   Config
	risk  *RiskManager
	log   *slog.Logger

	sim      *broker.Simulator
	last     domain.Candle
	accepted int
	diags    []Diagnostic
}

func (r *runner) replay(candles []domain.Candle) error {
	for _, c := range candles {
		if err := c.Validate(); err != nil {
			r.diagnose(c, DiagInvalidCandle, err)
			continue
		}
		if r.accepted > 0 && !c.Timestamp.After(r.last.Timestamp) {
			r.diagnose(c, DiagOutOfOrder, fmt.Errorf("timestamp %s not after %s",
				c.Timestamp.Format(time.RFC3339), r.last.Timestamp.Format(time.RFC3339)))
			continue
		}
		if r.sim == nil {
			r.sim = broker.NewSimulator(broker.Config{
				Symbol:         c.Symbol,
				InitialCapital: r.cfg.InitialCapital,
				Start:          c.Timestamp,
				Friction:       r.cfg.Friction,
				Sizer:          r.risk.Sizer(sizerOrDefault(r.cfg.Sizer)),
				AllowShort:     r.cfg.AllowShort,
				Exit:           r.state.ExitPolicy(),
			})
		}
		r.last = c
		r.accepted++
		if err := r.step(c); err != nil {
			return err
		}
	}
	if r.accepted == 0 {
		return fmt.Errorf("%w: no valid candles in %d supplied", domain.ErrInvalidRange, len(candles))
	}
	if _, err := r.sim.ForceExit(r.last, domain.ExitEndOfSeries); err != nil {
		return err
	}
	return nil
}

func (r *runner) step(c domain.Candle) error {
	r.risk.Observe(c.Timestamp, r.sim.Equity())
	if _, err := r.sim.CheckExits(c); err != nil {
		return err
	}
	r.risk.Observe(c.Timestamp, r.sim.Equity())

	sig, err := r.signal(c)
	if err != nil {
		r.diagnose(c, DiagStrategyError, err)
		return nil
	}
	if sig == nil {
		return nil
	}
	if r.isEntry(*sig) {
		if err := r.risk.CheckEntry(c.Timestamp); err != nil {
			r.diagnose(c, DiagRiskBlocked, err)
			return nil
		}
	}
	if _, err := r.sim.Execute(*sig, c); err != nil {
		return err
	}
	r.risk.Observe(c.Timestamp, r.sim.Equity())
	return nil
}

// signal calls the strategy, turning a panic into a StrategyError.
func (r *runner) signal(c domain.Candle) (sig *domain.Signal, err error) {
	defer func() {
		if p := recover(); p != nil {
			sig, err = nil, &domain.StrategyError{Strategy: r.name, At: c.Timestamp, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	sig, err = r.state.OnBar(c, r.sim.Position())
	if err != nil {
		var se *domain.StrategyError
		if !errors.As(err, &se) {
			err = &domain.StrategyError{Strategy: r.name, At: c.Timestamp, Err: err}
		}
		return nil, err
	}
	return sig, nil
}

func (r *runner) isEntry(sig domain.Signal) bool {
	if !sig.Actionable() || r.sim.Position().Open() {
		return false
	}
	return sig.Kind == domain.SignalBuy || r.cfg.AllowShort
}

func (r *runner) diagnose(c domain.Candle, kind DiagnosticKind, err error) {
	r.diags = append(r.diags, Diagnostic{At: c.Timestamp, Symbol: c.Symbol, Kind: kind, Message: err.Error()})
	r.log.Warn("run diagnostic", "kind", string(kind), "symbol", c.Symbol, "at", c.Timestamp, "error", err)
}

func sizerOrDefault(s broker.Sizer) broker.Sizer {
	if s == nil {
		return broker.FixedFractional{Fraction: 1}
	}
	return s
}

// Reconstruct recomputes metrics from trades alone. Applied to a result's
// Trades, InitialCapital, Start and End it reproduces the result's metrics.
func Reconstruct(trades []domain.Trade, initialCapital float64, start, end time.Time, opts metrics.Options) (metrics.PerformanceMetrics, metrics.RiskMetrics, error) {
	l, err := ledger.FromTrades(initialCapital, start, trades)
	if err != nil {
		return metrics.PerformanceMetrics{}, metrics.RiskMetrics{}, fmt.Errorf("reconstruct: %w", err)
	}
	curve := l.Curve()
	opts.Elapsed = end.Sub(start)
	return metrics.Evaluate(l.Trades(), curve, opts), metrics.EvaluateRisk(curve, opts), nil
}
