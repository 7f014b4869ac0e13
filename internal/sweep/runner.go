package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cryptobot/internal/domain"
	"cryptobot/internal/engine"
	"cryptobot/internal/strategy"
	"cryptobot/internal/util"
)

// Result is one run of a sweep. Err is set when that parameter set could
// not run (bad params, strategy init failure); the sweep carries on.
type Result struct {
	ID     string                 `json:"id"`
	Index  int                    `json:"index"`
	Params strategy.Params        `json:"params"`
	Start  time.Time              `json:"start"`
	End    time.Time              `json:"end"`
	Result *engine.BacktestResult `json:"result,omitempty"`
	Err    string                 `json:"error,omitempty"`
}

// OK reports whether the run produced a result.
func (r Result) OK() bool { return r.Result != nil }

// Runner executes backtests concurrently. Each job owns its strategy
// state, simulator and ledger; only the candle slice is shared, read-only.
type Runner struct {
	workers int
	log     *slog.Logger
	newID   func() string
}

// NewRunner returns a runner with the given pool size. workers <= 0 uses
// GOMAXPROCS.
func NewRunner(workers int, log *slog.Logger) *Runner {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if log == nil {
		log = util.Discard()
	}
	return &Runner{
		workers: workers,
		log:     log.With("component", "sweep"),
		newID:   uuid.NewString,
	}
}

type job struct {
	params  strategy.Params
	candles []domain.Candle
}

// run executes jobs on the pool and returns results in job order. A
// cancelled context stops dispatch, waits for in-flight runs and returns
// the context error with no results.
func (r *Runner) run(ctx context.Context, strat strategy.Strategy, jobs []job, cfg engine.Config) ([]Result, error) {
	// One summary per sweep, not per run.
	quiet := cfg
	quiet.Logger = util.Discard()

	results := make([]Result, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, j := range jobs {
		if gctx.Err() != nil {
			break
		}
		results[i] = Result{ID: r.newID(), Index: i, Params: j.params}
		if len(j.candles) > 0 {
			results[i].Start = j.candles[0].Timestamp
			results[i].End = j.candles[len(j.candles)-1].Timestamp
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := engine.Run(strat, j.candles, j.params, quiet)
			if err != nil {
				results[i].Err = err.Error()
				return nil
			}
			results[i].Result = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Sweep runs strat over every parameter set in grid against the same
// candles. Results come back in grid order.
func (r *Runner) Sweep(ctx context.Context, strat strategy.Strategy, candles []domain.Candle, grid Grid, base strategy.Params, cfg engine.Config) ([]Result, error) {
	sets, err := grid.Expand(base)
	if err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		sets = []strategy.Params{base.Clone()}
	}
	jobs := make([]job, len(sets))
	for i, p := range sets {
		jobs[i] = job{params: p, candles: candles}
	}

	started := time.Now()
	results, err := r.run(ctx, strat, jobs, cfg)
	if err != nil {
		return nil, err
	}
	r.log.Info("sweep complete",
		"strategy", strat.Name(),
		"runs", len(results),
		"failed", countFailed(results),
		"workers", r.workers,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return results, nil
}

// WalkForward splits candles into n consecutive windows of equal length
// (the last absorbs the remainder) and runs params on each.
func (r *Runner) WalkForward(ctx context.Context, strat strategy.Strategy, candles []domain.Candle, n int, params strategy.Params, cfg engine.Config) ([]Result, error) {
	if n <= 0 {
		return nil, fmt.Errorf("walk-forward needs at least one window, got %d", n)
	}
	if len(candles) < n {
		return nil, fmt.Errorf("%w: %d candles cannot fill %d windows", domain.ErrInvalidRange, len(candles), n)
	}
	size := len(candles) / n
	jobs := make([]job, n)
	for i := range jobs {
		lo, hi := i*size, (i+1)*size
		if i == n-1 {
			hi = len(candles)
		}
		jobs[i] = job{params: params.Clone(), candles: candles[lo:hi]}
	}
	results, err := r.run(ctx, strat, jobs, cfg)
	if err != nil {
		return nil, err
	}
	r.log.Info("walk-forward complete", "strategy", strat.Name(), "windows", n, "failed", countFailed(results))
	return results, nil
}

func countFailed(results []Result) int {
	n := 0
	for _, res := range results {
		if !res.OK() {
			n++
		}
	}
	return n
}

// Objective selects the metric Best ranks by.
type Objective string

const (
	BySharpe       Objective = "sharpe"
	BySortino      Objective = "sortino"
	ByProfit       Objective = "profit"
	ByProfitFactor Objective = "profit_factor"
	ByCalmar       Objective = "calmar"
)

// ParseObjective validates s.
func ParseObjective(s string) (Objective, error) {
	switch o := Objective(s); o {
	case BySharpe, BySortino, ByProfit, ByProfitFactor, ByCalmar:
		return o, nil
	}
	return "", fmt.Errorf("unknown objective %q", s)
}

func score(res *engine.BacktestResult, by Objective) (float64, bool) {
	m := res.Metrics
	switch by {
	case BySortino:
		return m.SortinoRatio.Value, m.SortinoRatio.Defined
	case ByProfit:
		return m.TotalProfit, true
	case ByProfitFactor:
		return float64(m.ProfitFactor), true
	case ByCalmar:
		return m.CalmarRatio.Value, m.CalmarRatio.Defined
	default:
		return m.SharpeRatio.Value, m.SharpeRatio.Defined
	}
}

// Rank returns the successful results ordered best first by the
// objective. Undefined scores rank after every defined score; ties keep
// grid order.
func Rank(results []Result, by Objective) []Result {
	ranked := make([]Result, 0, len(results))
	for _, res := range results {
		if res.OK() {
			ranked = append(ranked, res)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		vi, di := score(ranked[i].Result, by)
		vj, dj := score(ranked[j].Result, by)
		if di != dj {
			return di
		}
		return vi > vj
	})
	return ranked
}

// Best returns the top-ranked result, or false if no run succeeded.
func Best(results []Result, by Objective) (Result, bool) {
	ranked := Rank(results, by)
	if len(ranked) == 0 {
		return Result{}, false
	}
	return ranked[0], true
}
