// Package report renders backtest results for terminals and exports trades
// as CSV.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gocarina/gocsv"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"cryptobot/internal/domain"
	"cryptobot/internal/metrics"
	"cryptobot/internal/store"
	"cryptobot/internal/strategy"
	"cryptobot/internal/sweep"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	gainStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208"))
	colHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// money rounds v to cents.
func money(v float64) string { return decimal.NewFromFloat(v).StringFixed(2) }

// price keeps enough precision for sub-dollar assets.
func price(v float64) string { return decimal.NewFromFloat(v).Round(8).String() }

func pct(v float64) string { return decimal.NewFromFloat(v*100).StringFixed(2) + "%" }

func signed(v float64) string {
	s := money(v)
	switch {
	case v > 0:
		return gainStyle.Render("+" + s)
	case v < 0:
		return lossStyle.Render(s)
	}
	return s
}

func ratio(r metrics.Ratio) string {
	if !r.Defined {
		return "n/a"
	}
	return strconv.FormatFloat(r.Value, 'f', 3, 64)
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoFormatHeaders(false)
	t.SetBorder(false)
	t.SetColumnSeparator("")
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	return t
}

// PrintRun writes a run's headline and metric tables to w.
func PrintRun(w io.Writer, run *store.RunRecord) {
	res := run.Result
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s on %s (%s)", run.StrategyID, run.Symbol, run.Timeframe)))
	fmt.Fprintln(w, colHeaderStyle.Render(fmt.Sprintf("run %s  %s → %s  source %s",
		run.ID, run.Start.Format(time.DateOnly), run.End.Format(time.DateOnly), run.DataSource)))
	if run.DataSource == "synthetic" {
		fmt.Fprintln(w, warnStyle.Render("SYNTHETIC DATA: results do not reflect any market"))
	}
	if len(res.Params) > 0 {
		fmt.Fprintln(w, colHeaderStyle.Render("params "+res.Params.String()))
	}
	fmt.Fprintln(w)

	m := res.Metrics
	t := newTable(w, "Metric", "Value")
	t.AppendBulk([][]string{
		{"Initial capital", money(res.InitialCapital)},
		{"Final equity", money(res.FinalEquity)},
		{"Total profit", signed(res.TotalProfit)},
		{"Total fees", money(res.TotalFees)},
		{"Total return", pct(m.TotalReturn)},
		{"Annualized return", ratioPct(m.AnnualizedReturn)},
		{"Trades", strconv.Itoa(m.TotalTrades)},
		{"Win rate", pct(m.WinRate)},
		{"Profit factor", m.ProfitFactor.String()},
		{"Average trade", signed(m.AverageTrade)},
		{"Largest win", signed(m.LargestWin)},
		{"Largest loss", signed(m.LargestLoss)},
		{"Max drawdown", pct(m.MaxDrawdown)},
		{"Drawdown duration", m.MaxDrawdownDuration.String()},
		{"Avg holding time", m.AverageHoldingTime.String()},
		{"Sharpe", ratio(m.SharpeRatio)},
		{"Sortino", ratio(m.SortinoRatio)},
		{"Calmar", ratio(m.CalmarRatio)},
		{fmt.Sprintf("VaR %.0f%%", res.Risk.Confidence*100), ratioPct(res.Risk.ValueAtRisk)},
		{fmt.Sprintf("CVaR %.0f%%", res.Risk.Confidence*100), ratioPct(res.Risk.ConditionalValueAtRisk)},
		{"Candles", fmt.Sprintf("%d processed, %d skipped", res.CandlesProcessed, res.CandlesSkipped)},
	})
	t.Render()

	if len(res.Components) > 0 {
		fmt.Fprintln(w)
		ct := newTable(w, "Symbol", "Weight", "Capital", "Final", "Trades", "Profit")
		for _, c := range res.Components {
			ct.Append([]string{c.Symbol, pct(c.Weight), money(c.Capital), money(c.FinalEquity), strconv.Itoa(c.TotalTrades), signed(c.TotalProfit)})
		}
		ct.Render()
		if d := res.Diversification; d != nil {
			fmt.Fprintf(w, "HHI %.4f  Gini %.4f  effective N %.2f\n", d.HerfindahlIndex, d.GiniCoefficient, d.EffectiveN)
		}
	}

	if n := len(res.Diagnostics); n > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("%d diagnostics", n)))
		for i, d := range res.Diagnostics {
			if i == 10 {
				fmt.Fprintf(w, "  ... %d more\n", n-i)
				break
			}
			fmt.Fprintf(w, "  %s %s %s\n", d.At.Format(time.RFC3339), d.Kind, d.Message)
		}
	}
}

func ratioPct(r metrics.Ratio) string {
	if !r.Defined {
		return "n/a"
	}
	return pct(r.Value)
}

// PrintTrades writes the trade list as a table.
func PrintTrades(w io.Writer, trades []domain.Trade) {
	t := newTable(w, "#", "Side", "Entry", "Exit", "Entry px", "Exit px", "Size", "Fees", "Profit", "Reason")
	for i, tr := range trades {
		t.Append([]string{
			strconv.Itoa(i + 1),
			string(tr.Side),
			tr.EntryTime.Format(time.DateTime),
			tr.ExitTime.Format(time.DateTime),
			price(tr.EntryPrice),
			price(tr.ExitPrice),
			price(tr.Size),
			money(tr.Fees),
			signed(tr.Profit),
			string(tr.ExitReason),
		})
	}
	t.Render()
}

// PrintStrategies lists strategies and their parameter schemas.
func PrintStrategies(w io.Writer, infos []strategy.Info) {
	for _, info := range infos {
		fmt.Fprintln(w, titleStyle.Render(info.Name))
		t := newTable(w, "Param", "Default", "Range", "Description")
		for _, p := range info.Params {
			rng := ""
			if p.Max > p.Min {
				rng = fmt.Sprintf("[%g, %g]", p.Min, p.Max)
			}
			t.Append([]string{p.Name, strconv.FormatFloat(p.Default, 'g', -1, 64), rng, p.Description})
		}
		t.Render()
		fmt.Fprintln(w)
	}
}

// PrintSweep writes ranked sweep results, best first, up to top rows.
// top <= 0 prints all.
func PrintSweep(w io.Writer, results []sweep.Result, by sweep.Objective, top int) {
	ranked := sweep.Rank(results, by)
	if top > 0 && len(ranked) > top {
		ranked = ranked[:top]
	}
	t := newTable(w, "Rank", "Params", "Trades", "Profit", "Win rate", "Sharpe", "Sortino", "Max DD")
	for i, r := range ranked {
		m := r.Result.Metrics
		t.Append([]string{
			strconv.Itoa(i + 1),
			r.Params.String(),
			strconv.Itoa(m.TotalTrades),
			signed(m.TotalProfit),
			pct(m.WinRate),
			ratio(m.SharpeRatio),
			ratio(m.SortinoRatio),
			pct(m.MaxDrawdown),
		})
	}
	t.Render()
	var failed []string
	for _, r := range results {
		if !r.OK() {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Params.String(), r.Err))
		}
	}
	if len(failed) > 0 {
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("%d parameter sets failed", len(failed))))
		fmt.Fprintln(w, "  "+strings.Join(failed, "\n  "))
	}
}

// TradeRow is the CSV layout of an exported trade.
type TradeRow struct {
	Symbol     string `csv:"symbol"`
	Side       string `csv:"side"`
	EntryTime  string `csv:"entry_time"`
	ExitTime   string `csv:"exit_time"`
	EntryPrice string `csv:"entry_price"`
	ExitPrice  string `csv:"exit_price"`
	Size       string `csv:"size"`
	Fees       string `csv:"fees"`
	Profit     string `csv:"profit"`
	ExitReason string `csv:"exit_reason"`
}

// WriteTradesCSV writes trades to w with a header row. Money columns are
// rounded to cents, prices and sizes to 8 places.
func WriteTradesCSV(w io.Writer, trades []domain.Trade) error {
	rows := make([]TradeRow, 0, len(trades))
	for _, tr := range trades {
		rows = append(rows, TradeRow{
			Symbol:     tr.Symbol,
			Side:       string(tr.Side),
			EntryTime:  tr.EntryTime.UTC().Format(time.RFC3339),
			ExitTime:   tr.ExitTime.UTC().Format(time.RFC3339),
			EntryPrice: price(tr.EntryPrice),
			ExitPrice:  price(tr.ExitPrice),
			Size:       price(tr.Size),
			Fees:       money(tr.Fees),
			Profit:     money(tr.Profit),
			ExitReason: string(tr.ExitReason),
		})
	}
	if len(rows) == 0 {
		_, err := io.WriteString(w, "symbol,side,entry_time,exit_time,entry_price,exit_price,size,fees,profit,exit_reason\n")
		return err
	}
	return gocsv.Marshal(&rows, w)
}
