package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cryptobot/internal/domain"
	"cryptobot/internal/engine"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ ResultStore = (*SQLiteStore)(nil)

// SQLiteStore implements ResultStore backed by a SQLite database. The full
// result is kept as JSON; trades and diagnostics are also normalised into
// their own tables for querying.
type SQLiteStore struct {
	db *sql.DB
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id              TEXT PRIMARY KEY,
		created_at      TEXT NOT NULL,
		strategy        TEXT NOT NULL,
		symbol          TEXT NOT NULL,
		timeframe       TEXT NOT NULL,
		start_time      TEXT NOT NULL,
		end_time        TEXT NOT NULL,
		data_source     TEXT NOT NULL,
		initial_capital REAL NOT NULL,
		final_equity    REAL NOT NULL,
		total_trades    INTEGER NOT NULL,
		total_profit    REAL NOT NULL,
		sharpe_ratio    REAL,
		result_json     TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at)`,
	`CREATE TABLE IF NOT EXISTS trades (
		run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq         INTEGER NOT NULL,
		symbol      TEXT NOT NULL,
		side        TEXT NOT NULL,
		entry_price REAL NOT NULL,
		exit_price  REAL NOT NULL,
		entry_time  TEXT NOT NULL,
		exit_time   TEXT NOT NULL,
		size        REAL NOT NULL,
		fees        REAL NOT NULL,
		profit      REAL NOT NULL,
		exit_reason TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS diagnostics (
		run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq     INTEGER NOT NULL,
		at      TEXT NOT NULL,
		symbol  TEXT NOT NULL,
		kind    TEXT NOT NULL,
		message TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema and returns a ready-to-use SQLiteStore. ":memory:" is supported.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection keeps :memory: databases shared and serialises
	// writers.
	db.SetMaxOpenConns(1)
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func ts(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTS(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

// SaveRun stores rec and its trades and diagnostics in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, rec *RunRecord) error {
	if rec.Result == nil {
		return fmt.Errorf("run %s has no result", rec.ID)
	}
	blob, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("encoding run %s: %w", rec.ID, err)
	}
	var sharpe any
	if rec.Result.SharpeRatio.Defined {
		sharpe = rec.Result.SharpeRatio.Value
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(id, created_at, strategy, symbol, timeframe, start_time, end_time, data_source,
		 initial_capital, final_equity, total_trades, total_profit, sharpe_ratio, result_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, ts(rec.CreatedAt), rec.StrategyID, rec.Symbol, string(rec.Timeframe),
		ts(rec.Start), ts(rec.End), rec.DataSource,
		rec.Result.InitialCapital, rec.Result.FinalEquity, rec.Result.TotalTrades,
		rec.Result.TotalProfit, sharpe, string(blob))
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", rec.ID, err)
	}

	for i, t := range rec.Result.Trades {
		_, err = tx.ExecContext(ctx, `INSERT INTO trades
			(run_id, seq, symbol, side, entry_price, exit_price, entry_time, exit_time, size, fees, profit, exit_reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, t.Symbol, string(t.Side), t.EntryPrice, t.ExitPrice,
			ts(t.EntryTime), ts(t.ExitTime), t.Size, t.Fees, t.Profit, string(t.ExitReason))
		if err != nil {
			return fmt.Errorf("inserting trade %d of run %s: %w", i, rec.ID, err)
		}
	}
	for i, d := range rec.Result.Diagnostics {
		_, err = tx.ExecContext(ctx, `INSERT INTO diagnostics (run_id, seq, at, symbol, kind, message)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID, i, ts(d.At), d.Symbol, string(d.Kind), d.Message)
		if err != nil {
			return fmt.Errorf("inserting diagnostic %d of run %s: %w", i, rec.ID, err)
		}
	}
	return tx.Commit()
}

// GetRun loads a run by id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, created_at, strategy, symbol, timeframe,
		start_time, end_time, data_source, result_json FROM runs WHERE id = ?`, id)

	var rec RunRecord
	var created, start, end, tf, blob string
	err := row.Scan(&rec.ID, &created, &rec.StrategyID, &rec.Symbol, &tf, &start, &end, &rec.DataSource, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	rec.Timeframe = domain.Timeframe(tf)
	if rec.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if rec.Start, err = parseTS(start); err != nil {
		return nil, err
	}
	if rec.End, err = parseTS(end); err != nil {
		return nil, err
	}
	rec.Result = new(engine.BacktestResult)
	if err := json.Unmarshal([]byte(blob), rec.Result); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", id, err)
	}
	return &rec, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, created_at, strategy, symbol, data_source,
		total_trades, total_profit, final_equity FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var created string
		if err := rows.Scan(&r.ID, &created, &r.StrategyID, &r.Symbol, &r.DataSource,
			&r.TotalTrades, &r.TotalProfit, &r.FinalEquity); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = parseTS(created); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Trades reads a run's trades from the normalised trades table.
func (s *SQLiteStore) Trades(ctx context.Context, runID string) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, side, entry_price, exit_price, entry_time,
		exit_time, size, fees, profit, exit_reason FROM trades WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side, reason, entry, exit string
		if err := rows.Scan(&t.Symbol, &side, &t.EntryPrice, &t.ExitPrice, &entry, &exit,
			&t.Size, &t.Fees, &t.Profit, &reason); err != nil {
			return nil, err
		}
		t.Side, t.ExitReason = domain.Side(side), domain.ExitReason(reason)
		if t.EntryTime, err = parseTS(entry); err != nil {
			return nil, err
		}
		if t.ExitTime, err = parseTS(exit); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
