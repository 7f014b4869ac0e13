package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"cryptobot/internal/domain"
	"cryptobot/internal/util"
)

// Compile-time interface check.
var _ CandleStore = (*ParquetStore)(nil)

// ParquetStore implements CandleStore using Parquet files on disk, one file
// per symbol, timeframe and UTC year:
//
//	<DataDir>/<timeframe>/<SYMBOL>/<YYYY>.parquet
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// CandleRecord is the Parquet schema for candle data.
type CandleRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

func toRecord(c domain.Candle) CandleRecord {
	return CandleRecord{
		Symbol:    strings.ToUpper(c.Symbol),
		Timestamp: c.Timestamp.UnixMilli(),
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Volume:    c.Volume,
	}
}

func (r CandleRecord) candle() domain.Candle {
	return domain.Candle{
		Symbol:    r.Symbol,
		Timestamp: time.UnixMilli(r.Timestamp).UTC(),
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
	}
}

// WriteCandles groups candles by symbol and year and merges each group into
// its file.
func (s *ParquetStore) WriteCandles(_ context.Context, tf domain.Timeframe, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]CandleRecord)
	for _, c := range candles {
		r := toRecord(c)
		k := key{symbol: r.Symbol, year: c.Timestamp.UTC().Year()}
		groups[k] = append(groups[k], r)
	}

	for k, records := range groups {
		path := s.candlePath(k.symbol, tf, k.year)

		existing, err := readParquetFile[CandleRecord](path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		merged := mergeCandleRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing candles for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadCandles reads candles from the year files overlapping [start, end).
func (s *ParquetStore) ReadCandles(_ context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Candle, error) {
	var out []domain.Candle
	lo, hi := start.UnixMilli(), end.UnixMilli()
	for _, year := range util.YearsBetween(start, end) {
		path := s.candlePath(symbol, tf, year)
		records, err := readParquetFile[CandleRecord](path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		for _, r := range records {
			if r.Timestamp >= lo && r.Timestamp < hi {
				out = append(out, r.candle())
			}
		}
	}
	return out, nil
}

// ListSymbols lists all symbols that have candle data for tf.
func (s *ParquetStore) ListSymbols(_ context.Context, tf domain.Timeframe) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, string(tf)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// candlePath returns the filesystem path for one year of candles.
func (s *ParquetStore) candlePath(symbol string, tf domain.Timeframe, year int) string {
	return filepath.Join(s.DataDir, string(tf), strings.ToUpper(symbol), strconv.Itoa(year)+".parquet")
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// mergeCandleRecords deduplicates by timestamp, preferring incoming records,
// and sorts the result by timestamp.
func mergeCandleRecords(existing, incoming []CandleRecord) []CandleRecord {
	seen := make(map[int64]CandleRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]CandleRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
