package feed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"cryptobot/internal/domain"
)

// CSVRow is the on-disk layout read by CSVFeed. Timestamp accepts RFC 3339,
// "2006-01-02 15:04:05", "2006-01-02" or Unix seconds or milliseconds.
type CSVRow struct {
	Timestamp string  `csv:"timestamp"`
	Open      float64 `csv:"open"`
	High      float64 `csv:"high"`
	Low       float64 `csv:"low"`
	Close     float64 `csv:"close"`
	Volume    float64 `csv:"volume"`
}

// CSVFeed reads <Dir>/<SYMBOL>_<timeframe>.csv files.
type CSVFeed struct {
	Dir string
}

// NewCSVFeed returns a feed over dir.
func NewCSVFeed(dir string) *CSVFeed { return &CSVFeed{Dir: dir} }

func (f *CSVFeed) Name() string { return "csv" }

// Path returns the file CSVFeed reads for symbol and tf.
func (f *CSVFeed) Path(symbol string, tf domain.Timeframe) string {
	name := strings.ToUpper(strings.ReplaceAll(symbol, "/", "")) + "_" + string(tf) + ".csv"
	return filepath.Join(f.Dir, name)
}

func (f *CSVFeed) Candles(_ context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Candle, error) {
	all, err := ReadCSVFile(f.Path(symbol, tf), symbol)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		if !c.Timestamp.Before(start) && c.Timestamp.Before(end) {
			out = append(out, c)
		}
	}
	sortCandles(out)
	return out, nil
}

// ReadCSVFile parses every row of path into candles for symbol, in file
// order. Rows with unparseable timestamps are an error.
func ReadCSVFile(path, symbol string) ([]domain.Candle, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv feed: %w", err)
	}
	defer fh.Close()

	var rows []CSVRow
	if err := gocsv.UnmarshalFile(fh, &rows); err != nil {
		return nil, fmt.Errorf("csv feed %s: %w", path, err)
	}
	out := make([]domain.Candle, 0, len(rows))
	for i, r := range rows {
		ts, err := ParseTimestamp(r.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("csv feed %s row %d: %w", path, i+2, err)
		}
		out = append(out, domain.Candle{
			Symbol:    strings.ToUpper(symbol),
			Timestamp: ts,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}
	return out, nil
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}

// ParseTimestamp parses the formats accepted in candle CSV files. Results
// are in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		// Anything past 1e11 is too late for seconds; treat it as millis.
		if n > 1e11 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
