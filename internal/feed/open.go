package feed

import (
	"fmt"
	"log/slog"

	"cryptobot/internal/config"
	"cryptobot/internal/store"
)

// Open builds the feed selected by cfg.Data.Source, wrapped in a cache
// when cfg.Data.Cache is set.
func Open(cfg *config.Config, log *slog.Logger) (Feed, error) {
	var f Feed
	switch cfg.Data.Source {
	case config.SourceParquet:
		f = NewStoreFeed(store.NewParquetStore(cfg.Storage.DataDir), "parquet")
	case config.SourceCSV:
		f = NewCSVFeed(cfg.Data.CSVDir)
	case config.SourceAlpaca:
		f = NewAlpacaFeed(AlpacaOptions{
			APIKey:       cfg.Alpaca.APIKey,
			APISecret:    cfg.Alpaca.APISecret,
			DataURL:      cfg.Alpaca.DataURL,
			RequestsPerM: cfg.Alpaca.RateLimitPerMin,
			Logger:       log,
		})
	case config.SourceSynthetic:
		f = NewSyntheticFeed(cfg.Data.SyntheticSeed)
	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.Data.Source)
	}
	if cfg.Data.Cache {
		f = NewCached(f)
	}
	return f, nil
}
