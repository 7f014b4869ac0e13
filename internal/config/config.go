// Package config loads cryptobot settings from YAML, a .env file and the
// environment, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cryptobot/internal/broker"
	"cryptobot/internal/domain"
	"cryptobot/internal/engine"
	"cryptobot/internal/metrics"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Server   Server   `yaml:"server"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Logging  Logging  `yaml:"logging"`
	Data     Data     `yaml:"data"`
	Backtest Backtest `yaml:"backtest"`
	Risk     Risk     `yaml:"risk"`
	Sweep    Sweep    `yaml:"sweep"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration. A zero port disables that
// listener.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// HTTPAddr returns host:port for the HTTP listener, or "" when disabled.
func (s Server) HTTPAddr() string { return joinAddr(s.Host, s.Port) }

// GRPCAddr returns host:port for the gRPC listener, or "" when disabled.
func (s Server) GRPCAddr() string { return joinAddr(s.Host, s.GRPCPort) }

func joinAddr(host string, port int) string {
	if port == 0 {
		return ""
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	DataURL         string `yaml:"data_url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Data selects where candles come from.
type Data struct {
	Source        string `yaml:"source"` // parquet, csv, alpaca or synthetic
	CSVDir        string `yaml:"csv_dir"`
	Timeframe     string `yaml:"timeframe"`
	SyntheticSeed uint64 `yaml:"synthetic_seed"`
	Cache         bool   `yaml:"cache"`
}

// Data sources.
const (
	SourceParquet   = "parquet"
	SourceCSV       = "csv"
	SourceAlpaca    = "alpaca"
	SourceSynthetic = "synthetic"
)

// Backtest holds the defaults applied to every run.
type Backtest struct {
	InitialCapital float64 `yaml:"initial_capital"`
	SlippageRate   float64 `yaml:"slippage_rate"`
	FeeRate        float64 `yaml:"fee_rate"`
	Sizing         string  `yaml:"sizing"` // fixed_fractional, fixed_size or confidence
	SizingValue    float64 `yaml:"sizing_value"`
	AllowShort     bool    `yaml:"allow_short"`
	PeriodsPerYear float64 `yaml:"periods_per_year"` // 0 uses the observed return rate
	Confidence     float64 `yaml:"confidence"`
	RiskFreeRate   float64 `yaml:"risk_free_rate"`
}

// Risk defines the risk manager limits. Zero disables a limit.
type Risk struct {
	MaxPositionPct  float64 `yaml:"max_position_pct"`
	MaxDailyLossPct float64 `yaml:"max_daily_loss_pct"`
}

// Sweep configures parameter sweeps.
type Sweep struct {
	Workers   int    `yaml:"workers"` // 0 means GOMAXPROCS
	Objective string `yaml:"objective"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Storage: Storage{DataDir: "data", SQLitePath: "data/cryptobot.db"},
		Server:  Server{Host: "0.0.0.0", Port: 8080, GRPCPort: 9090},
		Alpaca:  Alpaca{RateLimitPerMin: 200},
		Logging: Logging{Level: "info", Format: "text"},
		Data:    Data{Source: SourceParquet, CSVDir: "data/csv", Timeframe: "1d", Cache: true},
		Backtest: Backtest{
			InitialCapital: 10_000,
			Sizing:         "fixed_fractional",
			SizingValue:    1,
			Confidence:     0.95,
		},
		Sweep: Sweep{Objective: "sharpe"},
	}
}

// Load reads the YAML configuration file at path over Default, loads a
// .env file from the working directory when present, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("CRYPTOBOT_DATA_SOURCE"); v != "" {
		cfg.Data.Source = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("CRYPTOBOT_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("CRYPTOBOT_GRPC_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.GRPCPort = n
		}
	}

	// Standard Alpaca env vars take priority over ours.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch c.Data.Source {
	case SourceParquet, SourceCSV, SourceAlpaca, SourceSynthetic:
	default:
		return fmt.Errorf("%w: data.source %q", domain.ErrInvalidConfig, c.Data.Source)
	}
	if _, err := domain.ParseTimeframe(c.Data.Timeframe); err != nil {
		return fmt.Errorf("%w: data.timeframe: %w", domain.ErrInvalidConfig, err)
	}
	if c.Data.Source == SourceAlpaca && (c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "") {
		return fmt.Errorf("%w: alpaca source needs api_key and api_secret", domain.ErrInvalidConfig)
	}
	if c.Backtest.Confidence <= 0 || c.Backtest.Confidence >= 1 {
		return fmt.Errorf("%w: backtest.confidence %v outside (0, 1)", domain.ErrInvalidConfig, c.Backtest.Confidence)
	}
	if c.Backtest.PeriodsPerYear < 0 {
		return fmt.Errorf("%w: backtest.periods_per_year %v", domain.ErrInvalidConfig, c.Backtest.PeriodsPerYear)
	}
	if c.Sweep.Workers < 0 {
		return fmt.Errorf("%w: sweep.workers %d", domain.ErrInvalidConfig, c.Sweep.Workers)
	}
	_, err := c.EngineConfig(nil)
	return err
}

// Timeframe returns the parsed default timeframe.
func (c *Config) Timeframe() domain.Timeframe {
	tf, err := domain.ParseTimeframe(c.Data.Timeframe)
	if err != nil {
		return domain.Timeframe1d
	}
	return tf
}

// EngineConfig builds the default engine configuration for runs.
func (c *Config) EngineConfig(log *slog.Logger) (engine.Config, error) {
	sizer, err := broker.SizerFor(c.Backtest.Sizing, c.Backtest.SizingValue)
	if err != nil {
		return engine.Config{}, fmt.Errorf("%w: backtest.sizing: %w", domain.ErrInvalidConfig, err)
	}
	ec := engine.Config{
		InitialCapital: c.Backtest.InitialCapital,
		Friction: broker.Friction{
			SlippageRate: c.Backtest.SlippageRate,
			FeeRate:      c.Backtest.FeeRate,
		},
		Sizer:      sizer,
		AllowShort: c.Backtest.AllowShort,
		Risk: engine.RiskLimits{
			MaxPositionPct:  c.Risk.MaxPositionPct,
			MaxDailyLossPct: c.Risk.MaxDailyLossPct,
		},
		Metrics: metrics.Options{
			PeriodsPerYear: c.Backtest.PeriodsPerYear,
			Confidence:     c.Backtest.Confidence,
			RiskFreeRate:   c.Backtest.RiskFreeRate,
		},
		Logger: log,
	}
	if err := ec.Validate(); err != nil {
		return engine.Config{}, fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}
	return ec, nil
}
