// Package config loads the collector configuration from a YAML file and
// applies environment variable overrides and defaults.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the breadth data collector.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Universe Universe `yaml:"universe"`
	Feed     Feed     `yaml:"feed"`
	Collect  Collect  `yaml:"collect"`
	Logging  Logging  `yaml:"logging"`
}

// Storage holds paths for data persistence. PricesDir, TickersDir, and
// LogsDir default to subdirectories of DataDir when left empty.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	PricesDir  string `yaml:"prices_dir"`
	TickersDir string `yaml:"tickers_dir"`
	LogsDir    string `yaml:"logs_dir"`
}

// Universe configures ticker universe resolution.
type Universe struct {
	SourceURL   string `yaml:"source_url"`
	FallbackCSV string `yaml:"fallback_csv"`
	MinSymbols  int    `yaml:"min_symbols"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// Feed selects and configures the upstream price feed.
type Feed struct {
	Provider   string `yaml:"provider"` // "yahoo" (default) or "alpaca"
	Interval   string `yaml:"interval"`
	AutoAdjust bool   `yaml:"auto_adjust"`
	Alpaca     Alpaca `yaml:"alpaca"`
}

// Alpaca holds credentials and endpoint for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Collect holds the orchestration parameters for a collection run.
type Collect struct {
	HistoryDays     int     `yaml:"history_days"`
	BatchSize       int     `yaml:"batch_size"`
	RequestDelayMS  int     `yaml:"request_delay_ms"`
	BatchDelayMS    int     `yaml:"batch_delay_ms"`
	MinCoveragePct  float64 `yaml:"min_coverage_pct"`
	MinValidSymbols int     `yaml:"min_valid_symbols"`
	MaxDataAgeDays  int     `yaml:"max_data_age_days"`
}

// RequestDelay returns the per-symbol pacing delay.
func (c Collect) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelayMS) * time.Millisecond
}

// BatchDelay returns the longer delay applied at batch boundaries.
func (c Collect) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelayMS) * time.Millisecond
}

// MaxDataAge returns the staleness threshold for stored data.
func (c Collect) MaxDataAge() time.Duration {
	return time.Duration(c.MaxDataAgeDays) * 24 * time.Hour
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, applies
// environment variable overrides, and fills defaults for any field left
// unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Feed.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Feed.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Feed.Alpaca.DataURL = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Feed.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Feed.Alpaca.APISecret = v
	}
}

// applyDefaults fills any unset field with its default. Directory defaults
// derive from DataDir so a single override relocates the whole tree.
func applyDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.PricesDir == "" {
		cfg.Storage.PricesDir = filepath.Join(cfg.Storage.DataDir, "prices")
	}
	if cfg.Storage.TickersDir == "" {
		cfg.Storage.TickersDir = filepath.Join(cfg.Storage.DataDir, "tickers")
	}
	if cfg.Storage.LogsDir == "" {
		cfg.Storage.LogsDir = "logs"
	}

	if cfg.Universe.SourceURL == "" {
		cfg.Universe.SourceURL = "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies"
	}
	if cfg.Universe.FallbackCSV == "" {
		cfg.Universe.FallbackCSV = filepath.Join(cfg.Storage.TickersDir, "sp500.csv")
	}
	if cfg.Universe.MinSymbols == 0 {
		cfg.Universe.MinSymbols = 400
	}
	if cfg.Universe.TimeoutSecs == 0 {
		cfg.Universe.TimeoutSecs = 10
	}

	if cfg.Feed.Provider == "" {
		cfg.Feed.Provider = "yahoo"
	}
	if cfg.Feed.Interval == "" {
		cfg.Feed.Interval = "1d"
	}

	if cfg.Collect.HistoryDays == 0 {
		cfg.Collect.HistoryDays = 500
	}
	if cfg.Collect.BatchSize == 0 {
		cfg.Collect.BatchSize = 50
	}
	if cfg.Collect.RequestDelayMS == 0 {
		cfg.Collect.RequestDelayMS = 500
	}
	if cfg.Collect.BatchDelayMS == 0 {
		cfg.Collect.BatchDelayMS = cfg.Collect.RequestDelayMS * 2
	}
	if cfg.Collect.MinCoveragePct == 0 {
		cfg.Collect.MinCoveragePct = 90
	}
	if cfg.Collect.MinValidSymbols == 0 {
		cfg.Collect.MinValidSymbols = 450
	}
	if cfg.Collect.MaxDataAgeDays == 0 {
		cfg.Collect.MaxDataAgeDays = 3
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}
