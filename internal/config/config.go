// Package config loads the paperback YAML configuration and applies
// environment variable overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"paperback/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the paperback tools.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Gather   GatherConfig   `yaml:"gather"`
	Backtest BacktestConfig `yaml:"backtest"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// GatherConfig holds parameters for the historical daily-bar gathering job.
type GatherConfig struct {
	Symbols         []string `yaml:"symbols"`
	StartDate       string   `yaml:"start_date"`
	BatchSize       int      `yaml:"batch_size"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
}

// StrategyConfig names the strategy to run and its numeric parameters, which
// are echoed into the run result.
type StrategyConfig struct {
	Name   string             `yaml:"name"`
	Params map[string]float64 `yaml:"params"`
}

// BacktestConfig defines one backtest run: instrument, capital, execution
// frictions, session boundaries, and the strategy to drive it.
type BacktestConfig struct {
	Symbol             string             `yaml:"symbol"`
	InitialCapital     float64            `yaml:"initial_capital"`
	Commission         float64            `yaml:"commission"`
	Slippage           float64            `yaml:"slippage"`
	MaxPositionSize    float64            `yaml:"max_position_size"`
	AllowExtendedHours bool               `yaml:"allow_extended_hours"`
	CloseAllOnSell     bool               `yaml:"close_all_on_sell"`
	ValidateTrades     bool               `yaml:"validate_trades"`
	StartDate          string             `yaml:"start_date"`
	EndDate            string             `yaml:"end_date"`
	MarketHours        domain.MarketHours `yaml:"market_hours"`
	Strategy           StrategyConfig     `yaml:"strategy"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns a Config populated with working defaults: US regular
// session hours, $10,000 capital, and SELL-closes-all-lots semantics.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "paperback.db",
		},
		Logging: Logging{Level: "info"},
		Gather: GatherConfig{
			BatchSize:       200,
			RateLimitPerMin: 200,
		},
		Backtest: BacktestConfig{
			InitialCapital:  10000,
			MaxPositionSize: 10000,
			CloseAllOnSell:  true,
			MarketHours: domain.MarketHours{
				PreMarketStart: "04:00",
				MarketOpen:     "09:30",
				MarketClose:    "16:00",
				AfterHoursEnd:  "20:00",
			},
		},
	}
}

// Load reads the YAML configuration file at the given path, parses it over
// the defaults, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

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
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	// Canonical Alpaca SDK env vars take highest priority.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
