// Package config defines the top-level configuration for the funding bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/fundingbot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by FUNDINGBOT_* environment
// variables.
type Config struct {
	Venues     map[string]VenueConfig `toml:"venues"`
	Scanner    ScannerConfig          `toml:"scanner"`
	Executor   ExecutorConfig         `toml:"executor"`
	Supervisor SupervisorConfig       `toml:"supervisor"`
	Postgres   PostgresConfig         `toml:"postgres"`
	Redis      RedisConfig            `toml:"redis"`
	Notify     NotifyConfig           `toml:"notify"`
	Mode       string                 `toml:"mode"`
	LogLevel   string                 `toml:"log_level"`
}

// VenueConfig holds one venue's endpoint, credentials and cost model. The fee
// figures are static configuration consumed by the scanner; they are never
// mutated at runtime.
type VenueConfig struct {
	Enabled    bool    `toml:"enabled"`
	BaseURL    string  `toml:"base_url"`
	APIKey     string  `toml:"api_key"`
	APISecret  string  `toml:"api_secret"`
	RateLimit  int     `toml:"rate_limit"` // requests per second, 0 = unlimited
	Fees       FeeConfig `toml:"fees"`
}

// FeeConfig is the per-venue cost model, in percent.
type FeeConfig struct {
	TakerEntryPct float64 `toml:"taker_entry_pct"`
	TakerExitPct  float64 `toml:"taker_exit_pct"`
	SlippagePct   float64 `toml:"slippage_pct"`
}

// Model converts the TOML fee block into the domain FeeModel.
func (f FeeConfig) Model() domain.FeeModel {
	return domain.FeeModel{
		TakerEntryFeePct: f.TakerEntryPct,
		TakerExitFeePct:  f.TakerExitPct,
		EstimatedSlipPct: f.SlippagePct,
	}
}

// ScannerConfig holds opportunity scan parameters.
type ScannerConfig struct {
	Interval     duration `toml:"interval"`
	MinSpreadPct float64  `toml:"min_spread_pct"`
	MinLeverage  float64  `toml:"min_leverage"`
	TopN         int      `toml:"top_n"`
	Symbols      []string `toml:"symbols"` // empty = all symbols
}

// ExecutorConfig holds dual-leg execution parameters.
type ExecutorConfig struct {
	StakeSizeUSD   float64  `toml:"stake_size_usd"`
	Leverage       float64  `toml:"leverage"`
	TakeProfitPct  float64  `toml:"take_profit_pct"` // 0 disables
	StopLossPct    float64  `toml:"stop_loss_pct"`   // 0 disables
	MaxHold        duration `toml:"max_hold"`        // 0 disables
	MaxRetries     int      `toml:"max_retries"`
	RetryBaseDelay duration `toml:"retry_base_delay"`
	RetryMaxDelay  duration `toml:"retry_max_delay"`
	AutoExecute    bool     `toml:"auto_execute"`
}

// SupervisorConfig holds monitoring cycle parameters.
type SupervisorConfig struct {
	Interval             duration `toml:"interval"`
	CloseRetries         int      `toml:"close_retries"`
	LiquidationMarginPct float64  `toml:"liquidation_margin_pct"`
}

// PostgresConfig holds PostgreSQL connection parameters for the terminal
// strategy record store.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"` // namespaces all keys, empty = "fundingbot"
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5s", "48h").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5s" or "30m".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values. These
// match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Venues: map[string]VenueConfig{},
		Scanner: ScannerConfig{
			Interval:     duration{60 * time.Second},
			MinSpreadPct: 0,
			MinLeverage:  1,
			TopN:         25,
		},
		Executor: ExecutorConfig{
			StakeSizeUSD:   100,
			Leverage:       1,
			MaxRetries:     3,
			RetryBaseDelay: duration{250 * time.Millisecond},
			RetryMaxDelay:  duration{5 * time.Second},
			AutoExecute:    false,
		},
		Supervisor: SupervisorConfig{
			Interval:             duration{5 * time.Second},
			CloseRetries:         3,
			LiquidationMarginPct: 20,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "fundingbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Notify: NotifyConfig{
			Events: []string{"strategy_created", "strategy_closing", "strategy_closed", "strategy_error", "liquidation_risk"},
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":    true,
	"trade":   true,
	"monitor": true,
	"paper":   true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, trade, monitor, paper, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Venues — scanning requires at least two enabled venues; paper mode
	// brings its own simulated venues.
	if c.Mode != "paper" {
		enabled := 0
		for name, v := range c.Venues {
			if !v.Enabled {
				continue
			}
			enabled++
			if v.BaseURL == "" {
				errs = append(errs, fmt.Sprintf("venues.%s: base_url must not be empty", name))
			}
			if v.Fees.TakerEntryPct < 0 || v.Fees.TakerExitPct < 0 || v.Fees.SlippagePct < 0 {
				errs = append(errs, fmt.Sprintf("venues.%s: fee and slippage percentages must not be negative", name))
			}
		}
		if enabled < 2 {
			errs = append(errs, fmt.Sprintf("at least two enabled venues are required, got %d", enabled))
		}
	}

	// Scanner
	if c.Scanner.Interval.Duration <= 0 {
		errs = append(errs, "scanner: interval must be positive")
	}
	if c.Scanner.TopN < 1 {
		errs = append(errs, "scanner: top_n must be >= 1")
	}
	if c.Scanner.MinLeverage < 1 {
		errs = append(errs, "scanner: min_leverage must be >= 1")
	}

	// Executor
	if c.Executor.StakeSizeUSD <= 0 {
		errs = append(errs, "executor: stake_size_usd must be > 0")
	}
	if c.Executor.Leverage < 1 {
		errs = append(errs, "executor: leverage must be >= 1")
	}
	if c.Executor.MaxRetries < 0 {
		errs = append(errs, "executor: max_retries must be >= 0")
	}
	if c.Executor.TakeProfitPct < 0 {
		errs = append(errs, "executor: take_profit_pct must be >= 0")
	}
	if c.Executor.StopLossPct < 0 {
		errs = append(errs, "executor: stop_loss_pct must be >= 0")
	}

	// Supervisor
	if c.Supervisor.Interval.Duration <= 0 {
		errs = append(errs, "supervisor: interval must be positive")
	}
	if c.Supervisor.CloseRetries < 0 {
		errs = append(errs, "supervisor: close_retries must be >= 0")
	}
	if c.Supervisor.LiquidationMarginPct < 0 || c.Supervisor.LiquidationMarginPct > 100 {
		errs = append(errs, "supervisor: liquidation_margin_pct must be 0-100")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// FeeModels returns the per-venue fee models for all enabled venues.
func (c *Config) FeeModels() map[string]domain.FeeModel {
	models := make(map[string]domain.FeeModel, len(c.Venues))
	for name, v := range c.Venues {
		if v.Enabled {
			models[name] = v.Fees.Model()
		}
	}
	return models
}
