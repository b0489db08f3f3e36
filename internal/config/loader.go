package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies FUNDINGBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FUNDINGBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file. Venue credentials use FUNDINGBOT_VENUE_<NAME>_API_KEY and
// FUNDINGBOT_VENUE_<NAME>_API_SECRET.
func applyEnvOverrides(cfg *Config) {
	// ── Venues ──
	for name, v := range cfg.Venues {
		prefix := "FUNDINGBOT_VENUE_" + strings.ToUpper(name) + "_"
		setStr(&v.BaseURL, prefix+"BASE_URL")
		setStr(&v.APIKey, prefix+"API_KEY")
		setStr(&v.APISecret, prefix+"API_SECRET")
		cfg.Venues[name] = v
	}

	// ── Scanner ──
	setDuration(&cfg.Scanner.Interval, "FUNDINGBOT_SCANNER_INTERVAL")
	setFloat64(&cfg.Scanner.MinSpreadPct, "FUNDINGBOT_SCANNER_MIN_SPREAD_PCT")
	setFloat64(&cfg.Scanner.MinLeverage, "FUNDINGBOT_SCANNER_MIN_LEVERAGE")
	setInt(&cfg.Scanner.TopN, "FUNDINGBOT_SCANNER_TOP_N")
	setStringSlice(&cfg.Scanner.Symbols, "FUNDINGBOT_SCANNER_SYMBOLS")

	// ── Executor ──
	setFloat64(&cfg.Executor.StakeSizeUSD, "FUNDINGBOT_EXECUTOR_STAKE_SIZE_USD")
	setFloat64(&cfg.Executor.Leverage, "FUNDINGBOT_EXECUTOR_LEVERAGE")
	setFloat64(&cfg.Executor.TakeProfitPct, "FUNDINGBOT_EXECUTOR_TAKE_PROFIT_PCT")
	setFloat64(&cfg.Executor.StopLossPct, "FUNDINGBOT_EXECUTOR_STOP_LOSS_PCT")
	setDuration(&cfg.Executor.MaxHold, "FUNDINGBOT_EXECUTOR_MAX_HOLD")
	setInt(&cfg.Executor.MaxRetries, "FUNDINGBOT_EXECUTOR_MAX_RETRIES")
	setBool(&cfg.Executor.AutoExecute, "FUNDINGBOT_EXECUTOR_AUTO_EXECUTE")

	// ── Supervisor ──
	setDuration(&cfg.Supervisor.Interval, "FUNDINGBOT_SUPERVISOR_INTERVAL")
	setInt(&cfg.Supervisor.CloseRetries, "FUNDINGBOT_SUPERVISOR_CLOSE_RETRIES")
	setFloat64(&cfg.Supervisor.LiquidationMarginPct, "FUNDINGBOT_SUPERVISOR_LIQUIDATION_MARGIN_PCT")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "FUNDINGBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "FUNDINGBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "FUNDINGBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FUNDINGBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FUNDINGBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FUNDINGBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FUNDINGBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FUNDINGBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "FUNDINGBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FUNDINGBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FUNDINGBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "FUNDINGBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "FUNDINGBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FUNDINGBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FUNDINGBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FUNDINGBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FUNDINGBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FUNDINGBOT_REDIS_TLS_ENABLED")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FUNDINGBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FUNDINGBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FUNDINGBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FUNDINGBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "FUNDINGBOT_MODE")
	setStr(&cfg.LogLevel, "FUNDINGBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
