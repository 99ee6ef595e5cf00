package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRUMPTRADER_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRUMPTRADER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Binance ──
	setStr(&cfg.Binance.ApiKey, "TRUMPTRADER_BINANCE_API_KEY")
	setStr(&cfg.Binance.ApiSecret, "TRUMPTRADER_BINANCE_API_SECRET")
	setBool(&cfg.Binance.Testnet, "TRUMPTRADER_BINANCE_TESTNET")
	setStr(&cfg.Binance.BaseURL, "TRUMPTRADER_BINANCE_BASE_URL")

	// ── Trading ──
	setStr(&cfg.Trading.Symbol, "TRUMPTRADER_TRADING_SYMBOL")
	setBool(&cfg.Trading.DryRun, "TRUMPTRADER_TRADING_DRY_RUN")
	setFloat(&cfg.Trading.UtilizationFactor, "TRUMPTRADER_TRADING_UTILIZATION_FACTOR")
	setInt(&cfg.Trading.MaxLeverage, "TRUMPTRADER_TRADING_MAX_LEVERAGE")
	setFloat(&cfg.Trading.MaxStopLossPct, "TRUMPTRADER_TRADING_MAX_STOP_LOSS_PCT")
	setFloat(&cfg.Trading.MaxCallbackRate, "TRUMPTRADER_TRADING_MAX_CALLBACK_RATE")

	// ── Database ──
	setStr(&cfg.Database.DSN, "TRUMPTRADER_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "TRUMPTRADER_DATABASE_HOST")
	setInt(&cfg.Database.Port, "TRUMPTRADER_DATABASE_PORT")
	setStr(&cfg.Database.Database, "TRUMPTRADER_DATABASE_NAME")
	setStr(&cfg.Database.User, "TRUMPTRADER_DATABASE_USER")
	setStr(&cfg.Database.Password, "TRUMPTRADER_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "TRUMPTRADER_DATABASE_SSLMODE")
	setBool(&cfg.Database.RunMigrations, "TRUMPTRADER_DATABASE_RUN_MIGRATIONS")

	// ── Telegram ──
	setBool(&cfg.Telegram.Enabled, "TRUMPTRADER_TELEGRAM_ENABLED")
	setStr(&cfg.Telegram.BotToken, "TRUMPTRADER_TELEGRAM_BOT_TOKEN")
	setStr(&cfg.Telegram.ChatID, "TRUMPTRADER_TELEGRAM_CHAT_ID")

	// ── Monitor ──
	setInt(&cfg.Monitor.PollIntervalSec, "TRUMPTRADER_MONITOR_POLL_INTERVAL_SEC")

	setStr(&cfg.LogLevel, "TRUMPTRADER_LOG_LEVEL")
}

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

func setFloat(dst *float64, key string) {
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
