// Package config defines the top-level configuration for the trading bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by TRUMPTRADER_* environment
// variables.
type Config struct {
	Binance  BinanceConfig  `toml:"binance"`
	Trading  TradingConfig  `toml:"trading"`
	Database DatabaseConfig `toml:"database"`
	Telegram TelegramConfig `toml:"telegram"`
	Monitor  MonitorConfig  `toml:"monitor"`
	LogLevel string         `toml:"log_level"`
}

// BinanceConfig holds Binance USDT-M futures API credentials and endpoints.
type BinanceConfig struct {
	ApiKey       string `toml:"api_key"`
	ApiSecret    string `toml:"api_secret"`
	Testnet      bool   `toml:"testnet"`
	BaseURL      string `toml:"base_url"`
	RecvWindowMs int    `toml:"recv_window_ms"`
	TimeoutSec   int    `toml:"timeout_sec"`
	MaxRetries   int    `toml:"max_retries"`
}

// TradingConfig holds the instrument, sizing, and risk parameters. The three
// "max" ceilings are hard validation bounds checked at load time and enforced
// again inside the coordinator's sizing logic.
type TradingConfig struct {
	Symbol            string  `toml:"symbol"`
	DryRun            bool    `toml:"dry_run"`
	UtilizationFactor float64 `toml:"utilization_factor"`
	MaxLeverage       int     `toml:"max_leverage"`
	MaxStopLossPct    float64 `toml:"max_stop_loss_pct"`
	MaxCallbackRate   float64 `toml:"max_callback_rate"`
	PricePrecision    int     `toml:"price_precision"`
	QuantityPrecision int     `toml:"quantity_precision"`
	SettleWaitSec     int     `toml:"settle_wait_sec"`
}

// SettleWait is how long the coordinator waits after flattening before
// querying realized PnL, giving the exchange ledger time to register the fill.
func (t TradingConfig) SettleWait() time.Duration {
	return time.Duration(t.SettleWaitSec) * time.Second
}

// DatabaseConfig holds PostgreSQL connection parameters for the trade ledger.
type DatabaseConfig struct {
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

// TelegramConfig holds the notification channel credentials.
type TelegramConfig struct {
	Enabled  bool     `toml:"enabled"`
	BotToken string   `toml:"bot_token"`
	ChatID   string   `toml:"chat_id"`
	Events   []string `toml:"events"`
}

// MonitorConfig holds the sentiment poller parameters.
type MonitorConfig struct {
	PollIntervalSec int `toml:"poll_interval_sec"`
	DedupTTLMin     int `toml:"dedup_ttl_min"`
	SignalBuffer    int `toml:"signal_buffer"`
}

// PollInterval returns the poll interval as a duration.
func (m MonitorConfig) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalSec) * time.Second
}

// DedupTTL returns the dedup window as a duration.
func (m MonitorConfig) DedupTTL() time.Duration {
	return time.Duration(m.DedupTTLMin) * time.Minute
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Defaults returns the built-in configuration a TOML file is merged over.
func Defaults() Config {
	return Config{
		Binance: BinanceConfig{
			BaseURL:      "https://fapi.binance.com",
			Testnet:      true,
			RecvWindowMs: 5000,
			TimeoutSec:   15,
			MaxRetries:   3,
		},
		Trading: TradingConfig{
			Symbol:            "BTCUSDT",
			DryRun:            true,
			UtilizationFactor: 0.95,
			MaxLeverage:       50,
			MaxStopLossPct:    1.0,
			MaxCallbackRate:   2.0,
			PricePrecision:    1,
			QuantityPrecision: 3,
			SettleWaitSec:     1,
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "trump_trader",
			User:          "trump_trader",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Telegram: TelegramConfig{
			Enabled: false,
		},
		Monitor: MonitorConfig{
			PollIntervalSec: 30,
			DedupTTLMin:     60,
			SignalBuffer:    16,
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for fatal errors. Risk-bound violations
// are configuration errors: the process must not run with them.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Binance — credentials are required unless every order is simulated.
	if !c.Trading.DryRun {
		if c.Binance.ApiKey == "" || c.Binance.ApiSecret == "" {
			errs = append(errs, "binance: api_key and api_secret are required when trading.dry_run is false")
		}
	}
	if c.Binance.BaseURL == "" {
		errs = append(errs, "binance: base_url must not be empty")
	}
	if c.Binance.RecvWindowMs <= 0 {
		errs = append(errs, "binance: recv_window_ms must be positive")
	}
	if c.Binance.TimeoutSec <= 0 {
		errs = append(errs, "binance: timeout_sec must be positive")
	}
	if c.Binance.MaxRetries < 0 {
		errs = append(errs, "binance: max_retries must not be negative")
	}

	// Trading — the hard risk ceilings.
	if c.Trading.Symbol == "" {
		errs = append(errs, "trading: symbol must not be empty")
	}
	if c.Trading.UtilizationFactor <= 0 || c.Trading.UtilizationFactor > 1 {
		errs = append(errs, fmt.Sprintf("trading: utilization_factor must be in (0,1], got %v", c.Trading.UtilizationFactor))
	}
	if c.Trading.MaxLeverage < 1 || c.Trading.MaxLeverage > 50 {
		errs = append(errs, fmt.Sprintf("trading: max_leverage must be in [1,50], got %d", c.Trading.MaxLeverage))
	}
	if c.Trading.MaxStopLossPct <= 0 || c.Trading.MaxStopLossPct > 1.0 {
		errs = append(errs, fmt.Sprintf("trading: max_stop_loss_pct must be in (0,1], got %v", c.Trading.MaxStopLossPct))
	}
	if c.Trading.MaxCallbackRate <= 0 || c.Trading.MaxCallbackRate > 2.0 {
		errs = append(errs, fmt.Sprintf("trading: max_callback_rate must be in (0,2], got %v", c.Trading.MaxCallbackRate))
	}
	if c.Trading.PricePrecision < 0 || c.Trading.QuantityPrecision < 0 {
		errs = append(errs, "trading: precisions must not be negative")
	}
	if c.Trading.SettleWaitSec < 0 {
		errs = append(errs, "trading: settle_wait_sec must not be negative")
	}

	// Database — either a DSN or host parameters.
	if c.Database.DSN == "" && c.Database.Host == "" {
		errs = append(errs, "database: either dsn or host must be set")
	}

	// Telegram — credentials must be present when enabled.
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" || c.Telegram.ChatID == "" {
			errs = append(errs, "telegram: bot_token and chat_id are required when enabled")
		}
	}

	// Monitor
	if c.Monitor.PollIntervalSec <= 0 {
		errs = append(errs, "monitor: poll_interval_sec must be positive")
	}
	if c.Monitor.SignalBuffer <= 0 {
		errs = append(errs, "monitor: signal_buffer must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
