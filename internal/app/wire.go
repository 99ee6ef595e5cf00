package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mmauz1001/trump-trader/internal/config"
	"github.com/Mmauz1001/trump-trader/internal/coordinator"
	"github.com/Mmauz1001/trump-trader/internal/domain"
	"github.com/Mmauz1001/trump-trader/internal/monitor"
	"github.com/Mmauz1001/trump-trader/internal/notify"
	"github.com/Mmauz1001/trump-trader/internal/platform/binance"
	"github.com/Mmauz1001/trump-trader/internal/store/postgres"
)

// Dependencies bundles everything the application commands need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Exchange    *binance.Client
	TradeStore  domain.TradeStore
	Notifier    *notify.Notifier
	Coordinator *coordinator.Coordinator

	pgPing func(ctx context.Context) error
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL trade ledger ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	deps.TradeStore = postgres.NewTradeStore(pgClient.Pool())
	deps.pgPing = pgClient.Pool().Ping

	// --- Binance futures gateway ---
	deps.Exchange = binance.NewClient(binance.Config{
		ApiKey:            cfg.Binance.ApiKey,
		ApiSecret:         cfg.Binance.ApiSecret,
		BaseURL:           cfg.Binance.BaseURL,
		Testnet:           cfg.Binance.Testnet,
		RecvWindowMs:      cfg.Binance.RecvWindowMs,
		Timeout:           time.Duration(cfg.Binance.TimeoutSec) * time.Second,
		MaxRetries:        cfg.Binance.MaxRetries,
		PricePrecision:    cfg.Trading.PricePrecision,
		QuantityPrecision: cfg.Trading.QuantityPrecision,
	})

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Telegram.Enabled {
		senders = append(senders, notify.NewTelegramSender(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Telegram.Events, logger)

	// --- Position coordinator ---
	deps.Coordinator = coordinator.New(
		cfg.Trading,
		deps.Exchange,
		deps.TradeStore,
		notify.NewEvents(deps.Notifier),
		logger,
	)

	return deps, cleanup, nil
}

// NewOrchestrator builds the signal-intake loop on top of wired dependencies.
// Sources are registered by the caller; an empty list still leaves the Submit
// path usable.
func NewOrchestrator(cfg *config.Config, deps *Dependencies, sources []monitor.Source, logger *slog.Logger) *monitor.Orchestrator {
	handler := func(ctx context.Context, sig domain.SentimentSignal) error {
		_, err := deps.Coordinator.OnSignal(ctx, sig)
		return err
	}
	return monitor.NewOrchestrator(
		sources,
		handler,
		cfg.Monitor.PollInterval(),
		cfg.Monitor.DedupTTL(),
		cfg.Monitor.SignalBuffer,
		logger,
	)
}
