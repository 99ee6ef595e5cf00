// Package app provides the top-level application lifecycle for the trading
// bot. It wires together the exchange gateway, the trade ledger, the position
// coordinator, the sentiment monitor, and notifications, and exposes the
// operations the CLI commands run.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Mmauz1001/trump-trader/internal/config"
	"github.com/Mmauz1001/trump-trader/internal/domain"
	"github.com/Mmauz1001/trump-trader/internal/monitor"
	"github.com/Mmauz1001/trump-trader/internal/notify"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	sources []monitor.Source
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// RegisterSource adds a sentiment source to be polled in Run.
func (a *App) RegisterSource(src monitor.Source) {
	a.sources = append(a.sources, src)
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) wire(ctx context.Context) (*Dependencies, error) {
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	return deps, nil
}

// Run is the long-running trading mode: reconcile the ledger against the
// exchange, report the account state, then poll sentiment sources and trade
// on their signals until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting trading bot",
		slog.String("symbol", a.cfg.Trading.Symbol),
		slog.Bool("dry_run", a.cfg.Trading.DryRun),
		slog.Bool("testnet", a.cfg.Binance.Testnet),
	)

	deps, err := a.wire(ctx)
	if err != nil {
		return err
	}

	// Exchange truth first: refuse to trade on top of an inconsistent state.
	if err := deps.Coordinator.Reconcile(ctx); err != nil {
		if errors.Is(err, domain.ErrReconciliationConflict) {
			title, body := notify.ErrorMessage("Startup reconciliation", err)
			_ = deps.Notifier.NotifyAll(ctx, title, body)
		}
		return fmt.Errorf("app: startup reconcile: %w", err)
	}

	a.sendStartupReport(ctx, deps)

	orch := NewOrchestrator(a.cfg, deps, a.sources, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := orch.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return err
	})

	err = g.Wait()
	if err != nil {
		a.logger.ErrorContext(ctx, "trading bot stopped with error", slog.String("error", err.Error()))
		return err
	}
	a.logger.Info("trading bot stopped cleanly")
	return nil
}

func (a *App) sendStartupReport(ctx context.Context, deps *Dependencies) {
	balance, err := deps.Exchange.AccountBalance(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "startup report: balance unavailable", slog.String("error", err.Error()))
	}

	var open *domain.Position
	if trade, err := deps.TradeStore.GetOpen(ctx); err == nil {
		open = &trade
	}

	closedToday, err := deps.TradeStore.ListClosedSince(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		a.logger.WarnContext(ctx, "startup report: history unavailable", slog.String("error", err.Error()))
	}

	title, body := notify.StartupMessage(balance, open, a.cfg.Trading.DryRun, closedToday)
	if err := deps.Notifier.Notify(ctx, notify.EventStartup, title, body); err != nil {
		a.logger.WarnContext(ctx, "startup notification failed", slog.String("error", err.Error()))
	}
}

// Status prints the account balance, the open ledger position, and the live
// exchange view.
func (a *App) Status(ctx context.Context) error {
	deps, err := a.wire(ctx)
	if err != nil {
		return err
	}

	balance, err := deps.Exchange.AccountBalance(ctx)
	if err != nil {
		return fmt.Errorf("app: account balance: %w", err)
	}
	fmt.Printf("Balance: %.2f USDT total, %.2f available, %+.2f unrealized\n",
		balance.TotalBalance, balance.AvailableBalance, balance.UnrealizedPnL)

	if sum, err := deps.Exchange.IncomeSummarySince(ctx, time.Now().UTC().Add(-24*time.Hour)); err == nil {
		fmt.Printf("Last 24h on exchange: %+.2f realized, %+.2f commission, %+.2f funding (net %+.2f)\n",
			sum.RealizedPnL, sum.Commission, sum.FundingFees, sum.Total())
	}

	snap, err := deps.Coordinator.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("app: position snapshot: %w", err)
	}

	_, body := notify.PositionStatusMessage(snap)
	if snap.Trade == nil {
		fmt.Println("Position: none")
		return nil
	}
	fmt.Printf("Position: %s %s (trade #%d)\n", snap.Trade.Side, snap.Trade.Symbol, snap.Trade.ID)
	fmt.Println(body)
	return nil
}

// CloseOpen manually closes the open position, if any.
func (a *App) CloseOpen(ctx context.Context) error {
	deps, err := a.wire(ctx)
	if err != nil {
		return err
	}

	res, err := deps.Coordinator.CloseOpenPosition(ctx, domain.CloseReasonManual)
	if err != nil {
		return fmt.Errorf("app: close position: %w", err)
	}
	if res.AlreadyClosed {
		fmt.Println("No open position.")
		return nil
	}

	p := res.Position
	fmt.Printf("Closed %s %s: %+.2f USDT (%+.2f%%)\n",
		p.Side, p.Symbol, deref(p.PnLUSD), deref(p.PnLPercent))
	if !res.UsedExchangePnL {
		fmt.Println("PnL estimated from price delta; exchange income was not yet available.")
	}
	return nil
}

// Submit injects a sentiment signal directly into the coordinator, bypassing
// the pollers. Used by the signal CLI command and by tests against a running
// dry-run setup.
func (a *App) Submit(ctx context.Context, score int, ref string) error {
	deps, err := a.wire(ctx)
	if err != nil {
		return err
	}

	out, err := deps.Coordinator.OnSignal(ctx, domain.SentimentSignal{
		Score:      score,
		SourceRef:  ref,
		SourceName: "manual",
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("app: submit signal: %w", err)
	}
	if !out.Traded {
		fmt.Printf("No trade: %s\n", out.Reason)
		return nil
	}
	p := out.Position
	fmt.Printf("Opened %s %s: %v @ %.2f, %dx leverage (trade #%d)\n",
		p.Side, p.Symbol, p.Quantity, p.EntryPrice, p.Leverage, p.ID)
	return nil
}

// Test checks connectivity to every external collaborator and reports each
// result. It returns an error if any check failed.
func (a *App) Test(ctx context.Context) error {
	deps, err := a.wire(ctx)
	if err != nil {
		// Wiring already talks to postgres; report that as the failed check.
		fmt.Printf("database: FAILED (%v)\n", err)
		return err
	}

	failed := false

	if err := deps.pgPing(ctx); err != nil {
		fmt.Printf("database: FAILED (%v)\n", err)
		failed = true
	} else {
		fmt.Println("database: ok")
	}

	if err := deps.Exchange.Ping(ctx); err != nil {
		fmt.Printf("binance: FAILED (%v)\n", err)
		failed = true
	} else if _, err := deps.Exchange.CurrentPrice(ctx, a.cfg.Trading.Symbol); err != nil {
		fmt.Printf("binance: reachable, but no price for %s (%v)\n", a.cfg.Trading.Symbol, err)
		failed = true
	} else {
		fmt.Println("binance: ok")
	}

	if !a.cfg.Trading.DryRun {
		if _, err := deps.Exchange.AccountBalance(ctx); err != nil {
			fmt.Printf("binance auth: FAILED (%v)\n", err)
			failed = true
		} else {
			fmt.Println("binance auth: ok")
		}
	}

	if a.cfg.Telegram.Enabled {
		if err := deps.Notifier.NotifyAll(ctx, "Connectivity test", "The trading bot can reach Telegram."); err != nil {
			fmt.Printf("telegram: FAILED (%v)\n", err)
			failed = true
		} else {
			fmt.Println("telegram: ok")
		}
	}

	if failed {
		return errors.New("app: one or more connectivity checks failed")
	}
	return nil
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
