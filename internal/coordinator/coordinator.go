// Package coordinator owns the position lifecycle: it decides whether a
// sentiment score warrants a trade, sizes it, sequences the multi-order
// execution, and later closes and reconciles the position against
// exchange-reported truth. Exactly one execute or close sequence may run at a
// time; a second caller is rejected, never queued.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Mmauz1001/trump-trader/internal/config"
	"github.com/Mmauz1001/trump-trader/internal/domain"
)

// State is the coordinator's lifecycle phase.
type State string

const (
	StateIdle     State = "idle"
	StateEntering State = "entering"
	StateOpen     State = "open"
	StateClosing  State = "closing"
)

// Exchange is the gateway surface the coordinator drives. Implemented by the
// binance client; faked in tests.
type Exchange interface {
	AccountBalance(ctx context.Context) (domain.AccountBalance, error)
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
	OpenPosition(ctx context.Context, symbol string) (*domain.ExchangePosition, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, qty float64) (string, error)
	PlaceStopMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, qty, stopPrice float64) (string, error)
	PlaceTrailingStopOrder(ctx context.Context, symbol string, side domain.OrderSide, qty, callbackRate float64) (string, error)
	CloseAllPositions(ctx context.Context, symbol string) error
	CancelAllOpenOrders(ctx context.Context, symbol string) error
	RealizedPnLSince(ctx context.Context, symbol string, since time.Time) (float64, bool, error)
	FundingFeesSince(ctx context.Context, symbol string, since time.Time) (float64, error)
	OrderFees(ctx context.Context, symbol, orderID string) (float64, error)
	RestingStopOrders(ctx context.Context, symbol string) ([]domain.RestingOrder, error)
	RoundQuantity(qty float64) float64
	RoundPrice(price float64) float64
}

// EventSink receives position lifecycle events for rendering. Plain data in,
// nothing expected back.
type EventSink interface {
	TradeOpened(ctx context.Context, p domain.Position)
	TradeClosed(ctx context.Context, p domain.Position)
	Alert(ctx context.Context, title, message string)
}

// Outcome reports what a sentiment signal led to.
type Outcome struct {
	Traded   bool
	Reason   string
	Position *domain.Position
}

// CloseResult reports how a close request ended. AlreadyClosed distinguishes
// the idempotent no-op from a real close; UsedExchangePnL records whether the
// PnL came from exchange income history or the price-delta fallback.
type CloseResult struct {
	Position        domain.Position
	AlreadyClosed   bool
	UsedExchangePnL bool
}

// Coordinator is the single owner of position state.
type Coordinator struct {
	cfg      config.TradingConfig
	exchange Exchange
	trades   domain.TradeStore
	events   EventSink
	logger   *slog.Logger

	mu    sync.Mutex
	state State

	now func() time.Time
}

// New creates a Coordinator. events may be nil when no notification channel
// is configured.
func New(cfg config.TradingConfig, exchange Exchange, trades domain.TradeStore, events EventSink, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		exchange: exchange,
		trades:   trades,
		events:   events,
		logger:   logger.With(slog.String("component", "coordinator")),
		state:    StateIdle,
		now:      time.Now,
	}
}

// State returns the current lifecycle phase.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.state = s
}

// OnSignal is the serialized entry point for sentiment signals. A signal
// arriving while an execute or close sequence is in flight is rejected with
// ErrAlreadyTrading, never queued or interleaved.
func (c *Coordinator) OnSignal(ctx context.Context, sig domain.SentimentSignal) (Outcome, error) {
	trade, reason := ShouldTrade(sig.Score)
	if !trade {
		c.logger.InfoContext(ctx, "signal ignored",
			slog.Int("score", sig.Score),
			slog.String("reason", reason),
		)
		return Outcome{Reason: reason}, nil
	}

	if !c.mu.TryLock() {
		return Outcome{}, domain.ErrAlreadyTrading
	}
	defer c.mu.Unlock()

	// One position at a time: a signal landing on an open position is a
	// no-op, not a pyramid or a flip.
	if _, err := c.trades.GetOpen(ctx); err == nil {
		c.logger.InfoContext(ctx, "position already open, skipping signal",
			slog.Int("score", sig.Score),
		)
		return Outcome{Reason: "position already open"}, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return Outcome{}, fmt.Errorf("coordinator: check open position: %w", err)
	}

	params, err := c.prepareTrade(ctx, sig.Score)
	if err != nil {
		return Outcome{}, err
	}

	pos, err := c.executeTrade(ctx, params, sig.SourceRef)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{Traded: true, Reason: reason, Position: &pos}, nil
}

// PrepareTrade sizes a trade for the given score against the current account
// and market state. It has no side effects.
func (c *Coordinator) PrepareTrade(ctx context.Context, score int) (domain.TradeParams, error) {
	return c.prepareTrade(ctx, score)
}

func (c *Coordinator) prepareTrade(ctx context.Context, score int) (domain.TradeParams, error) {
	leverage, err := LeverageForScore(score)
	if err != nil {
		return domain.TradeParams{}, fmt.Errorf("coordinator: %w", err)
	}
	if leverage == 0 {
		return domain.TradeParams{}, domain.ErrNoTradeSignal
	}
	// Defense in depth: the table is a constant today but the ceiling holds
	// even if it is ever edited.
	if c.cfg.MaxLeverage > 0 && leverage > c.cfg.MaxLeverage {
		leverage = c.cfg.MaxLeverage
	}

	side, err := SideForScore(score)
	if err != nil {
		return domain.TradeParams{}, fmt.Errorf("coordinator: %w", err)
	}

	callback := CallbackRateForLeverage(leverage)
	if c.cfg.MaxCallbackRate > 0 && callback > c.cfg.MaxCallbackRate {
		callback = c.cfg.MaxCallbackRate
	}

	balance, err := c.exchange.AccountBalance(ctx)
	if err != nil {
		return domain.TradeParams{}, fmt.Errorf("coordinator: account balance: %w", err)
	}

	price, err := c.exchange.CurrentPrice(ctx, c.cfg.Symbol)
	if err != nil {
		return domain.TradeParams{}, err
	}

	// Size from usable balance: the utilization factor reserves a buffer for
	// fees and margin requirements.
	usable := balance.AvailableBalance * c.cfg.UtilizationFactor
	quantity := c.exchange.RoundQuantity(usable * float64(leverage) / price)
	if quantity <= 0 {
		return domain.TradeParams{}, domain.ErrInsufficientBalance
	}

	stopLoss := c.exchange.RoundPrice(stopLossFor(side, price, c.cfg.MaxStopLossPct))

	params := domain.TradeParams{
		Side:           side,
		Leverage:       leverage,
		Quantity:       quantity,
		ReferencePrice: price,
		NotionalValue:  quantity * price,
		StopLossPrice:  stopLoss,
		CallbackRate:   callback,
		SentimentScore: score,
	}

	c.logger.InfoContext(ctx, "trade prepared",
		slog.String("side", string(side)),
		slog.Int("leverage", leverage),
		slog.Float64("quantity", quantity),
		slog.Float64("price", price),
		slog.Float64("stop_loss", stopLoss),
		slog.Float64("callback_rate", callback),
	)

	return params, nil
}

// ExecuteTrade runs the order sequence for prepared parameters. It takes the
// exclusive guard itself; use OnSignal for the combined prepare+execute path.
func (c *Coordinator) ExecuteTrade(ctx context.Context, params domain.TradeParams, signalRef string) (domain.Position, error) {
	if !c.mu.TryLock() {
		return domain.Position{}, domain.ErrAlreadyTrading
	}
	defer c.mu.Unlock()
	return c.executeTrade(ctx, params, signalRef)
}

// executeTrade sequences the execution: cancel stale orders, flatten drift,
// set leverage, enter, attach the two protective orders, persist. The caller
// must hold the guard.
func (c *Coordinator) executeTrade(ctx context.Context, params domain.TradeParams, signalRef string) (domain.Position, error) {
	c.setState(StateEntering)
	defer func() {
		if c.state == StateEntering {
			c.setState(StateIdle)
		}
	}()

	if c.cfg.DryRun {
		return c.simulateTrade(ctx, params, signalRef)
	}

	// Steps 1-2: idempotent safety net against drift. Cancel resting orders
	// first so a stale stop cannot fire against the flatten.
	if err := c.exchange.CancelAllOpenOrders(ctx, c.cfg.Symbol); err != nil {
		return domain.Position{}, &domain.ExecStepError{Step: domain.StepCancelOrders, Err: err}
	}
	if err := c.exchange.CloseAllPositions(ctx, c.cfg.Symbol); err != nil {
		return domain.Position{}, &domain.ExecStepError{Step: domain.StepFlatten, Err: err}
	}

	// Step 3: leverage.
	if err := c.exchange.SetLeverage(ctx, c.cfg.Symbol, params.Leverage); err != nil {
		return domain.Position{}, &domain.ExecStepError{Step: domain.StepSetLeverage, Err: err}
	}

	// Step 4: entry.
	entryID, err := c.exchange.PlaceMarketOrder(ctx, c.cfg.Symbol, params.Side.EntryOrderSide(), params.Quantity)
	if err != nil {
		return domain.Position{}, &domain.ExecStepError{Step: domain.StepEntryOrder, Err: err}
	}

	// Steps 5-6: protective orders, opposite side, reduce-only. The entry is
	// already live: a failed attach degrades protection but must not roll
	// the position back, so it is alerted and recorded as missing instead of
	// aborting.
	exitSide := params.Side.ExitOrderSide()

	var stopLossID, trailingID *string
	if id, err := c.exchange.PlaceStopMarketOrder(ctx, c.cfg.Symbol, exitSide, params.Quantity, params.StopLossPrice); err != nil {
		c.protectionDegraded(ctx, domain.StepStopLoss, err)
	} else {
		stopLossID = &id
	}
	if id, err := c.exchange.PlaceTrailingStopOrder(ctx, c.cfg.Symbol, exitSide, params.Quantity, params.CallbackRate); err != nil {
		c.protectionDegraded(ctx, domain.StepTrailingStop, err)
	} else {
		trailingID = &id
	}

	pos := c.newPosition(params, signalRef)
	pos.EntryOrderID = &entryID
	pos.StopLossOrderID = stopLossID
	pos.TrailingStopOrderID = trailingID

	id, err := c.trades.Insert(ctx, pos)
	if err != nil {
		// The position is live on the exchange but has no ledger row. This
		// is the severest persistence failure; surface it loudly.
		return domain.Position{}, &domain.ExecStepError{Step: domain.StepPersist, Err: err}
	}
	pos.ID = id

	c.setState(StateOpen)
	c.logger.InfoContext(ctx, "trade executed",
		slog.Int64("trade_id", pos.ID),
		slog.String("side", string(pos.Side)),
		slog.Int("leverage", pos.Leverage),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Float64("quantity", pos.Quantity),
	)

	if c.events != nil {
		c.events.TradeOpened(ctx, pos)
	}
	return pos, nil
}

// simulateTrade persists a dry-run position with synthetic order ids and a
// simulated fill at the quoted price, exercising the full decision/ledger
// pipeline without exchange writes.
func (c *Coordinator) simulateTrade(ctx context.Context, params domain.TradeParams, signalRef string) (domain.Position, error) {
	pos := c.newPosition(params, signalRef)
	entryID := syntheticOrderID("entry")
	stopID := syntheticOrderID("stop")
	trailID := syntheticOrderID("trail")
	pos.EntryOrderID = &entryID
	pos.StopLossOrderID = &stopID
	pos.TrailingStopOrderID = &trailID

	id, err := c.trades.Insert(ctx, pos)
	if err != nil {
		return domain.Position{}, &domain.ExecStepError{Step: domain.StepPersist, Err: err}
	}
	pos.ID = id

	c.setState(StateOpen)
	c.logger.InfoContext(ctx, "dry run: trade simulated",
		slog.Int64("trade_id", pos.ID),
		slog.String("side", string(pos.Side)),
		slog.Int("leverage", pos.Leverage),
	)

	if c.events != nil {
		c.events.TradeOpened(ctx, pos)
	}
	return pos, nil
}

func (c *Coordinator) newPosition(params domain.TradeParams, signalRef string) domain.Position {
	return domain.Position{
		Symbol:         c.cfg.Symbol,
		Side:           params.Side,
		Leverage:       params.Leverage,
		EntryPrice:     params.ReferencePrice,
		Quantity:       params.Quantity,
		NotionalValue:  params.NotionalValue,
		StopLossPrice:  params.StopLossPrice,
		CallbackRate:   params.CallbackRate,
		SentimentScore: params.SentimentScore,
		SignalRef:      signalRef,
		IsOpen:         true,
		OpenedAt:       c.now().UTC(),
	}
}

func (c *Coordinator) protectionDegraded(ctx context.Context, step domain.ExecStep, err error) {
	c.logger.ErrorContext(ctx, "protective order failed to attach, position is under-protected",
		slog.String("step", string(step)),
		slog.String("error", err.Error()),
	)
	if c.events != nil {
		c.events.Alert(ctx, "Protection degraded",
			fmt.Sprintf("%s failed to attach: %v. Position is live without it.", step, err))
	}
}

// ClosePosition closes the position with the given ledger id. Closing an
// already-closed position is an idempotent success that makes no further
// ledger writes.
func (c *Coordinator) ClosePosition(ctx context.Context, id int64, reason string) (CloseResult, error) {
	if !c.mu.TryLock() {
		return CloseResult{}, domain.ErrAlreadyTrading
	}
	defer c.mu.Unlock()
	return c.closePosition(ctx, id, reason)
}

// CloseOpenPosition closes whatever position is currently open. No open
// position is an idempotent success.
func (c *Coordinator) CloseOpenPosition(ctx context.Context, reason string) (CloseResult, error) {
	if !c.mu.TryLock() {
		return CloseResult{}, domain.ErrAlreadyTrading
	}
	defer c.mu.Unlock()

	trade, err := c.trades.GetOpen(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return CloseResult{AlreadyClosed: true}, nil
		}
		return CloseResult{}, fmt.Errorf("coordinator: get open position: %w", err)
	}
	return c.closePosition(ctx, trade.ID, reason)
}

func (c *Coordinator) closePosition(ctx context.Context, id int64, reason string) (CloseResult, error) {
	trade, err := c.trades.GetByID(ctx, id)
	if err != nil {
		return CloseResult{}, fmt.Errorf("coordinator: get position %d: %w", id, err)
	}
	if !trade.IsOpen {
		c.logger.InfoContext(ctx, "position already closed", slog.Int64("trade_id", id))
		return CloseResult{Position: trade, AlreadyClosed: true}, nil
	}

	c.setState(StateClosing)
	defer c.setState(StateIdle)

	if c.cfg.DryRun {
		return c.simulateClose(ctx, trade, reason)
	}

	// Snapshot a fallback exit price before flattening.
	exitPrice := trade.EntryPrice
	if pos, err := c.exchange.OpenPosition(ctx, c.cfg.Symbol); err == nil && pos != nil {
		exitPrice = pos.MarkPrice
	} else if price, err := c.exchange.CurrentPrice(ctx, c.cfg.Symbol); err == nil {
		exitPrice = price
	}

	// Remove the now-irrelevant stop and trailing orders before flattening,
	// so they cannot double-close against the flatten. A cancel failure is
	// logged but does not block the close.
	if err := c.exchange.CancelAllOpenOrders(ctx, c.cfg.Symbol); err != nil {
		c.logger.WarnContext(ctx, "cancel orders before close failed, continuing",
			slog.String("error", err.Error()),
		)
	}

	if err := c.exchange.CloseAllPositions(ctx, c.cfg.Symbol); err != nil {
		return CloseResult{}, &domain.ExecStepError{Step: domain.StepCloseOrder, Err: err}
	}

	// Give the exchange ledger a moment to register the fill.
	c.settleWait(ctx)

	// The exchange's realized accounting (fees, funding, slippage) beats any
	// local estimate; fall back to price delta only when it is not yet
	// available.
	var pnlUSD, pnlPct float64
	usedExchangePnL := false
	if realized, found, err := c.exchange.RealizedPnLSince(ctx, c.cfg.Symbol, trade.OpenedAt); err == nil && found {
		pnlUSD = realized
		if trade.NotionalValue > 0 {
			pnlPct = pnlUSD / trade.NotionalValue * 100
		}
		usedExchangePnL = true
	} else {
		if err != nil {
			c.logger.WarnContext(ctx, "realized pnl unavailable, using price delta",
				slog.String("error", err.Error()),
			)
		}
		pnlPct = pnlPercent(trade.EntryPrice, exitPrice, trade.Side)
		pnlUSD = pnlPct / 100 * trade.NotionalValue
	}

	closed, err := c.persistClose(ctx, trade, exitPrice, pnlUSD, pnlPct, reason)
	if err != nil {
		return CloseResult{}, err
	}

	c.logger.InfoContext(ctx, "position closed",
		slog.Int64("trade_id", trade.ID),
		slog.Float64("exit_price", exitPrice),
		slog.Float64("pnl_usd", pnlUSD),
		slog.Float64("pnl_pct", pnlPct),
		slog.String("reason", reason),
		slog.Bool("exchange_pnl", usedExchangePnL),
	)

	return CloseResult{Position: closed, UsedExchangePnL: usedExchangePnL}, nil
}

func (c *Coordinator) simulateClose(ctx context.Context, trade domain.Position, reason string) (CloseResult, error) {
	exitPrice := trade.EntryPrice
	if price, err := c.exchange.CurrentPrice(ctx, c.cfg.Symbol); err == nil {
		exitPrice = price
	}

	pnlPct := pnlPercent(trade.EntryPrice, exitPrice, trade.Side)
	pnlUSD := pnlPct / 100 * trade.NotionalValue

	closed, err := c.persistClose(ctx, trade, exitPrice, pnlUSD, pnlPct, reason)
	if err != nil {
		return CloseResult{}, err
	}

	c.logger.InfoContext(ctx, "dry run: position closed",
		slog.Int64("trade_id", trade.ID),
		slog.Float64("pnl_pct", pnlPct),
	)
	return CloseResult{Position: closed}, nil
}

func (c *Coordinator) persistClose(ctx context.Context, trade domain.Position, exitPrice, pnlUSD, pnlPct float64, reason string) (domain.Position, error) {
	closedAt := c.now().UTC()
	err := c.trades.CloseTrade(ctx, trade.ID, domain.TradeClose{
		ExitPrice:  exitPrice,
		PnLUSD:     pnlUSD,
		PnLPercent: pnlPct,
		Reason:     reason,
		ClosedAt:   closedAt,
	})
	if err != nil {
		return domain.Position{}, fmt.Errorf("coordinator: persist close %d: %w", trade.ID, err)
	}

	trade.IsOpen = false
	trade.ExitPrice = &exitPrice
	trade.PnLUSD = &pnlUSD
	trade.PnLPercent = &pnlPct
	trade.CloseReason = &reason
	trade.ClosedAt = &closedAt

	if c.events != nil {
		c.events.TradeClosed(ctx, trade)
	}
	return trade, nil
}

func (c *Coordinator) settleWait(ctx context.Context) {
	wait := c.cfg.SettleWait()
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Reconcile compares the ledger against exchange truth on startup. A ledger
// row the exchange no longer backs (a stop filled while the process was
// down) is closed as a reconciled orphan; an exchange position the ledger
// does not know is a fatal inconsistency surfaced for operator attention,
// never silently healed.
func (c *Coordinator) Reconcile(ctx context.Context) error {
	if !c.mu.TryLock() {
		return domain.ErrAlreadyTrading
	}
	defer c.mu.Unlock()

	trade, err := c.trades.GetOpen(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		exch, err := c.exchange.OpenPosition(ctx, c.cfg.Symbol)
		if err != nil {
			return fmt.Errorf("coordinator: reconcile: %w", err)
		}
		if exch != nil {
			return fmt.Errorf("%w: exchange reports a %s position of %v %s the ledger does not know",
				domain.ErrReconciliationConflict, exch.Side, exch.Quantity, exch.Symbol)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("coordinator: reconcile: %w", err)
	}

	exch, err := c.exchange.OpenPosition(ctx, c.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("coordinator: reconcile: %w", err)
	}

	if exch == nil {
		// The exchange flattened us while we were away. Exchange truth wins.
		c.logger.WarnContext(ctx, "open ledger position not backed by exchange, closing as orphan",
			slog.Int64("trade_id", trade.ID),
		)

		exitPrice := trade.EntryPrice
		if price, err := c.exchange.CurrentPrice(ctx, c.cfg.Symbol); err == nil {
			exitPrice = price
		}

		var pnlUSD, pnlPct float64
		if realized, found, err := c.exchange.RealizedPnLSince(ctx, c.cfg.Symbol, trade.OpenedAt); err == nil && found {
			pnlUSD = realized
			if trade.NotionalValue > 0 {
				pnlPct = pnlUSD / trade.NotionalValue * 100
			}
		} else {
			pnlPct = pnlPercent(trade.EntryPrice, exitPrice, trade.Side)
			pnlUSD = pnlPct / 100 * trade.NotionalValue
		}

		if _, err := c.persistClose(ctx, trade, exitPrice, pnlUSD, pnlPct, domain.CloseReasonReconciledOrphan); err != nil {
			return err
		}
		c.setState(StateIdle)
		return nil
	}

	if exch.Side != trade.Side {
		return fmt.Errorf("%w: ledger says %s, exchange says %s",
			domain.ErrReconciliationConflict, trade.Side, exch.Side)
	}

	c.setState(StateOpen)
	c.logger.InfoContext(ctx, "reconciled open position",
		slog.Int64("trade_id", trade.ID),
		slog.String("side", string(trade.Side)),
	)
	return nil
}

// Snapshot assembles a read-only view of the open position combining the
// ledger row with live exchange data: mark price, margin, liquidation, and
// whether the protective orders are still actually resting.
func (c *Coordinator) Snapshot(ctx context.Context) (domain.PositionSnapshot, error) {
	snap := domain.PositionSnapshot{AsOf: c.now().UTC()}

	trade, err := c.trades.GetOpen(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return snap, nil
		}
		return snap, fmt.Errorf("coordinator: snapshot: %w", err)
	}
	snap.Trade = &trade
	snap.StopLossPrice = trade.StopLossPrice
	snap.CallbackRate = trade.CallbackRate

	if c.cfg.DryRun {
		snap.MarkPrice = trade.EntryPrice
		if price, err := c.exchange.CurrentPrice(ctx, c.cfg.Symbol); err == nil {
			snap.MarkPrice = price
		}
		snap.PnLPercent = pnlPercent(trade.EntryPrice, snap.MarkPrice, trade.Side)
		snap.PnLUSD = snap.PnLPercent / 100 * trade.NotionalValue
		snap.StopLossActive = trade.StopLossOrderID != nil
		snap.TrailingStopActive = trade.TrailingStopOrderID != nil
		return snap, nil
	}

	exch, err := c.exchange.OpenPosition(ctx, c.cfg.Symbol)
	if err != nil {
		return snap, fmt.Errorf("coordinator: snapshot: %w", err)
	}
	snap.Exchange = exch

	if exch != nil {
		snap.MarkPrice = exch.MarkPrice
		snap.PnLUSD = exch.UnrealizedPnL
		if exch.Margin > 0 {
			snap.PnLPercent = exch.UnrealizedPnL / exch.Margin * 100
		}
	} else if price, err := c.exchange.CurrentPrice(ctx, c.cfg.Symbol); err == nil {
		snap.MarkPrice = price
		snap.PnLPercent = pnlPercent(trade.EntryPrice, price, trade.Side)
		snap.PnLUSD = snap.PnLPercent / 100 * trade.NotionalValue
	}

	// The protective orders may have fired or been cancelled out-of-band;
	// what is actually resting on the exchange is the truth.
	if resting, err := c.exchange.RestingStopOrders(ctx, c.cfg.Symbol); err == nil {
		for _, o := range resting {
			switch o.Type {
			case "STOP_MARKET":
				snap.StopLossActive = true
				snap.StopLossPrice = o.StopPrice
			case "TRAILING_STOP_MARKET":
				snap.TrailingStopActive = true
				if o.CallbackRate > 0 {
					snap.CallbackRate = o.CallbackRate
				}
			}
		}
	}

	if trade.EntryOrderID != nil {
		if fees, err := c.exchange.OrderFees(ctx, c.cfg.Symbol, *trade.EntryOrderID); err == nil && fees > 0 {
			snap.EntryFees = fees
		}
	}
	if snap.EntryFees == 0 {
		// Taker fee estimate when the fill report is not available.
		snap.EntryFees = trade.NotionalValue * 0.0005
	}

	if funding, err := c.exchange.FundingFeesSince(ctx, c.cfg.Symbol, trade.OpenedAt); err == nil {
		snap.FundingFees = funding
	}

	return snap, nil
}

func syntheticOrderID(kind string) string {
	return fmt.Sprintf("DRYRUN-%s-%s", kind, uuid.NewString())
}
