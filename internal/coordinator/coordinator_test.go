package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mmauz1001/trump-trader/internal/config"
	"github.com/Mmauz1001/trump-trader/internal/domain"
)

// fakeExchange implements Exchange with overridable hooks. Defaults behave
// like a healthy testnet account with no open position.
type fakeExchange struct {
	mu sync.Mutex

	available float64
	price     float64
	position  *domain.ExchangePosition
	realized  float64
	hasPnL    bool
	resting   []domain.RestingOrder

	cancelErr   error
	flattenErr  error
	leverageErr error
	entryErr    error
	stopErr     error
	trailErr    error

	entryOrders   int
	stopOrders    int
	trailOrders   int
	cancels       int
	flattens      int
	leverageSet   int
	marketOrderCh chan struct{} // when non-nil, PlaceMarketOrder blocks on it
	entryStarted  chan struct{} // closed when PlaceMarketOrder is first reached
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{available: 800, price: 50000}
}

func (f *fakeExchange) AccountBalance(context.Context) (domain.AccountBalance, error) {
	return domain.AccountBalance{TotalBalance: f.available, AvailableBalance: f.available}, nil
}

func (f *fakeExchange) CurrentPrice(context.Context, string) (float64, error) {
	return f.price, nil
}

func (f *fakeExchange) OpenPosition(context.Context, string) (*domain.ExchangePosition, error) {
	return f.position, nil
}

func (f *fakeExchange) SetLeverage(context.Context, string, int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leverageSet++
	return f.leverageErr
}

func (f *fakeExchange) PlaceMarketOrder(ctx context.Context, _ string, _ domain.OrderSide, _ float64) (string, error) {
	if f.entryStarted != nil {
		close(f.entryStarted)
		f.entryStarted = nil
	}
	if f.marketOrderCh != nil {
		select {
		case <-f.marketOrderCh:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entryErr != nil {
		return "", f.entryErr
	}
	f.entryOrders++
	return "ORDER-ENTRY-1", nil
}

func (f *fakeExchange) PlaceStopMarketOrder(context.Context, string, domain.OrderSide, float64, float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return "", f.stopErr
	}
	f.stopOrders++
	return "ORDER-STOP-1", nil
}

func (f *fakeExchange) PlaceTrailingStopOrder(context.Context, string, domain.OrderSide, float64, float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.trailErr != nil {
		return "", f.trailErr
	}
	f.trailOrders++
	return "ORDER-TRAIL-1", nil
}

func (f *fakeExchange) CloseAllPositions(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flattens++
	return f.flattenErr
}

func (f *fakeExchange) CancelAllOpenOrders(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return f.cancelErr
}

func (f *fakeExchange) RealizedPnLSince(context.Context, string, time.Time) (float64, bool, error) {
	return f.realized, f.hasPnL, nil
}

func (f *fakeExchange) FundingFeesSince(context.Context, string, time.Time) (float64, error) {
	return 0, nil
}

func (f *fakeExchange) OrderFees(context.Context, string, string) (float64, error) {
	return 0, nil
}

func (f *fakeExchange) RestingStopOrders(context.Context, string) ([]domain.RestingOrder, error) {
	return f.resting, nil
}

func (f *fakeExchange) RoundQuantity(qty float64) float64 {
	return decimal.NewFromFloat(qty).RoundFloor(3).InexactFloat64()
}

func (f *fakeExchange) RoundPrice(price float64) float64 {
	return decimal.NewFromFloat(price).Round(1).InexactFloat64()
}

// memStore is an in-memory TradeStore.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]domain.Position
	closes int
}

func newMemStore() *memStore {
	return &memStore{nextID: 1, rows: make(map[int64]domain.Position)}
}

func (s *memStore) Insert(_ context.Context, p domain.Position) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextID
	s.nextID++
	s.rows[p.ID] = p
	return p.ID, nil
}

func (s *memStore) CloseTrade(_ context.Context, id int64, c domain.TradeClose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || !row.IsOpen {
		return domain.ErrNotFound
	}
	row.IsOpen = false
	row.ExitPrice = &c.ExitPrice
	row.PnLUSD = &c.PnLUSD
	row.PnLPercent = &c.PnLPercent
	row.CloseReason = &c.Reason
	row.ClosedAt = &c.ClosedAt
	s.rows[id] = row
	s.closes++
	return nil
}

func (s *memStore) GetOpen(context.Context) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.IsOpen {
			return row, nil
		}
	}
	return domain.Position{}, domain.ErrNotFound
}

func (s *memStore) GetByID(_ context.Context, id int64) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return row, nil
}

func (s *memStore) CountTrades(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.rows)), nil
}

func (s *memStore) ListClosedSince(_ context.Context, since time.Time) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, row := range s.rows {
		if !row.IsOpen && row.ClosedAt != nil && !row.ClosedAt.Before(since) {
			out = append(out, row)
		}
	}
	return out, nil
}

type recordingSink struct {
	mu     sync.Mutex
	opened []domain.Position
	closed []domain.Position
	alerts []string
}

func (r *recordingSink) TradeOpened(_ context.Context, p domain.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, p)
}

func (r *recordingSink) TradeClosed(_ context.Context, p domain.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, p)
}

func (r *recordingSink) Alert(_ context.Context, title, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, title)
}

func testConfig(dryRun bool) config.TradingConfig {
	cfg := config.Defaults().Trading
	cfg.DryRun = dryRun
	cfg.SettleWaitSec = 0
	return cfg
}

func newTestCoordinator(t *testing.T, dryRun bool) (*Coordinator, *fakeExchange, *memStore, *recordingSink) {
	t.Helper()
	exch := newFakeExchange()
	store := newMemStore()
	sink := &recordingSink{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(testConfig(dryRun), exch, store, sink, logger)
	return c, exch, store, sink
}

func TestOnSignalNeutralIsNoOp(t *testing.T) {
	c, exch, store, _ := newTestCoordinator(t, false)

	out, err := c.OnSignal(context.Background(), domain.SentimentSignal{Score: 5})
	if err != nil {
		t.Fatal(err)
	}
	if out.Traded {
		t.Error("neutral score must not trade")
	}
	if exch.entryOrders != 0 {
		t.Error("no orders expected")
	}
	if n, _ := store.CountTrades(context.Background()); n != 0 {
		t.Errorf("no ledger rows expected, got %d", n)
	}
}

func TestOnSignalDryRunRoundTrip(t *testing.T) {
	c, exch, store, sink := newTestCoordinator(t, true)

	out, err := c.OnSignal(context.Background(), domain.SentimentSignal{Score: 8, SourceRef: "sig-1"})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Traded || out.Position == nil {
		t.Fatal("expected a trade")
	}

	pos := *out.Position
	if pos.Side != domain.SideLong {
		t.Errorf("score 8: got side %s, want LONG", pos.Side)
	}
	if pos.Leverage != 15 {
		t.Errorf("score 8: got %dx, want 15x", pos.Leverage)
	}
	// 800 * 0.95 * 15 / 50000 = 0.228
	if math.Abs(pos.Quantity-0.228) > 1e-9 {
		t.Errorf("quantity: got %v, want 0.228", pos.Quantity)
	}
	if math.Abs(pos.NotionalValue-pos.Quantity*pos.EntryPrice) > 1e-9 {
		t.Errorf("notional %v is not quantity*entry %v", pos.NotionalValue, pos.Quantity*pos.EntryPrice)
	}
	if !pos.IsOpen {
		t.Error("position should be open")
	}
	if pos.EntryOrderID == nil || !strings.HasPrefix(*pos.EntryOrderID, "DRYRUN-") {
		t.Error("dry run must carry synthetic order ids")
	}

	// Dry run touches the ledger but never the exchange order endpoints.
	if exch.entryOrders != 0 || exch.stopOrders != 0 || exch.trailOrders != 0 {
		t.Error("dry run must not place exchange orders")
	}
	if stored, err := store.GetOpen(context.Background()); err != nil || stored.ID != pos.ID {
		t.Errorf("ledger row missing: %v", err)
	}
	if len(sink.opened) != 1 {
		t.Errorf("expected 1 opened event, got %d", len(sink.opened))
	}
	if c.State() != StateOpen {
		t.Errorf("state: got %s, want %s", c.State(), StateOpen)
	}
}

func TestOnSignalSkipsWhenPositionOpen(t *testing.T) {
	c, exch, _, _ := newTestCoordinator(t, true)
	ctx := context.Background()

	if _, err := c.OnSignal(ctx, domain.SentimentSignal{Score: 8}); err != nil {
		t.Fatal(err)
	}
	out, err := c.OnSignal(ctx, domain.SentimentSignal{Score: 2})
	if err != nil {
		t.Fatal(err)
	}
	if out.Traded {
		t.Error("second signal must be skipped while a position is open")
	}
	if exch.entryOrders != 0 {
		t.Error("no live orders expected")
	}
}

func TestExecuteLiveSequence(t *testing.T) {
	c, exch, store, _ := newTestCoordinator(t, false)

	out, err := c.OnSignal(context.Background(), domain.SentimentSignal{Score: 2})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Traded {
		t.Fatal("expected a trade")
	}

	pos := *out.Position
	if pos.Side != domain.SideShort {
		t.Errorf("score 2: got %s, want SHORT", pos.Side)
	}
	if exch.cancels != 1 || exch.flattens != 1 || exch.leverageSet != 1 {
		t.Errorf("safety net not run: cancels=%d flattens=%d leverage=%d",
			exch.cancels, exch.flattens, exch.leverageSet)
	}
	if exch.entryOrders != 1 || exch.stopOrders != 1 || exch.trailOrders != 1 {
		t.Errorf("order counts: entry=%d stop=%d trail=%d",
			exch.entryOrders, exch.stopOrders, exch.trailOrders)
	}
	if pos.StopLossOrderID == nil || pos.TrailingStopOrderID == nil {
		t.Error("protective order ids should be recorded")
	}
	if n, _ := store.CountTrades(context.Background()); n != 1 {
		t.Errorf("ledger rows: got %d, want 1", n)
	}
}

func TestExecuteAbortsOnStepFailure(t *testing.T) {
	c, exch, store, _ := newTestCoordinator(t, false)
	exch.cancelErr = errors.New("boom")

	_, err := c.OnSignal(context.Background(), domain.SentimentSignal{Score: 8})
	var stepErr *domain.ExecStepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected ExecStepError, got %v", err)
	}
	if stepErr.Step != domain.StepCancelOrders {
		t.Errorf("step: got %s, want %s", stepErr.Step, domain.StepCancelOrders)
	}
	if exch.entryOrders != 0 {
		t.Error("entry must not be placed after an aborted step")
	}
	if n, _ := store.CountTrades(context.Background()); n != 0 {
		t.Error("nothing should be persisted after an abort")
	}
	if c.State() != StateIdle {
		t.Errorf("state after abort: got %s, want %s", c.State(), StateIdle)
	}
}

func TestProtectiveFailureDoesNotAbort(t *testing.T) {
	c, exch, store, sink := newTestCoordinator(t, false)
	exch.stopErr = errors.New("rejected")

	out, err := c.OnSignal(context.Background(), domain.SentimentSignal{Score: 8})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Traded {
		t.Fatal("entry succeeded, the trade must stand")
	}
	if out.Position.StopLossOrderID != nil {
		t.Error("failed stop must be recorded as missing")
	}
	if out.Position.TrailingStopOrderID == nil {
		t.Error("trailing stop succeeded and must be recorded")
	}
	if n, _ := store.CountTrades(context.Background()); n != 1 {
		t.Error("position must still be persisted")
	}
	if len(sink.alerts) != 1 {
		t.Errorf("expected 1 degraded-protection alert, got %d", len(sink.alerts))
	}
}

func TestConcurrentSignalRejected(t *testing.T) {
	c, exch, _, _ := newTestCoordinator(t, false)
	exch.marketOrderCh = make(chan struct{})
	entered := make(chan struct{})
	exch.entryStarted = entered

	firstDone := make(chan error, 1)
	go func() {
		_, err := c.OnSignal(context.Background(), domain.SentimentSignal{Score: 8})
		firstDone <- err
	}()

	// Wait until the first signal holds the guard inside PlaceMarketOrder.
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first signal never reached the entry order")
	}

	if _, err := c.OnSignal(context.Background(), domain.SentimentSignal{Score: 2}); !errors.Is(err, domain.ErrAlreadyTrading) {
		t.Fatalf("expected ErrAlreadyTrading, got %v", err)
	}

	close(exch.marketOrderCh)
	if err := <-firstDone; err != nil {
		t.Fatalf("first signal: %v", err)
	}
}

func TestCloseUsesExchangePnL(t *testing.T) {
	c, exch, _, sink := newTestCoordinator(t, false)
	ctx := context.Background()

	out, err := c.OnSignal(ctx, domain.SentimentSignal{Score: 8})
	if err != nil {
		t.Fatal(err)
	}

	exch.realized = 120
	exch.hasPnL = true

	res, err := c.ClosePosition(ctx, out.Position.ID, domain.CloseReasonManual)
	if err != nil {
		t.Fatal(err)
	}
	if res.AlreadyClosed {
		t.Fatal("position was open")
	}
	if !res.UsedExchangePnL {
		t.Error("exchange pnl was available and must win")
	}
	if res.Position.PnLUSD == nil || *res.Position.PnLUSD != 120 {
		t.Fatalf("pnl usd: got %v, want 120", res.Position.PnLUSD)
	}
	// 120 / (0.228 * 50000) * 100 = 1.0526...; check against the notional.
	wantPct := 120 / res.Position.NotionalValue * 100
	if math.Abs(*res.Position.PnLPercent-wantPct) > 1e-9 {
		t.Errorf("pnl pct: got %v, want %v", *res.Position.PnLPercent, wantPct)
	}
	if len(sink.closed) != 1 {
		t.Errorf("expected 1 closed event, got %d", len(sink.closed))
	}
}

func TestClosePriceDeltaFallback(t *testing.T) {
	c, exch, _, _ := newTestCoordinator(t, false)
	ctx := context.Background()

	out, err := c.OnSignal(ctx, domain.SentimentSignal{Score: 8})
	if err != nil {
		t.Fatal(err)
	}

	// No realized income yet; exit quote moved 1% up on a long.
	exch.hasPnL = false
	exch.price = 50500

	res, err := c.ClosePosition(ctx, out.Position.ID, domain.CloseReasonManual)
	if err != nil {
		t.Fatal(err)
	}
	if res.UsedExchangePnL {
		t.Error("fallback path expected")
	}
	if math.Abs(*res.Position.PnLPercent-1.0) > 1e-9 {
		t.Errorf("pnl pct: got %v, want 1.0", *res.Position.PnLPercent)
	}
	wantUSD := 1.0 / 100 * res.Position.NotionalValue
	if math.Abs(*res.Position.PnLUSD-wantUSD) > 1e-9 {
		t.Errorf("pnl usd: got %v, want %v", *res.Position.PnLUSD, wantUSD)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c, _, store, _ := newTestCoordinator(t, true)
	ctx := context.Background()

	out, err := c.OnSignal(ctx, domain.SentimentSignal{Score: 8})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.ClosePosition(ctx, out.Position.ID, domain.CloseReasonManual); err != nil {
		t.Fatal(err)
	}
	res, err := c.ClosePosition(ctx, out.Position.ID, domain.CloseReasonManual)
	if err != nil {
		t.Fatal(err)
	}
	if !res.AlreadyClosed {
		t.Error("second close must report AlreadyClosed")
	}
	if store.closes != 1 {
		t.Errorf("ledger writes: got %d, want 1", store.closes)
	}
}

func TestCloseOpenPositionWithNothingOpen(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t, false)

	res, err := c.CloseOpenPosition(context.Background(), domain.CloseReasonManual)
	if err != nil {
		t.Fatal(err)
	}
	if !res.AlreadyClosed {
		t.Error("no open position must be an idempotent success")
	}
}

func TestReconcileOrphan(t *testing.T) {
	c, exch, store, _ := newTestCoordinator(t, false)
	ctx := context.Background()

	out, err := c.OnSignal(ctx, domain.SentimentSignal{Score: 8})
	if err != nil {
		t.Fatal(err)
	}

	// Exchange reports flat: the stop fired while we were down.
	exch.position = nil
	exch.hasPnL = true
	exch.realized = -75

	if err := c.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}

	row, err := store.GetByID(ctx, out.Position.ID)
	if err != nil {
		t.Fatal(err)
	}
	if row.IsOpen {
		t.Error("orphan must be closed")
	}
	if row.CloseReason == nil || *row.CloseReason != domain.CloseReasonReconciledOrphan {
		t.Errorf("close reason: got %v", row.CloseReason)
	}
	if row.PnLUSD == nil || *row.PnLUSD != -75 {
		t.Errorf("pnl: got %v, want -75", row.PnLUSD)
	}
	if c.State() != StateIdle {
		t.Errorf("state: got %s, want %s", c.State(), StateIdle)
	}
}

func TestReconcileConflict(t *testing.T) {
	c, exch, _, _ := newTestCoordinator(t, false)

	exch.position = &domain.ExchangePosition{
		Symbol:   "BTCUSDT",
		Side:     domain.SideLong,
		Quantity: 0.5,
	}

	err := c.Reconcile(context.Background())
	if !errors.Is(err, domain.ErrReconciliationConflict) {
		t.Fatalf("expected ErrReconciliationConflict, got %v", err)
	}
}

func TestReconcileMatchingPosition(t *testing.T) {
	c, exch, _, _ := newTestCoordinator(t, false)
	ctx := context.Background()

	out, err := c.OnSignal(ctx, domain.SentimentSignal{Score: 8})
	if err != nil {
		t.Fatal(err)
	}

	exch.position = &domain.ExchangePosition{
		Symbol:   "BTCUSDT",
		Side:     out.Position.Side,
		Quantity: out.Position.Quantity,
	}

	if err := c.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}
	if c.State() != StateOpen {
		t.Errorf("state: got %s, want %s", c.State(), StateOpen)
	}
}

func TestSnapshotReportsRestingOrders(t *testing.T) {
	c, exch, _, _ := newTestCoordinator(t, false)
	ctx := context.Background()

	out, err := c.OnSignal(ctx, domain.SentimentSignal{Score: 8})
	if err != nil {
		t.Fatal(err)
	}

	exch.position = &domain.ExchangePosition{
		Symbol:        "BTCUSDT",
		Side:          out.Position.Side,
		Quantity:      out.Position.Quantity,
		MarkPrice:     50500,
		UnrealizedPnL: 114,
		Margin:        760,
	}
	exch.resting = []domain.RestingOrder{
		{OrderID: "1", Type: "STOP_MARKET", StopPrice: 49500},
		{OrderID: "2", Type: "TRAILING_STOP_MARKET", CallbackRate: 1.2},
	}

	snap, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Trade == nil || snap.Exchange == nil {
		t.Fatal("expected ledger and exchange views")
	}
	if !snap.StopLossActive || snap.StopLossPrice != 49500 {
		t.Error("resting stop must be reported")
	}
	if !snap.TrailingStopActive || snap.CallbackRate != 1.2 {
		t.Error("resting trailing stop must be reported")
	}
	if snap.PnLUSD != 114 {
		t.Errorf("pnl: got %v, want 114", snap.PnLUSD)
	}
	if snap.EntryFees == 0 {
		t.Error("entry fee estimate expected")
	}
}

func TestSnapshotEmptyLedger(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t, false)

	snap, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Trade != nil {
		t.Error("no trade expected")
	}
}
