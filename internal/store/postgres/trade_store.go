package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Mmauz1001/trump-trader/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, symbol, side, leverage, entry_price, quantity,
	notional_value, stop_loss_price, callback_rate, sentiment_score, signal_ref,
	entry_order_id, stop_loss_order_id, trailing_stop_order_id,
	is_open, exit_price, pnl_usd, pnl_percent, close_reason, opened_at, closed_at`

func scanTrade(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var side string
	err := row.Scan(
		&p.ID, &p.Symbol, &side, &p.Leverage, &p.EntryPrice, &p.Quantity,
		&p.NotionalValue, &p.StopLossPrice, &p.CallbackRate, &p.SentimentScore, &p.SignalRef,
		&p.EntryOrderID, &p.StopLossOrderID, &p.TrailingStopOrderID,
		&p.IsOpen, &p.ExitPrice, &p.PnLUSD, &p.PnLPercent, &p.CloseReason, &p.OpenedAt, &p.ClosedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.Side(side)
	return p, nil
}

// Insert persists a freshly opened position and returns its id.
func (s *TradeStore) Insert(ctx context.Context, p domain.Position) (int64, error) {
	const query = `
		INSERT INTO trades (
			symbol, side, leverage, entry_price, quantity,
			notional_value, stop_loss_price, callback_rate, sentiment_score, signal_ref,
			entry_order_id, stop_loss_order_id, trailing_stop_order_id,
			is_open, opened_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13,
			$14, $15
		) RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		p.Symbol, string(p.Side), p.Leverage, p.EntryPrice, p.Quantity,
		p.NotionalValue, p.StopLossPrice, p.CallbackRate, p.SentimentScore, p.SignalRef,
		p.EntryOrderID, p.StopLossOrderID, p.TrailingStopOrderID,
		p.IsOpen, p.OpenedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert trade: %w", err)
	}
	return id, nil
}

// CloseTrade marks an open position closed. The is_open predicate makes the
// write race-free: a row that is already closed matches nothing and reports
// ErrNotFound, so callers can keep close idempotent without double-writing.
func (s *TradeStore) CloseTrade(ctx context.Context, id int64, c domain.TradeClose) error {
	const query = `
		UPDATE trades SET
			is_open = FALSE,
			exit_price = $2,
			pnl_usd = $3,
			pnl_percent = $4,
			close_reason = $5,
			closed_at = $6
		WHERE id = $1 AND is_open`

	tag, err := s.pool.Exec(ctx, query,
		id, c.ExitPrice, c.PnLUSD, c.PnLPercent, c.Reason, c.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: close trade %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetOpen returns the single open position, or ErrNotFound.
func (s *TradeStore) GetOpen(ctx context.Context) (domain.Position, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE is_open LIMIT 1`
	p, err := scanTrade(s.pool.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get open trade: %w", err)
	}
	return p, nil
}

// GetByID returns a position by id, or ErrNotFound.
func (s *TradeStore) GetByID(ctx context.Context, id int64) (domain.Position, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE id = $1`
	p, err := scanTrade(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get trade %d: %w", id, err)
	}
	return p, nil
}

// CountTrades returns the total number of recorded trades.
func (s *TradeStore) CountTrades(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM trades").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count trades: %w", err)
	}
	return count, nil
}

// ListClosedSince returns trades closed at or after the given time, most
// recent first.
func (s *TradeStore) ListClosedSince(ctx context.Context, since time.Time) ([]domain.Position, error) {
	query := `SELECT ` + tradeSelectCols + `
		FROM trades
		WHERE NOT is_open AND closed_at >= $1
		ORDER BY closed_at DESC`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Position
	for rows.Next() {
		p, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan closed trade: %w", err)
		}
		trades = append(trades, p)
	}
	return trades, rows.Err()
}
