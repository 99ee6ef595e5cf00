package domain

import (
	"context"
	"time"
)

// TradeClose carries the terminal fields written when a position closes.
type TradeClose struct {
	ExitPrice  float64
	PnLUSD     float64
	PnLPercent float64
	Reason     string
	ClosedAt   time.Time
}

// TradeStore persists positions. The coordinator is its sole writer, so the
// store does not need to provide locking of its own.
type TradeStore interface {
	// Insert persists a freshly opened position and returns its id.
	Insert(ctx context.Context, p Position) (int64, error)
	// CloseTrade marks an open position closed. Closing an already-closed
	// row returns ErrNotFound so callers can keep close idempotent without
	// double-writing.
	CloseTrade(ctx context.Context, id int64, c TradeClose) error
	// GetOpen returns the single open position, or ErrNotFound.
	GetOpen(ctx context.Context) (Position, error)
	// GetByID returns a position by id, or ErrNotFound.
	GetByID(ctx context.Context, id int64) (Position, error)
	// CountTrades returns the total number of recorded trades.
	CountTrades(ctx context.Context) (int64, error)
	// ListClosedSince returns trades closed at or after the given time,
	// most recent first.
	ListClosedSince(ctx context.Context, since time.Time) ([]Position, error)
}
