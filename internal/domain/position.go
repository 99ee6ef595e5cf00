// Package domain defines the core types shared across the trading bot: the
// position record, its derived trade parameters, sentiment signals, exchange
// views, and the store contracts that persist them.
package domain

import "time"

// Side is the direction of a futures position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Opposite returns the side that flattens or reduces this one.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// OrderSide is the exchange wire direction for an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// EntryOrderSide maps a position side to the order side that opens it.
func (s Side) EntryOrderSide() OrderSide {
	if s == SideLong {
		return OrderSideBuy
	}
	return OrderSideSell
}

// ExitOrderSide maps a position side to the reduce-only order side that
// closes it.
func (s Side) ExitOrderSide() OrderSide {
	if s == SideLong {
		return OrderSideSell
	}
	return OrderSideBuy
}

// Close reasons recorded on the ledger row.
const (
	CloseReasonManual           = "MANUAL_CLOSE"
	CloseReasonNewSignal        = "NEW_SIGNAL"
	CloseReasonReconciledOrphan = "RECONCILED_ORPHAN"
	CloseReasonDryRun           = "DRY_RUN_CLOSE"
)

// Position is the single allowed open trade and, once closed, a historical
// ledger row. The coordinator is the only writer; the store never originates
// a mutation.
type Position struct {
	ID             int64
	Symbol         string
	Side           Side
	Leverage       int
	EntryPrice     float64
	Quantity       float64
	NotionalValue  float64 // quantity * entry price
	StopLossPrice  float64
	CallbackRate   float64 // trailing stop callback, percent
	SentimentScore int
	SignalRef      string // opaque reference to the originating signal

	// Exchange order identifiers. Nil until the corresponding order is
	// confirmed placed; a protective order that failed to attach stays nil.
	EntryOrderID        *string
	StopLossOrderID     *string
	TrailingStopOrderID *string

	IsOpen      bool
	ExitPrice   *float64
	PnLUSD      *float64
	PnLPercent  *float64
	CloseReason *string

	OpenedAt time.Time
	ClosedAt *time.Time
}

// TradeParams are the sized, priced parameters for a prospective trade. They
// are a pure function of a sentiment signal and the account/market state at
// preparation time, and carry no identity of their own.
type TradeParams struct {
	Side           Side
	Leverage       int
	Quantity       float64
	ReferencePrice float64
	NotionalValue  float64
	StopLossPrice  float64
	CallbackRate   float64
	SentimentScore int
}
