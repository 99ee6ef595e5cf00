package domain

import "time"

// AccountBalance is the futures account balance summary.
type AccountBalance struct {
	TotalBalance     float64
	AvailableBalance float64
	MarginBalance    float64
	UnrealizedPnL    float64
}

// ExchangePosition is the exchange's own view of an open position. It is the
// source of truth reconciled against the local ledger row and wins on
// disagreement.
type ExchangePosition struct {
	Symbol           string
	Side             Side
	Quantity         float64
	EntryPrice       float64
	MarkPrice        float64
	LiquidationPrice float64
	BreakevenPrice   float64
	UnrealizedPnL    float64
	Leverage         int
	Notional         float64
	Margin           float64
	MarginRatio      float64 // account level, percent
	MarginType       string  // "CROSS" or "ISOLATED"
}

// RestingOrder is a protective order currently resting on the exchange.
type RestingOrder struct {
	OrderID      string
	Type         string // STOP_MARKET or TRAILING_STOP_MARKET
	Side         OrderSide
	StopPrice    float64
	CallbackRate float64
	ReduceOnly   bool
}

// IncomeSummary aggregates exchange income history over a window.
type IncomeSummary struct {
	RealizedPnL float64
	Commission  float64
	FundingFees float64
}

// Total is the net income over the window, fees included.
func (s IncomeSummary) Total() float64 {
	return s.RealizedPnL + s.Commission + s.FundingFees
}

// PositionSnapshot combines the ledger's open position with live exchange
// data for display. Exchange is nil when the exchange reports no position
// (for example after a stop fired out-of-band); Trade is nil when the ledger
// has no open row.
type PositionSnapshot struct {
	Trade    *Position
	Exchange *ExchangePosition

	MarkPrice          float64
	PnLUSD             float64
	PnLPercent         float64
	StopLossPrice      float64
	StopLossActive     bool
	CallbackRate       float64
	TrailingStopActive bool
	EntryFees          float64
	FundingFees        float64
	AsOf               time.Time
}
