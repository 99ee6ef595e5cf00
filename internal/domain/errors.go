package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when no row matches.
	ErrNotFound = errors.New("not found")

	// ErrNoTradeSignal marks a neutral sentiment score. It is a no-op
	// outcome, not a failure; callers check it with errors.Is and move on.
	ErrNoTradeSignal = errors.New("neutral sentiment, no trade signal")

	// ErrAlreadyTrading is returned when a second execute or close sequence
	// is attempted while one is already in flight.
	ErrAlreadyTrading = errors.New("trade sequence already in flight")

	// ErrInsufficientBalance is returned when the usable position size
	// computes to zero or less.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrPriceUnavailable is returned when the exchange cannot report a
	// current price. Callers must treat this as a hard stop for sizing,
	// never substitute a stale value.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrExchangeUnavailable wraps transport or auth failures that survived
	// the gateway's bounded retry.
	ErrExchangeUnavailable = errors.New("exchange unavailable")

	// ErrReconciliationConflict is returned when the exchange and the ledger
	// disagree in a way that cannot be auto-healed. It is surfaced for
	// operator attention, never resolved silently.
	ErrReconciliationConflict = errors.New("ledger and exchange state conflict")
)

// ExecStep names one step of the execute or close sequence, so a failure
// report always says how far the sequence got.
type ExecStep string

const (
	StepFlatten      ExecStep = "flatten_existing"
	StepCancelOrders ExecStep = "cancel_orders"
	StepSetLeverage  ExecStep = "set_leverage"
	StepEntryOrder   ExecStep = "entry_order"
	StepStopLoss     ExecStep = "stop_loss_order"
	StepTrailingStop ExecStep = "trailing_stop_order"
	StepPersist      ExecStep = "persist"
	StepCloseOrder   ExecStep = "close_order"
)

// ExecStepError reports which step of an order sequence failed. A position
// that is half-protected (entry filled, stop-loss missing) must be
// distinguishable from "nothing happened".
type ExecStepError struct {
	Step ExecStep
	Err  error
}

func (e *ExecStepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *ExecStepError) Unwrap() error { return e.Err }

// OrderRejectedError is a validation rejection from the exchange. It is
// never retried.
type OrderRejectedError struct {
	Code   int
	Reason string
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("order rejected (code %d): %s", e.Code, e.Reason)
}
