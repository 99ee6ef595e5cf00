package notify

import (
	"context"

	"github.com/Mmauz1001/trump-trader/internal/domain"
)

// Events adapts a Notifier to the coordinator's event sink. Delivery failures
// are already logged by the Notifier and never surface to the trading path.
type Events struct {
	notifier *Notifier
}

// NewEvents creates the event sink adapter.
func NewEvents(notifier *Notifier) *Events {
	return &Events{notifier: notifier}
}

func (e *Events) TradeOpened(ctx context.Context, p domain.Position) {
	title, body := TradeOpenedMessage(p)
	_ = e.notifier.Notify(ctx, EventTradeOpened, title, body)
}

func (e *Events) TradeClosed(ctx context.Context, p domain.Position) {
	title, body := TradeClosedMessage(p)
	_ = e.notifier.Notify(ctx, EventTradeClosed, title, body)
}

func (e *Events) Alert(ctx context.Context, title, message string) {
	_ = e.notifier.Notify(ctx, EventAlert, "⚠️ "+title, message)
}
