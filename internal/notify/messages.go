package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/Mmauz1001/trump-trader/internal/domain"
)

// Message builders render domain values into the title/body pairs the senders
// deliver. Plain data in, strings out; no I/O here.

func sideEmoji(side domain.Side) string {
	if side == domain.SideLong {
		return "📈"
	}
	return "📉"
}

func pnlTag(pnl float64) string {
	if pnl >= 0 {
		return "✅"
	}
	return "🔻"
}

// TradeOpenedMessage renders the notification for a freshly opened position.
func TradeOpenedMessage(p domain.Position) (title, body string) {
	title = fmt.Sprintf("%s %s %s opened", sideEmoji(p.Side), p.Side, p.Symbol)

	var b strings.Builder
	fmt.Fprintf(&b, "Entry: %.2f USDT\n", p.EntryPrice)
	fmt.Fprintf(&b, "Quantity: %v (%.2f USDT notional)\n", p.Quantity, p.NotionalValue)
	fmt.Fprintf(&b, "Leverage: %dx\n", p.Leverage)
	fmt.Fprintf(&b, "Stop loss: %.2f\n", p.StopLossPrice)
	fmt.Fprintf(&b, "Trailing callback: %.1f%%\n", p.CallbackRate)
	fmt.Fprintf(&b, "Sentiment score: %d", p.SentimentScore)
	if p.StopLossOrderID == nil {
		b.WriteString("\n⚠️ stop loss did not attach")
	}
	if p.TrailingStopOrderID == nil {
		b.WriteString("\n⚠️ trailing stop did not attach")
	}
	return title, b.String()
}

// TradeClosedMessage renders the notification for a closed position.
func TradeClosedMessage(p domain.Position) (title, body string) {
	var pnlUSD, pnlPct float64
	if p.PnLUSD != nil {
		pnlUSD = *p.PnLUSD
	}
	if p.PnLPercent != nil {
		pnlPct = *p.PnLPercent
	}

	title = fmt.Sprintf("%s %s %s closed", pnlTag(pnlUSD), p.Side, p.Symbol)

	var b strings.Builder
	fmt.Fprintf(&b, "PnL: %+.2f USDT (%+.2f%%)\n", pnlUSD, pnlPct)
	fmt.Fprintf(&b, "Entry: %.2f", p.EntryPrice)
	if p.ExitPrice != nil {
		fmt.Fprintf(&b, " → Exit: %.2f", *p.ExitPrice)
	}
	b.WriteString("\n")
	if p.CloseReason != nil {
		fmt.Fprintf(&b, "Reason: %s\n", *p.CloseReason)
	}
	if p.ClosedAt != nil {
		fmt.Fprintf(&b, "Held: %s", p.ClosedAt.Sub(p.OpenedAt).Round(time.Second))
	}
	return title, b.String()
}

// PositionStatusMessage renders the live view of the open position, or a flat
// report when there is none.
func PositionStatusMessage(snap domain.PositionSnapshot) (title, body string) {
	if snap.Trade == nil {
		return "ℹ️ No open position", "The bot is flat."
	}

	p := snap.Trade
	title = fmt.Sprintf("%s %s %s status", sideEmoji(p.Side), p.Side, p.Symbol)

	var b strings.Builder
	fmt.Fprintf(&b, "Entry: %.2f, Mark: %.2f\n", p.EntryPrice, snap.MarkPrice)
	fmt.Fprintf(&b, "Unrealized PnL: %+.2f USDT (%+.2f%%)\n", snap.PnLUSD, snap.PnLPercent)
	fmt.Fprintf(&b, "Leverage: %dx\n", p.Leverage)
	if snap.Exchange != nil && snap.Exchange.LiquidationPrice > 0 {
		fmt.Fprintf(&b, "Liquidation: %.2f\n", snap.Exchange.LiquidationPrice)
	}
	if snap.StopLossActive {
		fmt.Fprintf(&b, "Stop loss: %.2f (resting)\n", snap.StopLossPrice)
	} else {
		b.WriteString("⚠️ Stop loss: not resting\n")
	}
	if snap.TrailingStopActive {
		fmt.Fprintf(&b, "Trailing stop: %.1f%% (resting)\n", snap.CallbackRate)
	} else {
		b.WriteString("⚠️ Trailing stop: not resting\n")
	}
	fmt.Fprintf(&b, "Fees so far: %.2f entry, %.2f funding", snap.EntryFees, snap.FundingFees)
	return title, b.String()
}

// StartupMessage renders the account report sent when the bot comes up.
func StartupMessage(balance domain.AccountBalance, open *domain.Position, dryRun bool, closedToday []domain.Position) (title, body string) {
	title = "🤖 Trading bot started"

	var b strings.Builder
	mode := "LIVE"
	if dryRun {
		mode = "DRY RUN"
	}
	fmt.Fprintf(&b, "Mode: %s\n", mode)
	fmt.Fprintf(&b, "Balance: %.2f USDT (%.2f available)\n", balance.TotalBalance, balance.AvailableBalance)

	if open != nil {
		fmt.Fprintf(&b, "Open position: %s %s %dx from %.2f\n", open.Side, open.Symbol, open.Leverage, open.EntryPrice)
	} else {
		b.WriteString("Open position: none\n")
	}

	var dayPnL float64
	for _, p := range closedToday {
		if p.PnLUSD != nil {
			dayPnL += *p.PnLUSD
		}
	}
	fmt.Fprintf(&b, "Last 24h: %d trades, %+.2f USDT", len(closedToday), dayPnL)
	return title, b.String()
}

// ErrorMessage renders an operational failure notification.
func ErrorMessage(scope string, err error) (title, body string) {
	return "🚨 " + scope, err.Error()
}
