package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Mmauz1001/trump-trader/internal/domain"
)

// Ping checks API reachability. It hits the unauthenticated ping endpoint so
// it works before credentials are verified.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.doPublic(ctx, http.MethodGet, "/fapi/v1/ping", nil); err != nil {
		return fmt.Errorf("binance: ping: %w", err)
	}
	return nil
}

// AccountBalance returns the futures account balance summary.
func (c *Client) AccountBalance(ctx context.Context) (domain.AccountBalance, error) {
	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v2/account", nil)
	if err != nil {
		return domain.AccountBalance{}, fmt.Errorf("binance: account: %w", err)
	}

	var resp struct {
		TotalWalletBalance    string `json:"totalWalletBalance"`
		AvailableBalance      string `json:"availableBalance"`
		TotalMarginBalance    string `json:"totalMarginBalance"`
		TotalUnrealizedProfit string `json:"totalUnrealizedProfit"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.AccountBalance{}, fmt.Errorf("binance: decode account: %w", err)
	}

	return domain.AccountBalance{
		TotalBalance:     parseFloat(resp.TotalWalletBalance),
		AvailableBalance: parseFloat(resp.AvailableBalance),
		MarginBalance:    parseFloat(resp.TotalMarginBalance),
		UnrealizedPnL:    parseFloat(resp.TotalUnrealizedProfit),
	}, nil
}

// CurrentPrice returns the last traded price for symbol. A transport failure
// surfaces as ErrPriceUnavailable: callers must treat it as a hard stop for
// sizing, never substitute a stale value.
func (c *Client) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.doPublic(ctx, http.MethodGet, "/fapi/v1/ticker/price", params)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrPriceUnavailable, err)
	}

	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("binance: decode ticker: %w", err)
	}

	price := parseFloat(resp.Price)
	if price <= 0 {
		return 0, domain.ErrPriceUnavailable
	}
	return price, nil
}

// positionRiskRow is one entry of /fapi/v2/positionRisk.
type positionRiskRow struct {
	Symbol           string `json:"symbol"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	BreakEvenPrice   string `json:"breakEvenPrice"`
	MarkPrice        string `json:"markPrice"`
	UnRealizedProfit string `json:"unRealizedProfit"`
	LiquidationPrice string `json:"liquidationPrice"`
	Leverage         string `json:"leverage"`
	MarginType       string `json:"marginType"`
	IsolatedWallet   string `json:"isolatedWallet"`
}

// OpenPosition returns the exchange's own view of the position on symbol, or
// nil when the exchange reports the position flat. This view is authoritative
// over any locally cached record.
func (c *Client) OpenPosition(ctx context.Context, symbol string) (*domain.ExchangePosition, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v2/positionRisk", params)
	if err != nil {
		return nil, fmt.Errorf("binance: position risk: %w", err)
	}

	var rows []positionRiskRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("binance: decode position risk: %w", err)
	}

	for _, row := range rows {
		amt := parseFloat(row.PositionAmt)
		if amt == 0 {
			continue
		}

		side := domain.SideLong
		if amt < 0 {
			side = domain.SideShort
			amt = -amt
		}

		entry := parseFloat(row.EntryPrice)
		leverage := int(parseFloat(row.Leverage))
		notional := amt * entry
		margin := notional
		if leverage > 0 {
			margin = notional / float64(leverage)
		}

		pos := &domain.ExchangePosition{
			Symbol:           row.Symbol,
			Side:             side,
			Quantity:         amt,
			EntryPrice:       entry,
			MarkPrice:        parseFloat(row.MarkPrice),
			LiquidationPrice: parseFloat(row.LiquidationPrice),
			BreakevenPrice:   parseFloat(row.BreakEvenPrice),
			UnrealizedPnL:    parseFloat(row.UnRealizedProfit),
			Leverage:         leverage,
			Notional:         notional,
			Margin:           margin,
			MarginType:       normalizeMarginType(row.MarginType),
		}
		if pos.BreakevenPrice == 0 {
			pos.BreakevenPrice = entry
		}

		// Account-level margin ratio for the snapshot view. Best effort: a
		// failure here must not hide the position itself.
		if ratio, err := c.marginRatio(ctx); err == nil {
			pos.MarginRatio = ratio
		}

		return pos, nil
	}

	return nil, nil
}

// marginRatio computes the account maintenance-margin ratio in percent, the
// same figure the exchange UI shows.
func (c *Client) marginRatio(ctx context.Context) (float64, error) {
	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v2/account", nil)
	if err != nil {
		return 0, err
	}

	var resp struct {
		TotalMarginBalance string `json:"totalMarginBalance"`
		TotalMaintMargin   string `json:"totalMaintMargin"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, err
	}

	marginBalance := parseFloat(resp.TotalMarginBalance)
	if marginBalance <= 0 {
		return 0, nil
	}
	return parseFloat(resp.TotalMaintMargin) / marginBalance * 100, nil
}

// SetLeverage sets the leverage for symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))

	if _, err := c.doSigned(ctx, http.MethodPost, "/fapi/v1/leverage", params); err != nil {
		return fmt.Errorf("binance: set leverage %dx: %w", leverage, err)
	}
	return nil
}

// orderResponse is the subset of the order endpoint response we use.
type orderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
}

func (c *Client) placeOrder(ctx context.Context, params url.Values) (string, error) {
	body, err := c.doSigned(ctx, http.MethodPost, "/fapi/v1/order", params)
	if err != nil {
		return "", err
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode order response: %w", err)
	}
	return strconv.FormatInt(resp.OrderID, 10), nil
}

// PlaceMarketOrder submits a market order and returns the exchange order id.
// Quantity is rounded down to the instrument's step size before submission.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, qty float64) (string, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", "MARKET")
	params.Set("quantity", c.formatQuantity(qty))

	id, err := c.placeOrder(ctx, params)
	if err != nil {
		return "", fmt.Errorf("binance: market order: %w", err)
	}
	return id, nil
}

// PlaceStopMarketOrder submits a reduce-only stop-market order at stopPrice.
func (c *Client) PlaceStopMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, qty, stopPrice float64) (string, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", "STOP_MARKET")
	params.Set("quantity", c.formatQuantity(qty))
	params.Set("stopPrice", c.formatPrice(stopPrice))
	params.Set("reduceOnly", "true")

	id, err := c.placeOrder(ctx, params)
	if err != nil {
		return "", fmt.Errorf("binance: stop market order: %w", err)
	}
	return id, nil
}

// PlaceTrailingStopOrder submits a reduce-only trailing-stop order at the
// given callback rate (percent).
func (c *Client) PlaceTrailingStopOrder(ctx context.Context, symbol string, side domain.OrderSide, qty, callbackRate float64) (string, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", "TRAILING_STOP_MARKET")
	params.Set("quantity", c.formatQuantity(qty))
	params.Set("callbackRate", strconv.FormatFloat(callbackRate, 'f', 1, 64))
	params.Set("reduceOnly", "true")

	id, err := c.placeOrder(ctx, params)
	if err != nil {
		return "", fmt.Errorf("binance: trailing stop order: %w", err)
	}
	return id, nil
}

// CloseAllPositions flattens symbol via opposing-side reduce-only market
// orders. A flat book is a successful no-op.
func (c *Client) CloseAllPositions(ctx context.Context, symbol string) error {
	pos, err := c.OpenPosition(ctx, symbol)
	if err != nil {
		return fmt.Errorf("binance: close positions: %w", err)
	}
	if pos == nil {
		return nil
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(pos.Side.ExitOrderSide()))
	params.Set("type", "MARKET")
	params.Set("quantity", c.formatQuantity(pos.Quantity))
	params.Set("reduceOnly", "true")

	if _, err := c.placeOrder(ctx, params); err != nil {
		return fmt.Errorf("binance: close positions: %w", err)
	}
	return nil
}

// CancelAllOpenOrders cancels every resting order on symbol. Cancelling an
// empty book is a successful no-op.
func (c *Client) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	params := url.Values{}
	params.Set("symbol", symbol)

	if _, err := c.doSigned(ctx, http.MethodDelete, "/fapi/v1/allOpenOrders", params); err != nil {
		return fmt.Errorf("binance: cancel open orders: %w", err)
	}
	return nil
}

// incomeEntry is one row of /fapi/v1/income.
type incomeEntry struct {
	Symbol     string `json:"symbol"`
	IncomeType string `json:"incomeType"`
	Income     string `json:"income"`
	Asset      string `json:"asset"`
	Time       int64  `json:"time"`
}

func (c *Client) incomeSum(ctx context.Context, symbol, incomeType string, since time.Time) (float64, int, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	params.Set("incomeType", incomeType)
	params.Set("startTime", strconv.FormatInt(since.UnixMilli(), 10))
	params.Set("limit", "1000")

	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v1/income", params)
	if err != nil {
		return 0, 0, err
	}

	var entries []incomeEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return 0, 0, fmt.Errorf("decode income history: %w", err)
	}

	var sum float64
	for _, e := range entries {
		sum += parseFloat(e.Income)
	}
	return sum, len(entries), nil
}

// RealizedPnLSince sums REALIZED_PNL income entries since the given time. The
// boolean reports whether any entry was found: the exchange ledger may lag a
// just-closed position, in which case callers fall back to a price-delta
// estimate.
func (c *Client) RealizedPnLSince(ctx context.Context, symbol string, since time.Time) (float64, bool, error) {
	sum, n, err := c.incomeSum(ctx, symbol, "REALIZED_PNL", since)
	if err != nil {
		return 0, false, fmt.Errorf("binance: realized pnl: %w", err)
	}
	return sum, n > 0, nil
}

// FundingFeesSince sums FUNDING_FEE income entries since the given time.
func (c *Client) FundingFeesSince(ctx context.Context, symbol string, since time.Time) (float64, error) {
	sum, _, err := c.incomeSum(ctx, symbol, "FUNDING_FEE", since)
	if err != nil {
		return 0, fmt.Errorf("binance: funding fees: %w", err)
	}
	return sum, nil
}

// IncomeSummarySince aggregates realized PnL, commission, and funding over
// the window, the exchange-truth figure used for the account report.
func (c *Client) IncomeSummarySince(ctx context.Context, since time.Time) (domain.IncomeSummary, error) {
	var summary domain.IncomeSummary

	realized, _, err := c.incomeSum(ctx, "", "REALIZED_PNL", since)
	if err != nil {
		return summary, fmt.Errorf("binance: income summary: %w", err)
	}
	commission, _, err := c.incomeSum(ctx, "", "COMMISSION", since)
	if err != nil {
		return summary, fmt.Errorf("binance: income summary: %w", err)
	}
	funding, _, err := c.incomeSum(ctx, "", "FUNDING_FEE", since)
	if err != nil {
		return summary, fmt.Errorf("binance: income summary: %w", err)
	}

	summary.RealizedPnL = realized
	summary.Commission = commission
	summary.FundingFees = funding
	return summary, nil
}

// OrderFees sums the commission paid on an order's fills. Fee display is
// non-critical: unknown or unreachable fees report as zero, not as an error.
func (c *Client) OrderFees(ctx context.Context, symbol, orderID string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v1/userTrades", params)
	if err != nil {
		return 0, nil
	}

	var fills []struct {
		Commission string `json:"commission"`
	}
	if err := json.Unmarshal(body, &fills); err != nil {
		return 0, nil
	}

	var fees float64
	for _, f := range fills {
		fees += parseFloat(f.Commission)
	}
	return fees, nil
}

// RestingStopOrders returns the protective orders currently resting on the
// exchange for symbol. A stop that fired or was cancelled out-of-band simply
// does not appear.
func (c *Client) RestingStopOrders(ctx context.Context, symbol string) ([]domain.RestingOrder, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v1/openOrders", params)
	if err != nil {
		return nil, fmt.Errorf("binance: open orders: %w", err)
	}

	var rows []struct {
		OrderID    int64  `json:"orderId"`
		Type       string `json:"type"`
		Side       string `json:"side"`
		StopPrice  string `json:"stopPrice"`
		PriceRate  string `json:"priceRate"`
		ReduceOnly bool   `json:"reduceOnly"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("binance: decode open orders: %w", err)
	}

	var orders []domain.RestingOrder
	for _, row := range rows {
		if row.Type != "STOP_MARKET" && row.Type != "TRAILING_STOP_MARKET" {
			continue
		}
		orders = append(orders, domain.RestingOrder{
			OrderID:      strconv.FormatInt(row.OrderID, 10),
			Type:         row.Type,
			Side:         domain.OrderSide(row.Side),
			StopPrice:    parseFloat(row.StopPrice),
			CallbackRate: parseFloat(row.PriceRate),
			ReduceOnly:   row.ReduceOnly,
		})
	}
	return orders, nil
}

func (c *Client) formatQuantity(qty float64) string {
	return strconv.FormatFloat(c.RoundQuantity(qty), 'f', int(c.qtyScale), 64)
}

func (c *Client) formatPrice(price float64) string {
	return strconv.FormatFloat(c.RoundPrice(price), 'f', int(c.priceScale), 64)
}

func normalizeMarginType(s string) string {
	switch s {
	case "isolated", "ISOLATED":
		return "ISOLATED"
	default:
		return "CROSS"
	}
}
