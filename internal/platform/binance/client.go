// Package binance is the REST gateway to Binance USDT-M futures. It owns
// request signing, precision normalization, bounded retry for transient
// failures, and the mapping of HTTP errors to the domain error taxonomy.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"github.com/Mmauz1001/trump-trader/internal/domain"
)

const (
	mainnetBaseURL = "https://fapi.binance.com"
	testnetBaseURL = "https://demo-fapi.binance.com"
)

// Config holds the client's credentials and instrument parameters.
type Config struct {
	ApiKey            string
	ApiSecret         string
	BaseURL           string
	Testnet           bool
	RecvWindowMs      int
	Timeout           time.Duration
	MaxRetries        int
	PricePrecision    int // tick size, decimal places (BTCUSDT: 1)
	QuantityPrecision int // step size, decimal places (BTCUSDT: 3)
}

// Client is the REST client for the Binance futures API.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	recvWindow int
	maxRetries int
	priceScale int32
	qtyScale   int32
	httpClient *http.Client
}

// NewClient creates a Binance futures REST client from cfg. When cfg.BaseURL
// is empty the mainnet or testnet default is chosen by cfg.Testnet.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" || baseURL == mainnetBaseURL {
		baseURL = mainnetBaseURL
		if cfg.Testnet {
			baseURL = testnetBaseURL
		}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	recvWindow := cfg.RecvWindowMs
	if recvWindow == 0 {
		recvWindow = 5000
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.ApiKey,
		apiSecret:  cfg.ApiSecret,
		recvWindow: recvWindow,
		maxRetries: cfg.MaxRetries,
		priceScale: int32(cfg.PricePrecision),
		qtyScale:   int32(cfg.QuantityPrecision),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// RoundQuantity rounds a quantity DOWN to the instrument's step size, so a
// rounded order never exceeds the margin the size was computed from.
func (c *Client) RoundQuantity(qty float64) float64 {
	return decimal.NewFromFloat(qty).RoundFloor(c.qtyScale).InexactFloat64()
}

// RoundPrice rounds a price to the instrument's tick size.
func (c *Client) RoundPrice(price float64) float64 {
	return decimal.NewFromFloat(price).Round(c.priceScale).InexactFloat64()
}

// --------------------------------------------------------------------------
// Transport
// --------------------------------------------------------------------------

// apiError is the Binance error body, e.g. {"code":-2019,"msg":"Margin is
// insufficient."}.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// doPublic sends an unsigned request for public market-data endpoints.
func (c *Client) doPublic(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	return c.send(ctx, method, path, params, false)
}

// doSigned sends a request with the timestamp/recvWindow/signature trailer
// required by USER_DATA and TRADE endpoints.
func (c *Client) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	return c.send(ctx, method, path, params, true)
}

func (c *Client) send(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	var body []byte

	attempt := func() error {
		query := c.encodeQuery(params, signed)

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+query, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-MBX-APIKEY", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Transport failure, retryable.
			return fmt.Errorf("http request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if err := c.checkStatus(resp.StatusCode, respBody); err != nil {
			return err
		}

		body = respBody
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxRetries)),
		ctx,
	)
	if err := backoff.Retry(attempt, bo); err != nil {
		var rejected *domain.OrderRejectedError
		if errors.As(err, &rejected) || errors.Is(err, domain.ErrExchangeUnavailable) {
			return nil, err
		}
		// Transient failure that survived every retry.
		return nil, fmt.Errorf("%w: %v", domain.ErrExchangeUnavailable, err)
	}
	return body, nil
}

// encodeQuery builds the final query string, appending the signature trailer
// for signed endpoints. The signature is HMAC-SHA256 over the encoded query.
func (c *Client) encodeQuery(params url.Values, signed bool) string {
	if params == nil {
		params = url.Values{}
	}
	if !signed {
		return params.Encode()
	}

	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.Itoa(c.recvWindow))
	query := params.Encode()

	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(query))
	signature := hex.EncodeToString(mac.Sum(nil))

	return query + "&signature=" + signature
}

// checkStatus maps non-2xx responses to domain errors. Validation rejections
// are permanent and never retried; transport-level failures and rate limits
// are left retryable.
func (c *Client) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		// Rate limited: retry after backoff.
		return fmt.Errorf("binance: rate limited (code %d): %s", apiErr.Code, apiErr.Msg)
	case statusCode >= 500:
		return fmt.Errorf("binance: HTTP %d (code %d): %s", statusCode, apiErr.Code, apiErr.Msg)
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return backoff.Permanent(fmt.Errorf("%w: unauthorized (code %d): %s",
			domain.ErrExchangeUnavailable, apiErr.Code, apiErr.Msg))
	default:
		// Bad parameters, insufficient margin, leverage bounds: the order is
		// rejected, retrying would not help.
		return backoff.Permanent(&domain.OrderRejectedError{
			Code:   apiErr.Code,
			Reason: apiErr.Msg,
		})
	}
}

// parseFloat converts the string-encoded decimals Binance returns. Missing or
// malformed fields parse to zero, matching the exchange's own omission
// semantics for empty positions.
func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
