// rest/client.go
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"github.com/yodablocks/grvt-sdk/auth"
	"github.com/yodablocks/grvt-sdk/types"
)

// All GRVT endpoints are POST with JSON bodies. Private (order management)
// endpoints need the session cookie; market data is public. Retryable
// statuses get exponential backoff before the typed error surfaces.

const (
	defaultTimeout = 10 * time.Second
	maxAttempts    = 4 // first request + 3 retries
	retryBaseDelay = 500 * time.Millisecond
)

var retryStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// ErrUnsignedOrder is returned by CreateOrder when the order carries no
// signature.
var ErrUnsignedOrder = errors.New("order signature must be set before submitting")

// APIError is returned when GRVT's REST API answers with an error status
// after retries are exhausted.
type APIError struct {
	StatusCode int
	Body       string
	Method     string
	Path       string
}

func (e *APIError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("grvt api error [%d] %s %s: %s", e.StatusCode, e.Method, e.Path, e.Body)
	}
	return fmt.Sprintf("grvt api error [%d]: %s", e.StatusCode, e.Body)
}

// Filter narrows order and instrument queries. Zero fields are omitted
// from the request body.
type Filter struct {
	Kind  types.Kind
	Base  string
	Quote string
}

func (f *Filter) apply(body map[string]any) {
	if f == nil {
		return
	}
	if f.Kind != 0 {
		body["kind"] = []int{int(f.Kind)}
	}
	if f.Base != "" {
		body["base"] = []string{f.Base}
	}
	if f.Quote != "" {
		body["quote"] = []string{f.Quote}
	}
}

// Client is the GRVT REST client. It shares one auth.Session with the
// WebSocket client so both ride a single cookie.
type Client struct {
	session    *auth.Session
	httpClient *http.Client
	logger     zerolog.Logger
	retryDelay time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a REST client on top of an authenticated session.
func NewClient(session *auth.Session, opts ...Option) *Client {
	c := &Client{
		session:    session,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zerolog.Nop(),
		retryDelay: retryBaseDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// request POSTs body to path, retrying retryable statuses with exponential
// backoff. public selects the market-data base URL without the cookie.
func (c *Client) request(ctx context.Context, path string, body any, public bool) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	base := c.session.BaseURL()
	if public {
		base = c.session.MarketURL()
	}
	url := base + path

	var out json.RawMessage
	attempt := 0
	err = retry.Do(
		func() error {
			attempt++
			c.logger.Debug().Str("url", url).Int("attempt", attempt).Msg("POST")

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/json")
			if !public {
				cookie, err := c.session.Cookie(ctx)
				if err != nil {
					return retry.Unrecoverable(fmt.Errorf("authenticate: %w", err))
				}
				req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: cookie})
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			defer resp.Body.Close()
			respBody, err := io.ReadAll(resp.Body)
			if err != nil {
				return retry.Unrecoverable(err)
			}

			apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(respBody), Method: http.MethodPost, Path: path}
			if retryStatuses[resp.StatusCode] {
				c.logger.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("Retryable response; backing off")
				return apiErr
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(apiErr)
			}
			out = respBody
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(maxAttempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateOrder submits a signed order. The order's Signature must already
// be set by signing.SignOrder.
func (c *Client) CreateOrder(ctx context.Context, order *types.Order) (*types.CreateOrderResponse, error) {
	if order.Signature == "" {
		return nil, ErrUnsignedOrder
	}
	raw, err := c.request(ctx, "/full/v1/order", orderToWire(order), false)
	if err != nil {
		return nil, err
	}
	var resp struct {
		OrderID string `json:"order_id"`
		Status  int    `json:"status"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(unwrapResult(raw), &resp); err != nil {
		return nil, fmt.Errorf("parse create order response: %w", err)
	}
	if resp.Status == 0 {
		resp.Status = int(types.OrderStatusOpen)
	}
	return &types.CreateOrderResponse{
		OrderID: resp.OrderID,
		Status:  types.OrderStatus(resp.Status),
		Reason:  resp.Reason,
	}, nil
}

// CancelOrder cancels one open order by ID.
func (c *Client) CancelOrder(ctx context.Context, subAccountID int64, orderID string) (*types.CancelOrderResponse, error) {
	body := map[string]any{
		"sub_account_id": strconv.FormatInt(subAccountID, 10),
		"order_id":       orderID,
	}
	raw, err := c.request(ctx, "/full/v1/cancel_order", body, false)
	if err != nil {
		return nil, err
	}
	var resp struct {
		OrderID *string `json:"order_id"`
		Success *bool   `json:"success"`
	}
	if err := json.Unmarshal(unwrapResult(raw), &resp); err != nil {
		return nil, fmt.Errorf("parse cancel order response: %w", err)
	}
	out := &types.CancelOrderResponse{OrderID: orderID, Success: true}
	if resp.OrderID != nil {
		out.OrderID = *resp.OrderID
	}
	if resp.Success != nil {
		out.Success = *resp.Success
	}
	return out, nil
}

// CancelAllOrders cancels every open order for a sub-account, optionally
// narrowed by filter.
func (c *Client) CancelAllOrders(ctx context.Context, subAccountID int64, filter *Filter) (*types.CancelAllOrdersResponse, error) {
	body := map[string]any{"sub_account_id": strconv.FormatInt(subAccountID, 10)}
	filter.apply(body)
	raw, err := c.request(ctx, "/full/v1/cancel_all_orders", body, false)
	if err != nil {
		return nil, err
	}
	var resp struct {
		NumCancelled int `json:"num_cancelled"`
	}
	if err := json.Unmarshal(unwrapResult(raw), &resp); err != nil {
		return nil, fmt.Errorf("parse cancel all response: %w", err)
	}
	return &types.CancelAllOrdersResponse{NumCancelled: resp.NumCancelled}, nil
}

// GetOpenOrders returns all open orders for a sub-account.
func (c *Client) GetOpenOrders(ctx context.Context, subAccountID int64, filter *Filter) ([]types.Order, error) {
	body := map[string]any{"sub_account_id": strconv.FormatInt(subAccountID, 10)}
	filter.apply(body)
	raw, err := c.request(ctx, "/full/v1/open_orders", body, false)
	if err != nil {
		return nil, err
	}
	var resp struct {
		OpenOrders []json.RawMessage `json:"open_orders"`
	}
	if err := json.Unmarshal(unwrapResult(raw), &resp); err != nil {
		return nil, fmt.Errorf("parse open orders response: %w", err)
	}
	orders := make([]types.Order, 0, len(resp.OpenOrders))
	for _, o := range resp.OpenOrders {
		order, err := parseOrder(o)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// GetOrder fetches a single order by ID from order history. A missing
// order surfaces as a 404 *APIError.
func (c *Client) GetOrder(ctx context.Context, subAccountID int64, orderID string) (*types.Order, error) {
	const path = "/full/v1/order_history"
	body := map[string]any{
		"sub_account_id": strconv.FormatInt(subAccountID, 10),
		"order_id":       orderID,
	}
	raw, err := c.request(ctx, path, body, false)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Orders []json.RawMessage `json:"orders"`
	}
	if err := json.Unmarshal(unwrapResult(raw), &resp); err != nil {
		return nil, fmt.Errorf("parse order history response: %w", err)
	}
	if len(resp.Orders) == 0 {
		return nil, &APIError{
			StatusCode: http.StatusNotFound,
			Body:       fmt.Sprintf("order %q not found", orderID),
			Method:     http.MethodPost,
			Path:       path,
		}
	}
	order, err := parseOrder(resp.Orders[0])
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetAccountSummary fetches equity, margin, and positions for a
// sub-account. Fields the API omits default to "0".
func (c *Client) GetAccountSummary(ctx context.Context, subAccountID int64) (*types.AccountSummary, error) {
	body := map[string]any{"sub_account_id": strconv.FormatInt(subAccountID, 10)}
	raw, err := c.request(ctx, "/full/v1/account_summary", body, false)
	if err != nil {
		return nil, err
	}
	var resp struct {
		TotalEquity       string           `json:"total_equity"`
		AvailableMargin   string           `json:"available_margin"`
		InitialMargin     string           `json:"initial_margin"`
		MaintenanceMargin string           `json:"maintenance_margin"`
		Positions         []types.Position `json:"positions"`
	}
	if err := json.Unmarshal(unwrapResult(raw), &resp); err != nil {
		return nil, fmt.Errorf("parse account summary response: %w", err)
	}
	zeroDefault := func(s string) string {
		if s == "" {
			return "0"
		}
		return s
	}
	return &types.AccountSummary{
		SubAccountID:      subAccountID,
		TotalEquity:       zeroDefault(resp.TotalEquity),
		AvailableMargin:   zeroDefault(resp.AvailableMargin),
		InitialMargin:     zeroDefault(resp.InitialMargin),
		MaintenanceMargin: zeroDefault(resp.MaintenanceMargin),
		Positions:         resp.Positions,
	}, nil
}

// GetOrderbook fetches the current L2 book for an instrument (public).
func (c *Client) GetOrderbook(ctx context.Context, instrument string, depth int) (*types.Orderbook, error) {
	body := map[string]any{"instrument": instrument, "depth": depth}
	raw, err := c.request(ctx, "/full/v1/book", body, true)
	if err != nil {
		return nil, err
	}
	book := &types.Orderbook{}
	if err := json.Unmarshal(unwrapResult(raw), book); err != nil {
		return nil, fmt.Errorf("parse orderbook response: %w", err)
	}
	book.Instrument = instrument
	return book, nil
}

// GetRecentTrades fetches the most recent public trades for an instrument.
func (c *Client) GetRecentTrades(ctx context.Context, instrument string, limit int) ([]types.Trade, error) {
	body := map[string]any{"instrument": instrument, "limit": limit}
	raw, err := c.request(ctx, "/full/v1/trades", body, true)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Trades []struct {
			TradeID      string    `json:"trade_id"`
			Price        string    `json:"price"`
			Size         string    `json:"size"`
			IsTakerBuyer bool      `json:"is_taker_buyer"`
			CreatedTime  flexInt64 `json:"created_time"`
		} `json:"trades"`
	}
	if err := json.Unmarshal(unwrapResult(raw), &resp); err != nil {
		return nil, fmt.Errorf("parse trades response: %w", err)
	}
	trades := make([]types.Trade, len(resp.Trades))
	for i, t := range resp.Trades {
		side := types.SideSell
		if t.IsTakerBuyer {
			side = types.SideBuy
		}
		trades[i] = types.Trade{
			TradeID:    t.TradeID,
			Instrument: instrument,
			Price:      t.Price,
			Size:       t.Size,
			Side:       side,
			Timestamp:  int64(t.CreatedTime),
		}
	}
	return trades, nil
}

// GetInstruments lists active instruments (public), optionally narrowed by
// filter.
func (c *Client) GetInstruments(ctx context.Context, filter *Filter) ([]types.Instrument, error) {
	body := map[string]any{"is_active": []bool{true}}
	filter.apply(body)
	raw, err := c.request(ctx, "/full/v1/instruments", body, true)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Instruments []types.Instrument `json:"instruments"`
	}
	if err := json.Unmarshal(unwrapResult(raw), &resp); err != nil {
		return nil, fmt.Errorf("parse instruments response: %w", err)
	}
	return resp.Instruments, nil
}
