// rest/client_test.go
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yodablocks/grvt-sdk/auth"
	"github.com/yodablocks/grvt-sdk/types"
)

var testHash = "0x" + strings.Repeat("ab", 32)

// newTestClient spins up a server that answers the login endpoint plus
// whatever handle registers, and a client with near-zero retry delay.
func newTestClient(t *testing.T, handle http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/api_key/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: auth.CookieName, Value: "session-cookie"})
		w.Write([]byte(`{}`))
	})
	if handle != nil {
		mux.HandleFunc("/full/v1/", handle)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	session := auth.NewSession("test-key", auth.Testnet,
		auth.WithBaseURL(srv.URL), auth.WithMarketURL(srv.URL))
	c := NewClient(session)
	c.retryDelay = time.Millisecond
	return c, srv
}

func signedOrder() *types.Order {
	return &types.Order{
		SubAccountID: 42,
		TimeInForce:  types.TimeInForceGoodTillTime,
		Expiration:   1_700_000_000_000_000_000,
		Legs: []types.OrderLeg{{
			InstrumentHash: testHash,
			Size:           "0.001",
			LimitPrice:     "50000.0",
			IsBuyingAsset:  true,
		}},
		Metadata:  types.OrderMetadata{ClientOrderID: 7, CreateTime: 1_700_000_000_000_000_001},
		PostOnly:  true,
		Signature: "0x" + strings.Repeat("cd", 65),
	}
}

func TestCreateOrderSerializationAndResultUnwrap(t *testing.T) {
	var body map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/full/v1/order", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))

		cookie, err := r.Cookie(auth.CookieName)
		require.NoError(t, err, "private endpoint must carry the session cookie")
		assert.Equal(t, "session-cookie", cookie.Value)

		w.Write([]byte(`{"result":{"order_id":"ord-1","status":2}}`))
	})

	resp, err := c.CreateOrder(context.Background(), signedOrder())
	require.NoError(t, err)
	assert.Equal(t, "ord-1", resp.OrderID)
	assert.Equal(t, types.OrderStatusOpen, resp.Status)

	// int64 fields are stringified; legs use the "instrument" key.
	assert.Equal(t, "42", body["sub_account_id"])
	assert.Equal(t, float64(1), body["time_in_force"])
	assert.Equal(t, "1700000000000000000", body["expiration"])
	legs := body["legs"].([]any)
	leg := legs[0].(map[string]any)
	assert.Equal(t, testHash, leg["instrument"])
	assert.Equal(t, "0.001", leg["size"])
	meta := body["metadata"].(map[string]any)
	assert.Equal(t, "1700000000000000001", meta["create_time"])
	assert.NotEmpty(t, body["signature"])
}

func TestCreateOrderRequiresSignature(t *testing.T) {
	c, _ := newTestClient(t, nil)
	order := signedOrder()
	order.Signature = ""
	_, err := c.CreateOrder(context.Background(), order)
	require.ErrorIs(t, err, ErrUnsignedOrder)
}

func TestRetryThenSuccess(t *testing.T) {
	var calls atomic.Int64
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"result":{"instrument":"BTC_USDT_Perp","bids":[],"asks":[],"sequence_number":9}}`))
	})

	book, err := c.GetOrderbook(context.Background(), "BTC_USDT_Perp", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), calls.Load())
	assert.Equal(t, uint64(9), book.SequenceNumber)
}

func TestRetriesExhaustedReturnAPIError(t *testing.T) {
	var calls atomic.Int64
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusTooManyRequests)
	})

	_, err := c.GetOrderbook(context.Background(), "BTC_USDT_Perp", 10)
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, int64(maxAttempts), calls.Load())
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int64
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"bad instrument"}`, http.StatusBadRequest)
	})

	_, err := c.GetOrderbook(context.Background(), "NOPE", 10)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, http.MethodPost, apiErr.Method)
	assert.Equal(t, "/full/v1/book", apiErr.Path)
	assert.Contains(t, apiErr.Body, "bad instrument")
	assert.Contains(t, apiErr.Error(), "grvt api error [400] POST /full/v1/book")
	assert.Equal(t, int64(1), calls.Load())
}

func TestGetOpenOrdersParsesLegInstrumentKey(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"open_orders":[
			{"order_id":"ord-7","sub_account_id":"42","time_in_force":1,"expiration":"123",
			 "legs":[{"instrument":"` + testHash + `","size":"0.5","limit_price":"100.0","is_buying_asset":false}],
			 "metadata":{"client_order_id":9,"create_time":"456"}}
		]}}`))
	})

	orders, err := c.GetOpenOrders(context.Background(), 42, nil)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "ord-7", orders[0].OrderID)
	assert.Equal(t, int64(42), orders[0].SubAccountID)
	assert.Equal(t, int64(123), orders[0].Expiration)
	assert.Equal(t, testHash, orders[0].Legs[0].InstrumentHash)
	assert.Equal(t, uint32(9), orders[0].Metadata.ClientOrderID)
}

func TestGetOrderNotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"orders":[]}}`))
	})

	_, err := c.GetOrder(context.Background(), 42, "ghost")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "ghost")
}

func TestCancelOrderDefaults(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{}}`)) // no order_id, no success
	})

	resp, err := c.CancelOrder(context.Background(), 42, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "ord-1", resp.OrderID)
	assert.True(t, resp.Success)
}

func TestCancelAllOrdersFilterBody(t *testing.T) {
	var body map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Write([]byte(`{"result":{"num_cancelled":3}}`))
	})

	resp, err := c.CancelAllOrders(context.Background(), 42,
		&Filter{Kind: types.KindPerpetual, Base: "BTC", Quote: "USDT"})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.NumCancelled)
	assert.Equal(t, "42", body["sub_account_id"])
	assert.Equal(t, []any{float64(1)}, body["kind"])
	assert.Equal(t, []any{"BTC"}, body["base"])
	assert.Equal(t, []any{"USDT"}, body["quote"])
}

func TestGetAccountSummaryZeroDefaults(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"total_equity":"1000.5"}}`))
	})

	summary, err := c.GetAccountSummary(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), summary.SubAccountID)
	assert.Equal(t, "1000.5", summary.TotalEquity)
	assert.Equal(t, "0", summary.AvailableMargin)
	assert.Equal(t, "0", summary.MaintenanceMargin)
	assert.Empty(t, summary.Positions)
}

func TestGetRecentTradesSideMapping(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Public endpoint: no cookie expected.
		_, err := r.Cookie(auth.CookieName)
		assert.Error(t, err, "public endpoint must not carry the session cookie")
		w.Write([]byte(`{"result":{"trades":[
			{"trade_id":"t1","price":"100","size":"0.1","is_taker_buyer":true,"created_time":"111"},
			{"trade_id":"t2","price":"99","size":"0.2","is_taker_buyer":false,"created_time":222}
		]}}`))
	})

	trades, err := c.GetRecentTrades(context.Background(), "BTC_USDT_Perp", 100)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, types.SideBuy, trades[0].Side)
	assert.Equal(t, int64(111), trades[0].Timestamp)
	assert.Equal(t, types.SideSell, trades[1].Side)
	assert.Equal(t, int64(222), trades[1].Timestamp)
	assert.Equal(t, "BTC_USDT_Perp", trades[1].Instrument)
}

func TestGetInstruments(t *testing.T) {
	var body map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Write([]byte(`{"result":{"instruments":[
			{"instrument":"BTC_USDT_Perp","instrument_hash":"` + testHash + `","base":"BTC","quote":"USDT",
			 "kind":1,"base_decimals":8,"quote_decimals":6,"tick_size":"0.1","min_size":"0.0001"}
		]}}`))
	})

	instruments, err := c.GetInstruments(context.Background(), &Filter{Base: "BTC"})
	require.NoError(t, err)
	require.Len(t, instruments, 1)
	assert.Equal(t, "BTC_USDT_Perp", instruments[0].Instrument)
	assert.Equal(t, types.KindPerpetual, instruments[0].Kind)
	assert.Equal(t, []any{true}, body["is_active"])
	assert.Equal(t, []any{"BTC"}, body["base"])
	_, hasKind := body["kind"]
	assert.False(t, hasKind, "zero filter fields must be omitted")
}

func TestFlexInt64(t *testing.T) {
	var v struct {
		A flexInt64 `json:"a"`
		B flexInt64 `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"123","b":456}`), &v))
	assert.Equal(t, flexInt64(123), v.A)
	assert.Equal(t, flexInt64(456), v.B)
	require.Error(t, json.Unmarshal([]byte(`{"a":"12x"}`), &v))
}
