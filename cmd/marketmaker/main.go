// cmd/marketmaker/main.go

// A simple two-sided market maker for GRVT. It quotes mid ± spread/2 on
// every book update that moves the mid, re-quotes the filled side on
// fill, tracks net position, flips to reduce-only near the position
// limit, and cancels all open orders on shutdown.
//
// Intentionally simple: it demonstrates the full SDK surface, not a
// profitable strategy.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/yodablocks/grvt-sdk/auth"
	"github.com/yodablocks/grvt-sdk/config"
	"github.com/yodablocks/grvt-sdk/grvt"
	"github.com/yodablocks/grvt-sdk/signing"
	"github.com/yodablocks/grvt-sdk/types"
	"github.com/yodablocks/grvt-sdk/ws"
)

// requoteThreshold suppresses re-quoting on sub-tick mid moves so the
// maker doesn't thrash the order book.
var requoteThreshold = decimal.RequireFromString("0.5")

type maker struct {
	client *grvt.Client
	cfg    *config.Config
	env    auth.Environment
	nonce  *signing.Nonce

	spread      decimal.Decimal
	quoteSize   decimal.Decimal
	maxPosition decimal.Decimal

	mu       sync.Mutex
	mid      decimal.Decimal
	hasMid   bool
	bidID    string
	askID    string
	position decimal.Decimal // net, + long - short
}

func newMaker(client *grvt.Client, cfg *config.Config, env auth.Environment) (*maker, error) {
	spread, err := decimal.NewFromString(cfg.Maker.Spread)
	if err != nil {
		return nil, err
	}
	size, err := decimal.NewFromString(cfg.Maker.QuoteSize)
	if err != nil {
		return nil, err
	}
	maxPos, err := decimal.NewFromString(cfg.Maker.MaxPosition)
	if err != nil {
		return nil, err
	}
	return &maker{
		client:      client,
		cfg:         cfg,
		env:         env,
		nonce:       signing.NewNonce(),
		spread:      spread,
		quoteSize:   size,
		maxPosition: maxPos,
	}, nil
}

// onBook re-quotes both sides when the mid moved enough to matter.
func (m *maker) onBook(ctx context.Context, book *types.Orderbook) {
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return
	}
	bestBid, err := decimal.NewFromString(book.Bids[0].Price)
	if err != nil {
		return
	}
	bestAsk, err := decimal.NewFromString(book.Asks[0].Price)
	if err != nil {
		return
	}
	mid := bestBid.Add(bestAsk).Div(decimal.NewFromInt(2))

	m.mu.Lock()
	if m.hasMid && mid.Sub(m.mid).Abs().LessThan(requoteThreshold) {
		m.mu.Unlock()
		return
	}
	m.mid = mid
	m.hasMid = true
	m.mu.Unlock()

	log.Info().Stringer("mid", mid).Stringer("bid", bestBid).Stringer("ask", bestAsk).Msg("Mid updated")
	m.requote(ctx)
}

// onFill updates the net position and immediately re-quotes the side
// that just traded.
func (m *maker) onFill(ctx context.Context, fill *types.Fill) {
	if fill.Instrument != m.cfg.Instrument {
		return
	}
	qty, err := decimal.NewFromString(fill.Size)
	if err != nil {
		return
	}

	m.mu.Lock()
	if fill.Side == types.SideBuy {
		m.position = m.position.Add(qty)
		m.bidID = ""
	} else {
		m.position = m.position.Sub(qty)
		m.askID = ""
	}
	position := m.position
	m.mu.Unlock()

	log.Info().
		Stringer("side", fill.Side).
		Str("size", fill.Size).
		Str("price", fill.Price).
		Stringer("position", position).
		Msg("Fill")
	m.requote(ctx)
}

func (m *maker) requote(ctx context.Context) {
	m.mu.Lock()
	if !m.hasMid {
		m.mu.Unlock()
		return
	}
	half := m.spread.Div(decimal.NewFromInt(2))
	bidPrice := m.mid.Sub(half)
	askPrice := m.mid.Add(half)
	m.mu.Unlock()

	m.refreshSide(ctx, true, bidPrice)
	m.refreshSide(ctx, false, askPrice)
}

func (m *maker) refreshSide(ctx context.Context, isBuy bool, price decimal.Decimal) {
	m.mu.Lock()
	liveID := m.askID
	if isBuy {
		liveID = m.bidID
	}
	position := m.position
	m.mu.Unlock()

	if liveID != "" {
		m.cancel(ctx, liveID)
		m.setOrderID(isBuy, "")
	}

	// Stop quoting the side that would push exposure past the limit;
	// quote reduce-only when the new order shrinks an existing position.
	reduceOnly := false
	if isBuy {
		if position.GreaterThanOrEqual(m.maxPosition) {
			log.Info().Msg("Position limit reached (long); skipping bid")
			return
		}
		reduceOnly = position.IsNegative()
	} else {
		if position.LessThanOrEqual(m.maxPosition.Neg()) {
			log.Info().Msg("Position limit reached (short); skipping ask")
			return
		}
		reduceOnly = position.IsPositive()
	}

	orderID, ok := m.placeOrder(ctx, isBuy, price, reduceOnly)
	if ok {
		m.setOrderID(isBuy, orderID)
	}
}

func (m *maker) setOrderID(isBuy bool, id string) {
	m.mu.Lock()
	if isBuy {
		m.bidID = id
	} else {
		m.askID = id
	}
	m.mu.Unlock()
}

func (m *maker) placeOrder(ctx context.Context, isBuy bool, price decimal.Decimal, reduceOnly bool) (string, bool) {
	side := "ASK"
	if isBuy {
		side = "BID"
	}

	order := &types.Order{
		SubAccountID: m.cfg.SubAccountID,
		TimeInForce:  types.TimeInForceGoodTillTime,
		// Short expiry: quotes die on the exchange if we lose the
		// connection before we can cancel them.
		Expiration: time.Now().Add(m.cfg.Maker.QuoteTTL).UnixNano(),
		Legs: []types.OrderLeg{{
			InstrumentHash: m.cfg.InstrumentHash,
			Size:           m.quoteSize.String(),
			LimitPrice:     price.RoundDown(1).StringFixed(1), // round to tick
			IsBuyingAsset:  isBuy,
		}},
		Metadata: types.OrderMetadata{
			ClientOrderID: m.nonce.Next(),
			CreateTime:    time.Now().UnixNano(),
		},
		PostOnly:   true, // maker only: reject anything that would cross
		ReduceOnly: reduceOnly,
	}

	// Never reuse a nonce on a re-quote: each signature is unique.
	if _, err := signing.SignOrder(order, m.cfg.PrivateKey, m.env.ChainID(), m.cfg.VerifyingContract, m.nonce.Next()); err != nil {
		log.Warn().Err(err).Str("side", side).Msg("Order signing failed")
		return "", false
	}

	resp, err := m.client.Rest.CreateOrder(ctx, order)
	if err != nil {
		log.Warn().Err(err).Str("side", side).Msg("Failed to place quote")
		return "", false
	}
	log.Info().
		Str("side", side).
		Stringer("size", m.quoteSize).
		Stringer("price", price).
		Str("order_id", resp.OrderID).
		Stringer("status", resp.Status).
		Msg("Quote placed")
	return resp.OrderID, true
}

func (m *maker) cancel(ctx context.Context, orderID string) {
	if _, err := m.client.Rest.CancelOrder(ctx, m.cfg.SubAccountID, orderID); err != nil {
		log.Warn().Err(err).Str("order_id", orderID).Msg("Failed to cancel quote")
	}
}

// cancelAll is the shutdown path: no quote may outlive the process.
func (m *maker) cancelAll(ctx context.Context) {
	log.Info().Msg("Cancelling all open orders")
	resp, err := m.client.Rest.CancelAllOrders(ctx, m.cfg.SubAccountID, nil)
	if err != nil {
		log.Warn().Err(err).Msg("cancel_all_orders failed")
		return
	}
	log.Info().Int("cancelled", resp.NumCancelled).Msg("Open orders cancelled")
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log.Logger = log.Logger.Level(cfg.ZerologLevel())
	if err := cfg.ValidateTrading(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	env, _ := cfg.Env()

	client := grvt.New(cfg.APIKey, env, grvt.WithLogger(log.Logger))
	defer client.Close()

	m, err := newMaker(client, cfg, env)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid maker parameters")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Public book stream on one socket, private fills on another.
	marketWS := ws.New(client.Auth, ws.WithMarketData(true), ws.WithLogger(log.Logger))
	marketWS.Subscribe("book."+cfg.Instrument, func(v any) {
		if book, ok := v.(*types.Orderbook); ok {
			m.onBook(ctx, book)
		}
	}, map[string]any{"depth": 10}, ws.DecodeOrderbook)

	fillsWS := ws.New(client.Auth, ws.WithMarketData(false), ws.WithLogger(log.Logger))
	fillsWS.Subscribe("fills."+cfg.Instrument, func(v any) {
		if fill, ok := v.(*types.Fill); ok {
			m.onFill(ctx, fill)
		}
	}, nil, ws.DecodeFill)

	go marketWS.Run(ctx)
	go fillsWS.Run(ctx)

	log.Info().
		Str("instrument", cfg.Instrument).
		Str("spread", cfg.Maker.Spread).
		Str("quote_size", cfg.Maker.QuoteSize).
		Str("max_position", cfg.Maker.MaxPosition).
		Msg("Market maker started")

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh
	log.Info().Msg("Shutting down...")

	marketWS.Close()
	fillsWS.Close()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	m.cancelAll(shutdownCtx)
}
