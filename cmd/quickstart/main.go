// cmd/quickstart/main.go

// End-to-end demo of the GRVT SDK: authenticate, fetch market data, build
// and sign an order, submit it over REST, then stream live events over
// both WebSocket endpoints for 15 seconds.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yodablocks/grvt-sdk/auth"
	"github.com/yodablocks/grvt-sdk/config"
	"github.com/yodablocks/grvt-sdk/grvt"
	"github.com/yodablocks/grvt-sdk/signing"
	"github.com/yodablocks/grvt-sdk/types"
	"github.com/yodablocks/grvt-sdk/ws"
)

const wsDemoDuration = 15 * time.Second

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

	client := grvt.New(cfg.APIKey, env, grvt.WithLogger(log.Logger), grvt.WithMarketData(true))
	defer client.Close()

	restDemo(client, cfg, env)
	wsDemo(client.Auth, cfg)
}

func restDemo(client *grvt.Client, cfg *config.Config, env auth.Environment) {
	log.Info().Msg("=== REST demo ===")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	book, err := client.Rest.GetOrderbook(ctx, cfg.Instrument, 5)
	if err != nil {
		log.Warn().Err(err).Msg("get_orderbook failed")
	} else if len(book.Bids) > 0 && len(book.Asks) > 0 {
		log.Info().
			Str("best_bid", book.Bids[0].Price).
			Str("best_ask", book.Asks[0].Price).
			Msg("Orderbook top")
	} else {
		log.Info().Msg("Orderbook is empty")
	}

	openOrders, err := client.Rest.GetOpenOrders(ctx, cfg.SubAccountID, nil)
	if err != nil {
		log.Warn().Err(err).Msg("get_open_orders failed")
	} else {
		log.Info().Int("count", len(openOrders)).Msg("Open orders")
	}

	// A post-only limit buy far below market: it rests, never fills.
	order := &types.Order{
		SubAccountID: cfg.SubAccountID,
		TimeInForce:  types.TimeInForceGoodTillTime,
		Expiration:   time.Now().Add(time.Hour).UnixNano(),
		Legs: []types.OrderLeg{{
			InstrumentHash: cfg.InstrumentHash,
			Size:           "0.001",
			LimitPrice:     "50000.0",
			IsBuyingAsset:  true,
		}},
		Metadata: types.NewOrderMetadata(),
		PostOnly: true,
	}
	if err := order.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Order failed validation")
	}

	sig, err := signing.SignOrder(order, cfg.PrivateKey, env.ChainID(), cfg.VerifyingContract, 0)
	if err != nil {
		log.Fatal().Err(err).Msg("Order signing failed")
	}
	log.Info().Str("sig_prefix", sig[:20]).Msg("Order signed")

	resp, err := client.Rest.CreateOrder(ctx, order)
	if err != nil {
		log.Warn().Err(err).Msg("create_order failed (expected with placeholder credentials)")
	} else {
		log.Info().Str("order_id", resp.OrderID).Stringer("status", resp.Status).Msg("Order submitted")
	}

	summary, err := client.Rest.GetAccountSummary(ctx, cfg.SubAccountID)
	if err != nil {
		log.Warn().Err(err).Msg("get_account_summary failed")
	} else {
		log.Info().
			Str("equity", summary.TotalEquity).
			Str("available_margin", summary.AvailableMargin).
			Int("positions", len(summary.Positions)).
			Msg("Account summary")
	}
}

func wsDemo(session *auth.Session, cfg *config.Config) {
	log.Info().Dur("duration", wsDemoDuration).Msg("=== WebSocket demo ===")
	ctx, cancel := context.WithTimeout(context.Background(), wsDemoDuration)
	defer cancel()

	// Public market data on one socket, private order updates on another.
	marketWS := ws.New(session, ws.WithMarketData(true), ws.WithLogger(log.Logger))
	marketWS.Subscribe("trades."+cfg.Instrument, func(v any) {
		if t, ok := v.(*types.Trade); ok {
			log.Info().Str("price", t.Price).Str("size", t.Size).Stringer("side", t.Side).Msg("[trade]")
		}
	}, nil, ws.DecodeTrade)
	marketWS.Subscribe("book."+cfg.Instrument, func(v any) {
		if b, ok := v.(*types.Orderbook); ok && len(b.Bids) > 0 && len(b.Asks) > 0 {
			log.Info().Str("bid", b.Bids[0].Price).Str("ask", b.Asks[0].Price).Msg("[book]")
		}
	}, map[string]any{"depth": 10}, ws.DecodeOrderbook)

	tradingWS := ws.New(session, ws.WithMarketData(false), ws.WithLogger(log.Logger))
	tradingWS.Subscribe("orders", func(v any) {
		if u, ok := v.(*types.OrderUpdate); ok {
			log.Info().Str("order_id", u.OrderID).Stringer("status", u.Status).Msg("[order]")
		}
	}, nil, ws.DecodeOrderUpdate)

	done := make(chan struct{}, 2)
	go func() { marketWS.Run(ctx); done <- struct{}{} }()
	go func() { tradingWS.Run(ctx); done <- struct{}{} }()
	<-done
	<-done
	marketWS.Close()
	tradingWS.Close()
	log.Info().Msg("WebSocket demo complete")
}
