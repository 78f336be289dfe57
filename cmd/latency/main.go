// cmd/latency/main.go

// Order submission latency benchmark. Measures two dimensions:
//
//  1. REST round-trip: CreateOrder call to HTTP response
//  2. Fill-to-confirm: order submission to the fill event arriving on
//     the private WebSocket stream
//
// Both run for latency.samples iterations and report P50/P95/P99/max/mean
// in milliseconds. The fill-notify benchmark needs latency.limit_price
// set near the market so orders actually fill; it is skipped below 100.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
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

const (
	orderTTL       = 10 * time.Second // benchmark orders are not meant to rest long
	samplePause    = 50 * time.Millisecond
	fillPause      = 100 * time.Millisecond
	fillWait       = 5 * time.Second
	fillMinPrice   = "100" // below this the orders never fill, skip the bench
	benchOrderSize = "0.001"
)

var fillThreshold = decimal.RequireFromString(fillMinPrice)

type bench struct {
	client *grvt.Client
	cfg    *config.Config
	env    auth.Environment
	nonce  *signing.Nonce
}

func (b *bench) buildOrder(limitPrice string) (*types.Order, error) {
	order := &types.Order{
		SubAccountID: b.cfg.SubAccountID,
		TimeInForce:  types.TimeInForceGoodTillTime,
		Expiration:   time.Now().Add(orderTTL).UnixNano(),
		Legs: []types.OrderLeg{{
			InstrumentHash: b.cfg.InstrumentHash,
			Size:           benchOrderSize,
			LimitPrice:     limitPrice,
			IsBuyingAsset:  true,
		}},
		Metadata: types.OrderMetadata{
			ClientOrderID: b.nonce.Next(),
			CreateTime:    time.Now().UnixNano(),
		},
		PostOnly: true,
	}
	_, err := signing.SignOrder(order, b.cfg.PrivateKey, b.env.ChainID(), b.cfg.VerifyingContract, b.nonce.Next())
	return order, err
}

// restRTT submits n far-from-market orders and times each CreateOrder
// round trip. Every accepted order is cancelled immediately so the
// benchmark leaves nothing resting.
func (b *bench) restRTT(ctx context.Context, n int) []float64 {
	samples := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		order, err := b.buildOrder("1.0")
		if err != nil {
			log.Warn().Err(err).Int("sample", i).Msg("Signing failed")
			continue
		}

		t0 := time.Now()
		resp, err := b.client.Rest.CreateOrder(ctx, order)
		if err != nil {
			log.Warn().Err(err).Int("sample", i).Msg("REST sample failed")
		} else {
			samples = append(samples, float64(time.Since(t0).Microseconds())/1000)
			if resp.OrderID != "" {
				if _, err := b.client.Rest.CancelOrder(ctx, b.cfg.SubAccountID, resp.OrderID); err != nil {
					log.Warn().Err(err).Str("order_id", resp.OrderID).Msg("Cleanup cancel failed")
				}
			}
		}

		select {
		case <-time.After(samplePause): // stay under the rate limit
		case <-ctx.Done():
			return samples
		}
	}
	return samples
}

// fillNotify submits n aggressive orders and times the gap between the
// HTTP response and the matching fill event on the private stream.
func (b *bench) fillNotify(ctx context.Context, n int) []float64 {
	var (
		mu      sync.Mutex
		pending = map[string]time.Time{} // order_id -> submit time
	)
	received := make(chan float64, n)

	client := ws.New(b.client.Auth, ws.WithMarketData(false), ws.WithLogger(log.Logger))
	client.Subscribe("fills."+b.cfg.Instrument, func(v any) {
		fill, ok := v.(*types.Fill)
		if !ok {
			return
		}
		mu.Lock()
		t0, found := pending[fill.OrderID]
		if found {
			delete(pending, fill.OrderID)
		}
		mu.Unlock()
		if found {
			received <- float64(time.Since(t0).Microseconds()) / 1000
		}
	}, nil, ws.DecodeFill)

	wsCtx, wsCancel := context.WithCancel(ctx)
	defer wsCancel()
	go client.Run(wsCtx)
	defer client.Close()

	// Give the socket time to connect before the first submission.
	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
		return nil
	}

	for i := 0; i < n; i++ {
		order, err := b.buildOrder(b.cfg.Latency.LimitPrice)
		if err != nil {
			log.Warn().Err(err).Int("sample", i).Msg("Signing failed")
			continue
		}

		t0 := time.Now()
		resp, err := b.client.Rest.CreateOrder(ctx, order)
		if err != nil {
			log.Warn().Err(err).Int("sample", i).Msg("Fill bench sample failed")
		} else if resp.OrderID != "" {
			mu.Lock()
			pending[resp.OrderID] = t0
			mu.Unlock()
		}

		select {
		case <-time.After(fillPause):
		case <-ctx.Done():
			return nil
		}
	}

	samples := make([]float64, 0, n)
	deadline := time.After(fillWait)
	for {
		mu.Lock()
		outstanding := len(pending)
		mu.Unlock()
		if outstanding == 0 && len(received) == 0 {
			break
		}
		select {
		case ms := <-received:
			samples = append(samples, ms)
		case <-deadline:
			return samples
		case <-ctx.Done():
			return samples
		}
	}
	return samples
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted))*p/100) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

func printStats(label string, samples []float64) {
	if len(samples) == 0 {
		fmt.Printf("  %s: no samples collected\n", label)
		return
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	var sum float64
	for _, s := range sorted {
		sum += s
	}
	fmt.Printf("\n  %s (%d samples)\n", label, len(sorted))
	fmt.Printf("    P50  : %8.1f ms\n", percentile(sorted, 50))
	fmt.Printf("    P95  : %8.1f ms\n", percentile(sorted, 95))
	fmt.Printf("    P99  : %8.1f ms\n", percentile(sorted, 99))
	fmt.Printf("    max  : %8.1f ms\n", sorted[len(sorted)-1])
	fmt.Printf("    mean : %8.1f ms\n", sum/float64(len(sorted)))
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	// Warnings only: benchmark output goes to stdout, noise stays out.
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger().Level(zerolog.WarnLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if err := cfg.ValidateTrading(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	env, _ := cfg.Env()

	client := grvt.New(cfg.APIKey, env, grvt.WithLogger(log.Logger), grvt.WithMarketData(false))
	defer client.Close()

	b := &bench{client: client, cfg: cfg, env: env, nonce: signing.NewNonce()}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("\nGRVT Latency Benchmark")
	fmt.Printf("  env=%s  instrument=%s  samples=%d\n", cfg.Environment, cfg.Instrument, cfg.Latency.Samples)
	fmt.Printf("  limit_price=%s  (raise latency.limit_price for the fill-notify bench)\n\n", cfg.Latency.LimitPrice)

	fmt.Println("Running REST round-trip benchmark...")
	restSamples := b.restRTT(ctx, cfg.Latency.Samples)
	printStats("REST round-trip (submit -> HTTP response)", restSamples)

	fillPrice, err := decimal.NewFromString(cfg.Latency.LimitPrice)
	if err != nil || fillPrice.LessThan(fillThreshold) {
		fmt.Println("\nSkipping fill-notify bench (limit_price too low to fill).")
		fmt.Println("Set latency.limit_price to an at-market price to enable it.")
	} else {
		fmt.Println("\nRunning fill-notify benchmark...")
		fillSamples := b.fillNotify(ctx, cfg.Latency.Samples)
		printStats("Fill notification (submit -> WS fill event)", fillSamples)
	}

	fmt.Println("\nDone.")
}
