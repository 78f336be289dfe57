// grvt/client.go

// Package grvt is the SDK façade: one authenticated session shared by a
// REST client and a WebSocket client.
package grvt

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/yodablocks/grvt-sdk/auth"
	"github.com/yodablocks/grvt-sdk/rest"
	"github.com/yodablocks/grvt-sdk/ws"
)

// Client bundles the three SDK surfaces. Auth holds the session cookie;
// Rest and WS both ride it, so a single login covers everything.
type Client struct {
	Auth *auth.Session
	Rest *rest.Client
	WS   *ws.Client
}

type options struct {
	marketData  bool
	logger      zerolog.Logger
	restTimeout time.Duration
	gapFunc     ws.GapFunc
}

// Option configures the façade.
type Option func(*options)

// WithMarketData selects the public market-data WebSocket endpoint
// (default) or, when false, the private trading endpoint.
func WithMarketData(v bool) Option {
	return func(o *options) { o.marketData = v }
}

// WithLogger sets one logger across auth, REST, and WS.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRESTTimeout overrides the REST per-request timeout.
func WithRESTTimeout(d time.Duration) Option {
	return func(o *options) { o.restTimeout = d }
}

// WithGapFunc sets the WebSocket sequence gap callback.
func WithGapFunc(fn ws.GapFunc) Option {
	return func(o *options) { o.gapFunc = fn }
}

// New builds a client for the given API key and environment.
func New(apiKey string, env auth.Environment, opts ...Option) *Client {
	o := options{
		marketData: true,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	session := auth.NewSession(apiKey, env, auth.WithLogger(o.logger))

	restOpts := []rest.Option{rest.WithLogger(o.logger)}
	if o.restTimeout > 0 {
		restOpts = append(restOpts, rest.WithTimeout(o.restTimeout))
	}

	wsOpts := []ws.Option{
		ws.WithMarketData(o.marketData),
		ws.WithLogger(o.logger),
	}
	if o.gapFunc != nil {
		wsOpts = append(wsOpts, ws.WithGapFunc(o.gapFunc))
	}

	return &Client{
		Auth: session,
		Rest: rest.NewClient(session, restOpts...),
		WS:   ws.New(session, wsOpts...),
	}
}

// Close shuts down the WebSocket client. REST holds no persistent
// resources beyond the shared HTTP client. Idempotent.
func (c *Client) Close() error {
	return c.WS.Close()
}
