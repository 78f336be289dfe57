// ws/client.go
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// GRVT's WebSocket API frames everything as JSON text:
//
//	client → server: {"op": "subscribe", "channel": "...", ...params}
//	                 {"op": "unsubscribe", "channel": "..."}
//	server → client: {"channel": "...", "data": {...}, "sequence_number": 42}
//
// The client authenticates with the session cookie, subscribes on connect,
// reconnects with exponential backoff on any disconnect and replays all
// registered subscriptions, and detects per-channel sequence number gaps so
// the consumer can re-sync its state.

const (
	pingInterval = 20 * time.Second
	pongTimeout  = 10 * time.Second

	defaultBackoffBase = time.Second
	defaultBackoffMax  = 60 * time.Second
)

// Handler receives one value per dispatched message: the subscription's
// decoded type, or *Message when no decode tag is set or decoding failed.
type Handler func(v any)

// GapFunc is invoked when a sequence number gap is detected on a channel.
// expected is the number that should have arrived, got the one that did.
type GapFunc func(channel string, expected, got uint64)

// Auth supplies the connection credential and endpoint URLs. Satisfied by
// *auth.Session.
type Auth interface {
	Cookie(ctx context.Context) (string, error)
	WSTradesURL() string
	WSMarketURL() string
}

// subscription is one registered channel interest. The list is append-only
// under c.mu; dispatch iterates a snapshot copy, so handlers may call
// Subscribe and Unsubscribe freely.
type subscription struct {
	channel string
	params  map[string]any
	handler Handler
	decode  DecodeType
}

// Client is a WebSocket client for GRVT with automatic reconnect. Construct
// with New, register subscriptions, then call Run on its own goroutine.
// All methods are safe for concurrent use.
type Client struct {
	auth       Auth
	marketData bool
	onGap      GapFunc
	logger     zerolog.Logger
	dialer     *websocket.Dialer
	bo         *backoff

	mu   sync.Mutex // guards subs, seq, conn
	subs []*subscription
	seq  map[string]uint64 // channel → last seen sequence_number
	conn *websocket.Conn

	writeMu sync.Mutex // serializes data writes on the active connection

	queue *sendQueue

	stopCh   chan struct{}
	stopOnce sync.Once

	stateMu sync.Mutex
	state   State
}

// Option configures a Client.
type Option func(*Client)

// WithMarketData selects the public market-data endpoint instead of the
// private trading endpoint.
func WithMarketData(v bool) Option {
	return func(c *Client) { c.marketData = v }
}

// WithGapFunc sets the sequence gap callback.
func WithGapFunc(fn GapFunc) Option {
	return func(c *Client) { c.onGap = fn }
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithDialer overrides the WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithBackoff overrides the reconnect delay range.
func WithBackoff(base, max time.Duration) Option {
	return func(c *Client) { c.bo = newBackoff(base, max) }
}

// New creates a client bound to the given auth session. It does not
// connect; call Run to start the connection supervisor.
func New(a Auth, opts ...Option) *Client {
	c := &Client{
		auth:   a,
		logger: zerolog.Nop(),
		dialer: websocket.DefaultDialer,
		bo:     newBackoff(defaultBackoffBase, defaultBackoffMax),
		seq:    make(map[string]uint64),
		queue:  newSendQueue(),
		stopCh: make(chan struct{}),
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports the supervisor's current lifecycle state.
func (c *Client) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.state == StateStopped {
		return
	}
	c.state = s
}

// Subscribe registers a handler for a channel. If a connection is live the
// subscribe frame is sent immediately; either way the registration is
// stored and replayed on every (re)connect, so Subscribe never fails.
//
// A subscription also receives messages from sub-channels: subscribing to
// "orders" delivers "orders.123" events.
func (c *Client) Subscribe(channel string, h Handler, params map[string]any, decode DecodeType) {
	sub := &subscription{channel: channel, params: params, handler: h, decode: decode}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return
	}
	frame, err := subscribeFrame(sub)
	if err != nil {
		c.logger.Warn().Err(err).Str("channel", channel).Msg("Could not encode subscribe frame")
		return
	}
	if err := c.write(conn, frame); err != nil {
		// The registration is stored; the reconnect replay covers it.
		c.logger.Warn().Err(err).Str("channel", channel).Msg("Subscribe frame failed; will replay on reconnect")
	}
}

// Unsubscribe removes every registration whose channel is an exact match
// and clears that channel's sequence state. If connected, an unsubscribe
// frame is sent.
func (c *Client) Unsubscribe(channel string) {
	c.mu.Lock()
	kept := make([]*subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		if sub.channel != channel {
			kept = append(kept, sub)
		}
	}
	c.subs = kept
	delete(c.seq, channel)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return
	}
	frame, err := json.Marshal(map[string]any{"op": "unsubscribe", "channel": channel})
	if err != nil {
		return
	}
	if err := c.write(conn, frame); err != nil {
		c.logger.Warn().Err(err).Str("channel", channel).Msg("Unsubscribe frame failed")
	}
}

// SendRaw marshals payload and enqueues it on the outbound FIFO. GRVT
// accepts order commands over the WebSocket stream; this is the path for
// them. The frame is delivered once a connection is live, surviving
// reconnects, in enqueue order.
func (c *Client) SendRaw(payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbound payload: %w", err)
	}
	c.queue.Push(b)
	return nil
}

// Run connects and processes messages until Close is called or ctx is
// cancelled, reconnecting with exponential backoff on any failure. It
// returns nil after Close and ctx.Err() after cancellation; connection
// errors are never returned, only logged.
func (c *Client) Run(ctx context.Context) error {
	defer c.setState(StateStopped)

	for {
		select {
		case <-c.stopCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c.setState(StateConnecting)
		connectedAt, err := c.connectAndPump(ctx)

		select {
		case <-c.stopCh:
			return nil
		default:
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Only a session that reached CONNECTED and stayed up past the base
		// delay resets the backoff. A dial that merely takes a long time to
		// fail must keep the delay doubling.
		if !connectedAt.IsZero() && time.Since(connectedAt) >= c.bo.base {
			c.bo.Reset()
		}
		delay := c.bo.Next()
		c.logger.Warn().Err(err).Dur("retry_in", delay).Msg("WebSocket connection lost; reconnecting")

		c.setState(StateBackoff)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-c.stopCh:
			timer.Stop()
			return nil
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Close stops the supervisor and closes any open connection. It is
// idempotent and safe to call before Run.
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}

	c.stateMu.Lock()
	c.state = StateStopped
	c.stateMu.Unlock()
	return nil
}

// connectAndPump runs one full network session: dial, replay
// subscriptions, then pump the receive/send/keepalive loops until the
// first failure or stop signal. The returned time is when the connection
// was established; zero when the attempt never got that far.
func (c *Client) connectAndPump(ctx context.Context) (time.Time, error) {
	url := c.endpoint()

	cookie, err := c.auth.Cookie(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("fetch session cookie: %w", err)
	}
	header := http.Header{}
	header.Set("Cookie", "exchange_token="+cookie)

	c.logger.Info().Str("url", url).Msg("Connecting to GRVT WebSocket")

	// Close must be able to abort an in-flight dial.
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stopCh:
			cancel()
		case <-dialCtx.Done():
		}
	}()

	conn, _, err := c.dialer.DialContext(dialCtx, url, header)
	if err != nil {
		return time.Time{}, fmt.Errorf("dial %s: %w", url, err)
	}
	connectedAt := time.Now()

	c.mu.Lock()
	c.conn = conn
	c.seq = make(map[string]uint64) // the server resets its counters per session
	subs := make([]*subscription, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	c.setState(StateConnected)
	c.logger.Info().Msg("WebSocket connected")

	teardown := func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
	}

	// Replay every registration in insertion order before pumping.
	for _, sub := range subs {
		frame, err := subscribeFrame(sub)
		if err != nil {
			c.logger.Warn().Err(err).Str("channel", sub.channel).Msg("Could not encode subscribe frame")
			continue
		}
		if err := c.write(conn, frame); err != nil {
			teardown()
			return connectedAt, fmt.Errorf("replay subscribe %s: %w", sub.channel, err)
		}
	}

	connDone := make(chan struct{})
	errCh := make(chan error, 3)
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		errCh <- c.readLoop(conn)
	}()
	go func() {
		defer wg.Done()
		errCh <- c.sendLoop(conn, connDone)
	}()
	go func() {
		defer wg.Done()
		errCh <- c.keepalive(conn, connDone)
	}()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-c.stopCh:
	case <-ctx.Done():
		runErr = ctx.Err()
	}

	close(connDone)
	teardown() // unblocks the read loop
	wg.Wait()
	return connectedAt, runErr
}

func (c *Client) endpoint() string {
	if c.marketData {
		return c.auth.WSMarketURL()
	}
	return c.auth.WSTradesURL()
}

// readLoop receives frames until the connection fails. The read deadline
// doubles as the pong timeout; a peer that stops answering pings is
// detected within one interval.
func (c *Client) readLoop(conn *websocket.Conn) error {
	deadline := func() time.Time { return time.Now().Add(pingInterval + pongTimeout) }
	conn.SetReadDeadline(deadline())
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(deadline())
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(deadline())
		c.handleFrame(raw)
	}
}

// sendLoop drains the outbound queue in FIFO order. A failed write pushes
// the in-flight frame back to the front and tears down the connection.
func (c *Client) sendLoop(conn *websocket.Conn, done <-chan struct{}) error {
	for {
		frame, ok := c.queue.Pop(done)
		if !ok {
			return nil
		}
		if err := c.write(conn, frame); err != nil {
			c.queue.PushFront(frame)
			return fmt.Errorf("send outbound frame: %w", err)
		}
	}
}

func (c *Client) keepalive(conn *websocket.Conn, done <-chan struct{}) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return nil
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pongTimeout)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

func (c *Client) write(conn *websocket.Conn, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// handleFrame parses one inbound frame, runs the sequence gap check, and
// dispatches to matching handlers. A malformed frame is dropped; it never
// tears down the connection.
func (c *Client) handleFrame(raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Warn().Err(err).Str("frame", string(raw)).Msg("Received non-JSON WebSocket message")
		return
	}
	msg.Raw = raw

	c.checkSequence(&msg)
	c.dispatch(&msg)
}

// checkSequence detects per-channel sequence number gaps. The stored value
// is always advanced to the received number; missed messages are reported,
// never waited for.
func (c *Client) checkSequence(msg *Message) {
	if msg.SequenceNumber == nil || msg.Channel == "" {
		return
	}
	got := *msg.SequenceNumber

	c.mu.Lock()
	last, seen := c.seq[msg.Channel]
	c.seq[msg.Channel] = got
	c.mu.Unlock()

	if !seen || got == last+1 {
		return
	}

	expected := last + 1
	c.logger.Warn().Str("channel", msg.Channel).
		Uint64("expected", expected).Uint64("got", got).
		Int64("missed", int64(got)-int64(last)-1).
		Msg("Sequence gap detected")
	if c.onGap == nil {
		return
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error().Interface("panic", r).Str("channel", msg.Channel).Msg("Gap callback panicked")
			}
		}()
		c.onGap(msg.Channel, expected, got)
	}()
}

// dispatch delivers msg to every matching registration, in registration
// order, iterating a snapshot so handlers may mutate the registry.
func (c *Client) dispatch(msg *Message) {
	c.mu.Lock()
	subs := make([]*subscription, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, sub := range subs {
		if !channelMatches(msg.Channel, sub.channel) {
			continue
		}
		c.invoke(sub, decodeFor(sub.decode, msg, c.logger), msg.Channel)
	}
}

// channelMatches reports whether a message on msgChannel belongs to a
// subscription on subChannel: an exact match, or a sub-channel one "."
// level deeper. "orders" matches "orders.123"; "orders2" does not.
func channelMatches(msgChannel, subChannel string) bool {
	return msgChannel == subChannel || strings.HasPrefix(msgChannel, subChannel+".")
}

// invoke runs one handler, isolating panics so a bad handler cannot stop
// dispatch to the others or kill the receive loop.
func (c *Client) invoke(sub *subscription, v any, channel string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Str("channel", channel).Msg("WebSocket handler panicked")
		}
	}()
	sub.handler(v)
}

// subscribeFrame encodes the subscribe op for one registration. Extra
// params merge at the top level; op and channel cannot be overridden.
func subscribeFrame(sub *subscription) ([]byte, error) {
	frame := make(map[string]any, len(sub.params)+2)
	for k, v := range sub.params {
		frame[k] = v
	}
	frame["op"] = "subscribe"
	frame["channel"] = sub.channel
	return json.Marshal(frame)
}
