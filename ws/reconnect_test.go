// ws/reconnect_test.go
package ws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testServer is a live WebSocket endpoint. Client→server frames land on
// frames; each accepted connection is delivered on conns so tests can push
// events or drop the socket.
type testServer struct {
	srv     *httptest.Server
	frames  chan string
	conns   chan *websocket.Conn
	cookies chan string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{
		frames:  make(chan string, 64),
		conns:   make(chan *websocket.Conn, 8),
		cookies: make(chan string, 8),
	}
	upgrader := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.cookies <- r.Header.Get("Cookie")
		s.conns <- conn
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.frames <- string(msg)
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *testServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *testServer) nextFrame(t *testing.T) string {
	t.Helper()
	select {
	case f := <-s.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a client frame")
		return ""
	}
}

func (s *testServer) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a connection")
		return nil
	}
}

func runClient(t *testing.T, c *Client) chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(context.Background()) }()
	t.Cleanup(func() {
		c.Close()
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
			t.Error("Run did not return after Close")
		}
	})
	return errCh
}

func TestConnectSendsCookieAndReplaysSubscriptionsInOrder(t *testing.T) {
	s := newTestServer(t)
	c := New(&fakeAuth{url: s.url()}, WithBackoff(10*time.Millisecond, 50*time.Millisecond))

	c.Subscribe("trades.BTC_USDT_Perp", func(any) {}, nil, DecodeRaw)
	c.Subscribe("book.BTC_USDT_Perp", func(any) {}, map[string]any{"depth": 10}, DecodeRaw)
	c.Subscribe("orders", func(any) {}, nil, DecodeRaw)

	runClient(t, c)

	assert.Equal(t, "exchange_token=test-cookie", <-s.cookies)
	assert.Contains(t, s.nextFrame(t), `"channel":"trades.BTC_USDT_Perp"`)
	second := s.nextFrame(t)
	assert.Contains(t, second, `"channel":"book.BTC_USDT_Perp"`)
	assert.Contains(t, second, `"depth":10`)
	assert.Contains(t, s.nextFrame(t), `"channel":"orders"`)
}

func TestReconnectReplaysAndClearsSequenceState(t *testing.T) {
	s := newTestServer(t)

	var gaps atomic.Int64
	c := New(&fakeAuth{url: s.url()},
		WithBackoff(10*time.Millisecond, 50*time.Millisecond),
		WithGapFunc(func(string, uint64, uint64) { gaps.Add(1) }))

	received := make(chan *Message, 8)
	c.Subscribe("trades.BTC", func(v any) { received <- v.(*Message) }, nil, DecodeRaw)

	runClient(t, c)

	conn1 := s.nextConn(t)
	s.nextFrame(t) // subscribe replay
	require.NoError(t, conn1.WriteMessage(websocket.TextMessage,
		frame("trades.BTC", `{"price":"100"}`, 5)))
	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("first message not delivered")
	}
	conn1.Close() // server drop: the client must reconnect

	conn2 := s.nextConn(t)
	assert.Contains(t, s.nextFrame(t), `"channel":"trades.BTC"`) // replayed
	// The server's counter restarted; seq 1 after the pre-drop 5 must not
	// be reported as a gap.
	require.NoError(t, conn2.WriteMessage(websocket.TextMessage,
		frame("trades.BTC", `{"price":"101"}`, 1)))
	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("post-reconnect message not delivered")
	}

	assert.Zero(t, gaps.Load())
}

func TestSubscribeWhileConnectedSendsOneFrame(t *testing.T) {
	s := newTestServer(t)
	c := New(&fakeAuth{url: s.url()}, WithBackoff(10*time.Millisecond, 50*time.Millisecond))
	c.Subscribe("trades.BTC", func(any) {}, nil, DecodeRaw)

	runClient(t, c)
	s.nextFrame(t) // initial replay

	c.Subscribe("trades.ETH", func(any) {}, nil, DecodeRaw)
	assert.Contains(t, s.nextFrame(t), `"channel":"trades.ETH"`)

	// Only the new record was sent, nothing else is in flight.
	select {
	case extra := <-s.frames:
		t.Fatalf("unexpected extra frame: %s", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnsubscribeSendsFrameWhenConnected(t *testing.T) {
	s := newTestServer(t)
	c := New(&fakeAuth{url: s.url()}, WithBackoff(10*time.Millisecond, 50*time.Millisecond))
	c.Subscribe("trades.BTC", func(any) {}, nil, DecodeRaw)

	runClient(t, c)
	s.nextFrame(t)

	c.Unsubscribe("trades.BTC")
	got := s.nextFrame(t)
	assert.Contains(t, got, `"op":"unsubscribe"`)
	assert.Contains(t, got, `"channel":"trades.BTC"`)
}

func TestSendRawQueuedBeforeConnectIsDelivered(t *testing.T) {
	s := newTestServer(t)
	c := New(&fakeAuth{url: s.url()}, WithBackoff(10*time.Millisecond, 50*time.Millisecond))

	// Enqueued while offline: must go out once the connection is up.
	require.NoError(t, c.SendRaw(map[string]any{"op": "create_order", "order_id": "abc"}))

	runClient(t, c)
	got := s.nextFrame(t)
	assert.Contains(t, got, `"op":"create_order"`)
	assert.Contains(t, got, `"order_id":"abc"`)
}

func TestCloseUnblocksRunPromptly(t *testing.T) {
	s := newTestServer(t)
	c := New(&fakeAuth{url: s.url()}, WithBackoff(10*time.Millisecond, 50*time.Millisecond))
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(context.Background()) }()

	s.nextConn(t)
	require.NoError(t, c.Close())
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	assert.Equal(t, StateStopped, c.State())
	require.NoError(t, c.Close()) // still idempotent after Run exits
}

func TestDialFailureRetriesWithBackoff(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "no websocket here", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(&fakeAuth{url: "ws" + strings.TrimPrefix(srv.URL, "http")},
		WithBackoff(5*time.Millisecond, 20*time.Millisecond))
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(context.Background()) }()

	require.Eventually(t, func() bool { return attempts.Load() >= 3 },
		2*time.Second, 5*time.Millisecond, "expected repeated reconnect attempts")

	require.NoError(t, c.Close())
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestSlowDialFailuresStillBackOff(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		// Each attempt takes longer to fail than the backoff base. That
		// must not count as a connected period.
		time.Sleep(60 * time.Millisecond)
		http.Error(w, "no websocket here", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(&fakeAuth{url: "ws" + strings.TrimPrefix(srv.URL, "http")},
		WithBackoff(10*time.Millisecond, 10*time.Second))
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(context.Background()) }()

	time.Sleep(time.Second)
	require.NoError(t, c.Close())
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}

	// With the delay doubling (10ms, 20ms, 40ms, ...) one second fits only
	// a handful of attempts. A constant delay would fit about fourteen.
	got := attempts.Load()
	require.GreaterOrEqual(t, got, int64(2), "expected repeated reconnect attempts")
	require.LessOrEqual(t, got, int64(8), "backoff did not grow across slow-failing dials")
}

// flakyConn injects a write failure on an otherwise real socket: after the
// handshake response has been read, the first allowWrites data writes pass
// through and every later write fails.
type flakyConn struct {
	net.Conn
	mu          sync.Mutex
	sawRead     bool
	dataWrites  int
	allowWrites int
}

func (c *flakyConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	c.mu.Lock()
	c.sawRead = true
	c.mu.Unlock()
	return n, err
}

func (c *flakyConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	fail := false
	if c.sawRead {
		c.dataWrites++
		fail = c.dataWrites > c.allowWrites
	}
	c.mu.Unlock()
	if fail {
		return 0, errors.New("injected write failure")
	}
	return c.Conn.Write(b)
}

func TestSendRawRequeuedWhenWriteFailsMidConnection(t *testing.T) {
	s := newTestServer(t)

	// First connection: the second frame's write fails at the socket.
	// Later connections behave normally.
	var dials atomic.Int64
	dialer := &websocket.Dialer{
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := (&net.Dialer{}).DialContext(ctx, network, addr)
			if err != nil || dials.Add(1) > 1 {
				return conn, err
			}
			return &flakyConn{Conn: conn, allowWrites: 1}, nil
		},
	}

	c := New(&fakeAuth{url: s.url()},
		WithDialer(dialer),
		WithBackoff(10*time.Millisecond, 50*time.Millisecond))
	require.NoError(t, c.SendRaw(map[string]any{"op": "create_order", "order_id": "first"}))
	runClient(t, c)

	assert.Contains(t, s.nextFrame(t), `"order_id":"first"`)

	// This frame hits the injected failure: it must be pushed back to the
	// queue front and go out, still ahead of the next frame, once the
	// client has reconnected.
	require.NoError(t, c.SendRaw(map[string]any{"op": "create_order", "order_id": "second"}))
	require.NoError(t, c.SendRaw(map[string]any{"op": "create_order", "order_id": "third"}))

	assert.Contains(t, s.nextFrame(t), `"order_id":"second"`)
	assert.Contains(t, s.nextFrame(t), `"order_id":"third"`)
	assert.GreaterOrEqual(t, dials.Load(), int64(2), "expected a reconnect after the failed write")
}

func TestCredentialFailureIsRetriedLikeAnyConnectionError(t *testing.T) {
	a := &fakeAuth{url: "ws://127.0.0.1:1", cookieErr: assert.AnError}
	c := New(a, WithBackoff(5*time.Millisecond, 20*time.Millisecond))

	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(context.Background()) }()

	// The supervisor must keep cycling through backoff, not crash or exit.
	time.Sleep(50 * time.Millisecond)
	select {
	case err := <-errCh:
		t.Fatalf("Run exited early: %v", err)
	default:
	}

	require.NoError(t, c.Close())
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestRunReturnsContextError(t *testing.T) {
	s := newTestServer(t)
	c := New(&fakeAuth{url: s.url()}, WithBackoff(10*time.Millisecond, 50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	s.nextConn(t)
	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
