package client

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	c := New(Config{URL: "ws://localhost/ws"})

	assert.Equal(t, DefaultBaseDelay, c.cfg.BaseDelay)
	assert.Equal(t, DefaultMaxAttempts, c.cfg.MaxAttempts)
	assert.Equal(t, DefaultTypingQuiescence, c.cfg.TypingQuiescence)
	assert.Same(t, websocket.DefaultDialer, c.cfg.Dialer)
}

func TestReconnectDelay_Linear(t *testing.T) {
	c := New(Config{URL: "ws://localhost/ws", BaseDelay: 3 * time.Second})

	for attempt := 1; attempt <= 5; attempt++ {
		assert.Equal(t, time.Duration(attempt)*3*time.Second, c.reconnectDelay(attempt))
	}
}

func TestSend_WhileDisconnected(t *testing.T) {
	c := New(Config{URL: "ws://localhost/ws"})

	assert.ErrorIs(t, c.SendMessage(1, "hello"), ErrNotConnected)
	assert.ErrorIs(t, c.JoinRoom(1), ErrNotConnected)
	assert.ErrorIs(t, c.MarkAsRead(1), ErrNotConnected)
}

// echoServer accepts websocket connections, counts them, and holds each open
// until killed through the returned channel or client close.
type echoServer struct {
	srv   *httptest.Server
	dials atomic.Int64
	kill  chan struct{}
}

func newEchoServer(t *testing.T) *echoServer {
	t.Helper()
	e := &echoServer{kill: make(chan struct{})}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	e.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		e.dials.Add(1)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
		select {
		case <-e.kill:
		case <-done:
		}
		conn.Close()
	}))
	t.Cleanup(e.srv.Close)
	return e
}

func (e *echoServer) url() string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	server := newEchoServer(t)

	var connects, disconnects atomic.Int64
	c := New(Config{
		URL:       server.url(),
		BaseDelay: 10 * time.Millisecond,
		Handlers: Handlers{
			OnConnect:    func() { connects.Add(1) },
			OnDisconnect: func(error) { disconnects.Add(1) },
		},
	})
	require.NoError(t, c.Connect())
	t.Cleanup(c.Disconnect)
	require.Equal(t, int64(1), connects.Load())

	// Kill the live connection server-side; the agent should dial again on
	// its own after one backoff interval.
	server.kill <- struct{}{}

	assert.Eventually(t, func() bool { return connects.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), disconnects.Load())
	assert.Equal(t, int64(2), server.dials.Load())

	// The re-established connection is usable.
	assert.Eventually(t, func() bool { return c.SendMessage(1, "still here") == nil },
		2*time.Second, 10*time.Millisecond)
}

func TestClient_ManualDisconnectSuppressesReconnect(t *testing.T) {
	server := newEchoServer(t)

	var connects atomic.Int64
	c := New(Config{
		URL:       server.url(),
		BaseDelay: 10 * time.Millisecond,
		Handlers:  Handlers{OnConnect: func() { connects.Add(1) }},
	})
	require.NoError(t, c.Connect())

	c.Disconnect()

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int64(1), connects.Load(), "no automatic redial after Disconnect")
	assert.Equal(t, int64(1), server.dials.Load())
	assert.ErrorIs(t, c.SendMessage(1, "x"), ErrNotConnected)
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	server := newEchoServer(t)

	// Counting dialer: every dial, successful or refused, is observed here.
	var dials, disconnects atomic.Int64
	dialer := &websocket.Dialer{
		NetDial: func(network, addr string) (net.Conn, error) {
			dials.Add(1)
			return net.Dial(network, addr)
		},
	}
	c := New(Config{
		URL:         server.url(),
		BaseDelay:   5 * time.Millisecond,
		MaxAttempts: 3,
		Dialer:      dialer,
		Handlers:    Handlers{OnDisconnect: func(error) { disconnects.Add(1) }},
	})
	require.NoError(t, c.Connect())
	require.Equal(t, int64(1), dials.Load())

	// Stop the listener first so every redial fails, then drop the live
	// connection.
	server.srv.Close()
	server.kill <- struct{}{}

	assert.Eventually(t, func() bool { return disconnects.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	// Exactly MaxAttempts redials, then the agent stops for good.
	assert.Eventually(t, func() bool { return dials.Load() == 4 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int64(4), dials.Load(), "no redial beyond MaxAttempts")
	assert.ErrorIs(t, c.SendMessage(1, "x"), ErrNotConnected)
	assert.Equal(t, int64(1), server.dials.Load(), "no redial ever completed a handshake")
}

func TestClient_InitialDialFailureIsReturned(t *testing.T) {
	c := New(Config{
		URL:       "ws://127.0.0.1:1/ws",
		BaseDelay: 5 * time.Millisecond,
	})
	assert.Error(t, c.Connect(), "first dial must fail synchronously, not retry")
}

func TestStartTyping_ArmsQuiescenceTimer(t *testing.T) {
	server := newEchoServer(t)

	c := New(Config{
		URL:              server.url(),
		TypingQuiescence: 50 * time.Millisecond,
	})
	require.NoError(t, c.Connect())
	t.Cleanup(c.Disconnect)

	require.NoError(t, c.StartTyping(7))
	c.mu.Lock()
	_, armed := c.typingTimers[7]
	c.mu.Unlock()
	assert.True(t, armed)

	// Quiescence elapses without further keystrokes: the timer fires
	// StopTyping and removes itself.
	assert.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		_, ok := c.typingTimers[7]
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopTyping_CancelsTimer(t *testing.T) {
	server := newEchoServer(t)

	c := New(Config{
		URL:              server.url(),
		TypingQuiescence: time.Hour,
	})
	require.NoError(t, c.Connect())
	t.Cleanup(c.Disconnect)

	require.NoError(t, c.StartTyping(7))
	require.NoError(t, c.StopTyping(7))

	c.mu.Lock()
	_, ok := c.typingTimers[7]
	c.mu.Unlock()
	assert.False(t, ok)
}
