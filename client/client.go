// Package client implements the messaging connection agent used by Go
// consumers of the relay: a single logical connection that re-establishes
// itself on drop with bounded linear backoff, plus the typing quiescence
// timer the server deliberately does not run.
package client

import (
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"carnetsante/internal/wire"
)

const (
	DefaultBaseDelay        = 3 * time.Second
	DefaultMaxAttempts      = 5
	DefaultTypingQuiescence = 2 * time.Second
)

// ErrNotConnected is returned by send operations while no transport is up.
var ErrNotConnected = errors.New("client: not connected")

// Handlers are the application callbacks for server events. Any nil handler
// is skipped. OnConnect fires after every successful dial, including
// reconnects; the agent does not replay room memberships itself, the
// application re-issues JoinRoom there for each open conversation.
type Handlers struct {
	OnConnect        func()
	OnDisconnect     func(err error)
	OnNewMessage     func(wire.NewMessageEvent)
	OnMessagesRead   func(wire.MessagesReadEvent)
	OnTypingStart    func(wire.TypingEvent)
	OnTypingStop     func(wire.TypingEvent)
	OnRoomJoined     func(wire.RoomEvent)
	OnRoomLeft       func(wire.RoomEvent)
	OnUserJoinedRoom func(wire.RoomEvent)
	OnError          func(wire.ErrorEvent)
}

// Config configures a Client. URL is the ws:// or wss:// endpoint; Token is
// the bearer token passed as a query parameter on the handshake.
type Config struct {
	URL   string
	Token string

	// BaseDelay is multiplied by the attempt number: linear backoff, not
	// exponential. MaxAttempts bounds reconnection; after that the agent
	// gives up.
	BaseDelay   time.Duration
	MaxAttempts int

	// TypingQuiescence is how long after the last StartTyping refresh the
	// agent emits typing_stop on the caller's behalf.
	TypingQuiescence time.Duration

	Dialer   *websocket.Dialer
	Handlers Handlers
}

// Client maintains the logical messaging connection.
type Client struct {
	cfg Config

	mu               sync.Mutex
	conn             *websocket.Conn
	manualDisconnect bool
	typingTimers     map[int64]*time.Timer
}

func New(cfg Config) *Client {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.TypingQuiescence <= 0 {
		cfg.TypingQuiescence = DefaultTypingQuiescence
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Client{
		cfg:          cfg,
		typingTimers: make(map[int64]*time.Timer),
	}
}

// Connect establishes the connection and starts the read loop. An initial
// dial failure is returned to the caller; automatic retry applies only to
// drops of an established connection.
func (c *Client) Connect() error {
	conn, err := c.dial()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.manualDisconnect = false
	c.conn = conn
	c.mu.Unlock()

	if h := c.cfg.Handlers.OnConnect; h != nil {
		h()
	}
	go c.readLoop(conn)
	return nil
}

// Disconnect tears the transport down immediately and suppresses any
// further automatic reconnection.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.manualDisconnect = true
	conn := c.conn
	c.conn = nil
	for convID, t := range c.typingTimers {
		t.Stop()
		delete(c.typingTimers, convID)
	}
	c.mu.Unlock()

	if conn != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
}

// JoinRoom requests membership of a conversation room.
func (c *Client) JoinRoom(conversationID int64) error {
	return c.send(wire.Frame{Type: wire.FrameJoinRoom, ConversationID: conversationID})
}

// LeaveRoom drops membership of a conversation room.
func (c *Client) LeaveRoom(conversationID int64) error {
	return c.send(wire.Frame{Type: wire.FrameLeaveRoom, ConversationID: conversationID})
}

// SendMessage submits a message for persistence and broadcast. Failures come
// back asynchronously as error events; the agent never retries a send.
func (c *Client) SendMessage(conversationID int64, content string) error {
	return c.send(wire.Frame{Type: wire.FrameSendMessage, ConversationID: conversationID, Content: content})
}

// MarkAsRead flags the conversation's messages as read. Idempotent.
func (c *Client) MarkAsRead(conversationID int64) error {
	return c.send(wire.Frame{Type: wire.FrameMarkAsRead, ConversationID: conversationID})
}

// StartTyping signals typing and (re-)arms the quiescence timer that will
// emit typing_stop if the caller goes quiet. Call it on every keystroke.
func (c *Client) StartTyping(conversationID int64) error {
	if err := c.send(wire.Frame{Type: wire.FrameTypingStart, ConversationID: conversationID}); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.typingTimers[conversationID]; ok {
		t.Reset(c.cfg.TypingQuiescence)
		return nil
	}
	c.typingTimers[conversationID] = time.AfterFunc(c.cfg.TypingQuiescence, func() {
		c.StopTyping(conversationID)
	})
	return nil
}

// StopTyping clears the typing signal and cancels the quiescence timer.
func (c *Client) StopTyping(conversationID int64) error {
	c.mu.Lock()
	if t, ok := c.typingTimers[conversationID]; ok {
		t.Stop()
		delete(c.typingTimers, conversationID)
	}
	c.mu.Unlock()

	return c.send(wire.Frame{Type: wire.FrameTypingStop, ConversationID: conversationID})
}

func (c *Client) send(frame wire.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteJSON(frame)
}

func (c *Client) dial() (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", c.cfg.Token)
	u.RawQuery = q.Encode()

	conn, _, err := c.cfg.Dialer.Dial(u.String(), nil)
	return conn, err
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			manual := c.manualDisconnect
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()

			if manual {
				return
			}
			if h := c.cfg.Handlers.OnDisconnect; h != nil {
				h(err)
			}
			c.reconnect()
			return
		}
		c.dispatch(data)
	}
}

// reconnect tries to re-establish the connection with linear backoff:
// baseDelay*1, baseDelay*2, ... up to MaxAttempts, then gives up.
func (c *Client) reconnect() {
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		time.Sleep(c.reconnectDelay(attempt))

		if c.isManuallyDisconnected() {
			return
		}

		conn, err := c.dial()
		if err != nil {
			log.Printf("client: reconnect attempt %d/%d failed: %v", attempt, c.cfg.MaxAttempts, err)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		if h := c.cfg.Handlers.OnConnect; h != nil {
			h()
		}
		go c.readLoop(conn)
		return
	}
	log.Printf("client: giving up after %d reconnect attempts", c.cfg.MaxAttempts)
}

func (c *Client) reconnectDelay(attempt int) time.Duration {
	return c.cfg.BaseDelay * time.Duration(attempt)
}

func (c *Client) isManuallyDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manualDisconnect
}

func (c *Client) dispatch(data []byte) {
	eventType, err := wire.DecodeType(data)
	if err != nil {
		log.Printf("client: malformed event: %v", err)
		return
	}

	switch eventType {
	case wire.EventNewMessage:
		var ev wire.NewMessageEvent
		if json.Unmarshal(data, &ev) == nil && c.cfg.Handlers.OnNewMessage != nil {
			c.cfg.Handlers.OnNewMessage(ev)
		}
	case wire.EventMessagesRead:
		var ev wire.MessagesReadEvent
		if json.Unmarshal(data, &ev) == nil && c.cfg.Handlers.OnMessagesRead != nil {
			c.cfg.Handlers.OnMessagesRead(ev)
		}
	case wire.EventTypingStart:
		var ev wire.TypingEvent
		if json.Unmarshal(data, &ev) == nil && c.cfg.Handlers.OnTypingStart != nil {
			c.cfg.Handlers.OnTypingStart(ev)
		}
	case wire.EventTypingStop:
		var ev wire.TypingEvent
		if json.Unmarshal(data, &ev) == nil && c.cfg.Handlers.OnTypingStop != nil {
			c.cfg.Handlers.OnTypingStop(ev)
		}
	case wire.EventRoomJoined:
		var ev wire.RoomEvent
		if json.Unmarshal(data, &ev) == nil && c.cfg.Handlers.OnRoomJoined != nil {
			c.cfg.Handlers.OnRoomJoined(ev)
		}
	case wire.EventRoomLeft:
		var ev wire.RoomEvent
		if json.Unmarshal(data, &ev) == nil && c.cfg.Handlers.OnRoomLeft != nil {
			c.cfg.Handlers.OnRoomLeft(ev)
		}
	case wire.EventUserJoinedRoom:
		var ev wire.RoomEvent
		if json.Unmarshal(data, &ev) == nil && c.cfg.Handlers.OnUserJoinedRoom != nil {
			c.cfg.Handlers.OnUserJoinedRoom(ev)
		}
	case wire.EventError:
		var ev wire.ErrorEvent
		if json.Unmarshal(data, &ev) == nil && c.cfg.Handlers.OnError != nil {
			c.cfg.Handlers.OnError(ev)
		}
	case wire.EventConnectionEstablished:
		// handshake confirmation, nothing to do
	default:
		log.Printf("client: unknown event type %q", eventType)
	}
}
