package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transport is the subset of a live socket the relay writes to. Satisfied by
// *websocket.Conn; tests substitute in-memory fakes.
type Transport interface {
	WriteJSON(v any) error
	Close() error
}

// Connection is one live transport handle owned by the registry for its
// lifetime. A user may own any number of concurrent connections (tabs,
// devices); nothing limits the fan-out.
type Connection struct {
	ID            string
	UserID        int64
	EstablishedAt time.Time

	mu        sync.Mutex
	transport Transport
}

func NewConnection(userID int64, t Transport) *Connection {
	return &Connection{
		ID:            uuid.NewString(),
		UserID:        userID,
		EstablishedAt: time.Now(),
		transport:     t,
	}
}

// Send writes a single event to the transport. Serialized per connection so
// concurrent broadcasts never interleave frames on one socket.
func (c *Connection) Send(event any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport.WriteJSON(event)
}

func (c *Connection) Close() error {
	return c.transport.Close()
}
