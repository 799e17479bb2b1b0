package relay

import "log"

// Dispatcher fans an event out to every live connection of every user
// currently joined to a conversation room. Delivery is best-effort and
// fire-and-forget: no acknowledgement, no retry, no cross-recipient
// ordering beyond what each individual socket preserves.
type Dispatcher struct {
	registry *Registry
	rooms    *Rooms
}

func NewDispatcher(registry *Registry, rooms *Rooms) *Dispatcher {
	return &Dispatcher{registry: registry, rooms: rooms}
}

// Publish delivers the event to all joined members' connections, including
// the sender's own other connections; de-duplicating the sender's optimistic
// render is the client's concern. Returns the number of delivery attempts.
func (d *Dispatcher) Publish(conversationID int64, event any) int {
	return d.publish(conversationID, -1, event)
}

// PublishExcept is Publish minus one user, used for typing indicators and
// membership notifications where echoing to the originator is pointless.
func (d *Dispatcher) PublishExcept(conversationID, exceptUserID int64, event any) int {
	return d.publish(conversationID, exceptUserID, event)
}

func (d *Dispatcher) publish(conversationID, exceptUserID int64, event any) int {
	attempts := 0
	for _, uid := range d.rooms.MembersOf(conversationID) {
		if uid == exceptUserID {
			continue
		}
		for _, conn := range d.registry.ConnectionsFor(uid) {
			attempts++
			if err := conn.Send(event); err != nil {
				// A dead socket is torn down here; the registry entry is
				// removed by the handler's close path.
				log.Printf("relay: deliver to user %d conn %s: %v", uid, conn.ID, err)
				conn.Close()
			}
		}
	}
	return attempts
}
