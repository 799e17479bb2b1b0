package relay

import "sync"

// Registry maps an authenticated user identity to its set of live
// connections. No presence feature exists: a user dropping to zero
// connections is simply absent from the map, no event is broadcast.
type Registry struct {
	mu    sync.RWMutex
	conns map[int64]map[*Connection]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[int64]map[*Connection]struct{}),
	}
}

// Register adds a connection to the set owned by its user.
func (r *Registry) Register(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[c.UserID] == nil {
		r.conns[c.UserID] = make(map[*Connection]struct{})
	}
	r.conns[c.UserID][c] = struct{}{}
}

// Unregister removes the connection and reports whether it was the user's
// last one; callers use that to sweep room memberships.
func (r *Registry) Unregister(c *Connection) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[c.UserID]
	if !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.conns, c.UserID)
		return true
	}
	return false
}

// ConnectionsFor returns the user's live connections. An empty slice, never
// an error: a user without live connections just gets no live delivery,
// persistence already happened upstream.
func (r *Registry) ConnectionsFor(userID int64) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[userID]
	res := make([]*Connection, 0, len(set))
	for c := range set {
		res = append(res, c)
	}
	return res
}

// ConnectionCount reports the number of live connections for a user.
func (r *Registry) ConnectionCount(userID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID])
}
