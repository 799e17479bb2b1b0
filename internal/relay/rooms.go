package relay

import "sync"

// Rooms tracks which users are actively viewing which conversation. Purely
// in-memory: rebuilt from scratch on restart, no durability promised. A user
// may be a member of several rooms at once; keeping a single active room is
// a client-side UX policy, not a server invariant.
type Rooms struct {
	mu      sync.RWMutex
	members map[int64]map[int64]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[int64]map[int64]struct{}),
	}
}

// Join adds the user to the conversation's membership set.
func (r *Rooms) Join(conversationID, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.members[conversationID] == nil {
		r.members[conversationID] = make(map[int64]struct{})
	}
	r.members[conversationID][userID] = struct{}{}
}

// Leave removes the user from the conversation's membership set. No-op if
// the user never joined.
func (r *Rooms) Leave(conversationID, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drop(conversationID, userID)
}

// LeaveAll sweeps the user out of every room. Called when the user's last
// live connection closes so no ghost members linger.
func (r *Rooms) LeaveAll(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for convID := range r.members {
		r.drop(convID, userID)
	}
}

// MembersOf returns the current member set of a conversation.
func (r *Rooms) MembersOf(conversationID int64) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.members[conversationID]
	res := make([]int64, 0, len(set))
	for uid := range set {
		res = append(res, uid)
	}
	return res
}

// IsMember reports whether the user currently has the conversation open.
func (r *Rooms) IsMember(conversationID, userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.members[conversationID][userID]
	return ok
}

// drop removes a membership entry and prunes the room when it empties.
// Caller must hold the write lock.
func (r *Rooms) drop(conversationID, userID int64) {
	set, ok := r.members[conversationID]
	if !ok {
		return
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(r.members, conversationID)
	}
}
