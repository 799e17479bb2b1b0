package relay

import "sync"

// TypingState is the ephemeral per-conversation set of users currently
// flagged as typing. Advisory, UI-only: no consistency guarantee across
// clients. The server runs no expiry timer; the sending client owns the
// quiescence window and emits typing_stop itself. A client that dies while
// typing therefore leaves a stale flag until it reconnects and stops.
type TypingState struct {
	mu     sync.Mutex
	typing map[int64]map[int64]struct{}
}

func NewTypingState() *TypingState {
	return &TypingState{
		typing: make(map[int64]map[int64]struct{}),
	}
}

// Start flags the user as typing in the conversation. Returns false when the
// flag was already set, so callers can skip redundant broadcasts.
func (t *TypingState) Start(conversationID, userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.typing[conversationID] == nil {
		t.typing[conversationID] = make(map[int64]struct{})
	}
	if _, ok := t.typing[conversationID][userID]; ok {
		return false
	}
	t.typing[conversationID][userID] = struct{}{}
	return true
}

// Stop clears the typing flag. Returns false when the user was not flagged.
func (t *TypingState) Stop(conversationID, userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.typing[conversationID]
	if !ok {
		return false
	}
	if _, ok := set[userID]; !ok {
		return false
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(t.typing, conversationID)
	}
	return true
}

// ActiveIn returns the users currently flagged typing in a conversation.
func (t *TypingState) ActiveIn(conversationID int64) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	set := t.typing[conversationID]
	res := make([]int64, 0, len(set))
	for uid := range set {
		res = append(res, uid)
	}
	return res
}
