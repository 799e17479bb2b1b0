package relay_test

import (
	"context"
	"sync"
	"time"

	"carnetsante/internal/domain"
)

// fakeTransport records everything written to it.
type fakeTransport struct {
	mu     sync.Mutex
	events []any
	closed bool
	fail   bool
}

func (f *fakeTransport) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errTransportDown
	}
	f.events = append(f.events, v)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) sent() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := make([]any, len(f.events))
	copy(res, f.events)
	return res
}

type transportError string

func (e transportError) Error() string { return string(e) }

const errTransportDown = transportError("transport down")

// In-memory repositories backing the end-to-end handler tests.

type memUserRepo struct {
	mu    sync.Mutex
	users map[int64]*domain.User
}

func newMemUserRepo(users ...*domain.User) *memUserRepo {
	r := &memUserRepo{users: make(map[int64]*domain.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memUserRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id], nil
}

func (r *memUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) ListActiveByRole(_ context.Context, role domain.Role) ([]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*domain.User
	for _, u := range r.users {
		if u.IsActive && u.Role == role {
			res = append(res, u)
		}
	}
	return res, nil
}

type memConvRepo struct {
	mu     sync.Mutex
	nextID int64
	convs  map[int64]*domain.Conversation
}

func newMemConvRepo(convs ...*domain.Conversation) *memConvRepo {
	r := &memConvRepo{nextID: 100, convs: make(map[int64]*domain.Conversation)}
	for _, c := range convs {
		r.convs[c.ID] = c
	}
	return r
}

func (r *memConvRepo) Create(_ context.Context, c *domain.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c.ID = r.nextID
	r.convs[c.ID] = c
	return nil
}

func (r *memConvRepo) GetByID(_ context.Context, id int64) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.convs[id], nil
}

func (r *memConvRepo) ListForUser(_ context.Context, userID int64) ([]*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*domain.Conversation
	for _, c := range r.convs {
		if c.HasParticipant(userID) {
			res = append(res, c)
		}
	}
	return res, nil
}

func (r *memConvRepo) FindBetween(_ context.Context, patientID, doctorID int64) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.convs {
		if c.PatientID == patientID && c.DoctorID == doctorID {
			return c, nil
		}
	}
	return nil, nil
}

func (r *memConvRepo) SetArchived(_ context.Context, id int64, archived bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.convs[id]; ok {
		c.Archived = archived
	}
	return nil
}

type memMsgRepo struct {
	mu         sync.Mutex
	nextID     int64
	msgs       []*domain.Message
	createErr  error
	markedRead int
}

func newMemMsgRepo() *memMsgRepo {
	return &memMsgRepo{}
}

func (r *memMsgRepo) Create(_ context.Context, m *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.nextID++
	m.ID = r.nextID
	if m.SentAt.IsZero() {
		m.SentAt = time.Now()
	}
	stored := *m
	r.msgs = append(r.msgs, &stored)
	return nil
}

func (r *memMsgRepo) ListForConversation(_ context.Context, conversationID int64, limit int) ([]*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*domain.Message
	for i := len(r.msgs) - 1; i >= 0 && len(res) < limit; i-- {
		if r.msgs[i].ConversationID == conversationID {
			m := *r.msgs[i]
			res = append(res, &m)
		}
	}
	return res, nil
}

func (r *memMsgRepo) MarkAllRead(_ context.Context, conversationID, readerID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markedRead++
	for _, m := range r.msgs {
		if m.ConversationID == conversationID && m.SenderID != readerID {
			m.IsRead = true
		}
	}
	return nil
}

func (r *memMsgRepo) UnreadCount(_ context.Context, conversationID, userID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, m := range r.msgs {
		if m.ConversationID == conversationID && m.SenderID != userID && !m.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *memMsgRepo) setCreateErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createErr = err
}

func (r *memMsgRepo) isRead(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.msgs {
		if m.ID == id {
			return m.IsRead
		}
	}
	return false
}
