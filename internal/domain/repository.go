package domain

import (
	"context"
)

// UserRepository defines read operations for users. The relay never writes
// users; it only resolves identities and lists contacts.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	ListActiveByRole(ctx context.Context, role Role) ([]*User, error)
}

// ConversationRepository defines persistence operations for conversations.
// Lookup methods return (nil, nil) when no row matches.
type ConversationRepository interface {
	Create(ctx context.Context, c *Conversation) error
	GetByID(ctx context.Context, id int64) (*Conversation, error)
	ListForUser(ctx context.Context, userID int64) ([]*Conversation, error)
	FindBetween(ctx context.Context, patientID, doctorID int64) (*Conversation, error)
	SetArchived(ctx context.Context, id int64, archived bool) error
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	ListForConversation(ctx context.Context, conversationID int64, limit int) ([]*Message, error)
	// MarkAllRead flips is_read on every unread message in the conversation
	// that was not sent by readerID. Idempotent.
	MarkAllRead(ctx context.Context, conversationID, readerID int64) error
	UnreadCount(ctx context.Context, conversationID, userID int64) (int, error)
}
