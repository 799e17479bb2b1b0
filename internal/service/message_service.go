package service

import (
	"context"
	"fmt"

	"carnetsante/internal/domain"
	"carnetsante/internal/security"
	"carnetsante/internal/wire"
)

// MessageService is the persistence gateway of the relay: every message and
// read-receipt update is written through it before anything is broadcast.
// Content is encrypted at rest; rows never hold plaintext.
type MessageService struct {
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	encryptor     *security.Encryptor

	MaxMessageLength  int
	MaxMessageHistory int
}

func NewMessageService(
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	encryptor *security.Encryptor,
	maxLength, maxHistory int,
) *MessageService {
	if maxLength <= 0 {
		maxLength = 5000
	}
	if maxHistory <= 0 {
		maxHistory = 1000
	}
	return &MessageService{
		conversations:     conversations,
		messages:          messages,
		encryptor:         encryptor,
		MaxMessageLength:  maxLength,
		MaxMessageHistory: maxHistory,
	}
}

// SendMessage validates and persists a message. The caller broadcasts only
// after this returns, so a failed write never produces a partial broadcast.
func (s *MessageService) SendMessage(
	ctx context.Context,
	conversationID, senderID int64,
	content string,
) (*domain.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: message content cannot be empty", domain.ErrInvalidInput)
	}
	if len([]rune(content)) > s.MaxMessageLength {
		return nil, fmt.Errorf("%w: message content exceeds %d characters", domain.ErrInvalidInput, s.MaxMessageLength)
	}

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return nil, domain.ErrNotFound
	}
	if !conv.HasParticipant(senderID) {
		return nil, domain.ErrForbidden
	}
	if conv.Archived {
		return nil, domain.ErrConversationClosed
	}

	encrypted, err := s.encryptor.Encrypt(content)
	if err != nil {
		return nil, fmt.Errorf("encrypt content: %w", err)
	}

	msg := &domain.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        encrypted,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	// broadcast and return carry the plaintext; only the row is encrypted
	msg.Content = content
	return msg, nil
}

// History returns the conversation's messages in chronological order,
// bounded by limit (capped at MaxMessageHistory).
func (s *MessageService) History(
	ctx context.Context,
	conversationID, userID int64,
	limit int,
) ([]*domain.Message, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return nil, domain.ErrNotFound
	}
	if !conv.HasParticipant(userID) {
		return nil, domain.ErrForbidden
	}

	if limit <= 0 || limit > s.MaxMessageHistory {
		limit = s.MaxMessageHistory
	}

	msgs, err := s.messages.ListForConversation(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}

	for _, m := range msgs {
		dec, err := s.encryptor.Decrypt(m.Content)
		if err != nil {
			return nil, fmt.Errorf("decrypt message %d: %w", m.ID, err)
		}
		m.Content = dec
	}

	// DB returns newest first
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MarkRead flips is_read on every message in the conversation not sent by
// the reader. Idempotent: a second call is a no-op, never an error.
func (s *MessageService) MarkRead(ctx context.Context, conversationID, readerID int64) error {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return domain.ErrNotFound
	}
	if !conv.HasParticipant(readerID) {
		return domain.ErrForbidden
	}
	return s.messages.MarkAllRead(ctx, conversationID, readerID)
}

// UnreadCount reports how many messages addressed to the user are unread.
func (s *MessageService) UnreadCount(ctx context.Context, conversationID, userID int64) (int, error) {
	return s.messages.UnreadCount(ctx, conversationID, userID)
}

// ToPayload converts a domain message to its wire shape.
func ToPayload(m *domain.Message) wire.MessagePayload {
	return wire.MessagePayload{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		SentAt:         m.SentAt,
		IsRead:         m.IsRead,
	}
}

// ToPayloads converts a slice of domain messages to wire shapes.
func ToPayloads(msgs []*domain.Message) []wire.MessagePayload {
	res := make([]wire.MessagePayload, 0, len(msgs))
	for _, m := range msgs {
		res = append(res, ToPayload(m))
	}
	return res
}
