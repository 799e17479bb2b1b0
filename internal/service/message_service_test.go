package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"carnetsante/internal/domain"
	"carnetsante/internal/security"
	"carnetsante/internal/service"
)

func openConversation() *domain.Conversation {
	return &domain.Conversation{ID: 42, PatientID: 2, DoctorID: 1}
}

var testEncryptor = mustEncryptor()

func mustEncryptor() *security.Encryptor {
	enc, err := security.NewEncryptor([]byte("test-encryption-key"))
	if err != nil {
		panic(err)
	}
	return enc
}

func encrypt(t *testing.T, plain string) string {
	t.Helper()
	enc, err := testEncryptor.Encrypt(plain)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	return enc
}

func TestSendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		svc := service.NewMessageService(convRepo, msgRepo, testEncryptor, 0, 0)

		convRepo.On("GetByID", mock.Anything, int64(42)).Return(openConversation(), nil)
		msgRepo.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.Message) bool {
			dec, err := testEncryptor.Decrypt(m.Content)
			return m.ConversationID == 42 && m.SenderID == 1 && err == nil && dec == "Bonjour"
		})).Return(nil)

		msg, err := svc.SendMessage(ctx, 42, 1, "Bonjour")
		assert.NoError(t, err)
		assert.NotNil(t, msg)
		assert.Equal(t, "Bonjour", msg.Content, "caller and broadcast see plaintext")
		assert.False(t, msg.IsRead, "a new message starts unread")
		msgRepo.AssertExpectations(t)
	})

	t.Run("ContentEncryptedAtRest", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		svc := service.NewMessageService(convRepo, msgRepo, testEncryptor, 0, 0)

		var stored string
		convRepo.On("GetByID", mock.Anything, int64(42)).Return(openConversation(), nil)
		msgRepo.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.Message) bool {
			stored = m.Content
			return true
		})).Return(nil)

		_, err := svc.SendMessage(ctx, 42, 1, "résultat d'analyse confidentiel")
		assert.NoError(t, err)
		assert.NotEqual(t, "résultat d'analyse confidentiel", stored, "row must not hold plaintext")

		dec, err := testEncryptor.Decrypt(stored)
		assert.NoError(t, err)
		assert.Equal(t, "résultat d'analyse confidentiel", dec)
	})

	t.Run("EmptyContent", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		svc := service.NewMessageService(convRepo, msgRepo, testEncryptor, 0, 0)

		_, err := svc.SendMessage(ctx, 42, 1, "")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		msgRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("ContentTooLong", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		svc := service.NewMessageService(convRepo, msgRepo, testEncryptor, 10, 0)

		_, err := svc.SendMessage(ctx, 42, 1, strings.Repeat("a", 11))
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("ConversationNotFound", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		svc := service.NewMessageService(convRepo, msgRepo, testEncryptor, 0, 0)

		convRepo.On("GetByID", mock.Anything, int64(7)).Return(nil, nil)

		_, err := svc.SendMessage(ctx, 7, 1, "hello")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("SenderNotParticipant", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		svc := service.NewMessageService(convRepo, msgRepo, testEncryptor, 0, 0)

		convRepo.On("GetByID", mock.Anything, int64(42)).Return(openConversation(), nil)

		_, err := svc.SendMessage(ctx, 42, 99, "hello")
		assert.ErrorIs(t, err, domain.ErrForbidden)
		msgRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("ArchivedConversation", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		svc := service.NewMessageService(convRepo, msgRepo, testEncryptor, 0, 0)

		conv := openConversation()
		conv.Archived = true
		convRepo.On("GetByID", mock.Anything, int64(42)).Return(conv, nil)

		_, err := svc.SendMessage(ctx, 42, 1, "hello")
		assert.ErrorIs(t, err, domain.ErrConversationClosed)
	})

	t.Run("PersistenceFailure", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		svc := service.NewMessageService(convRepo, msgRepo, testEncryptor, 0, 0)

		convRepo.On("GetByID", mock.Anything, int64(42)).Return(openConversation(), nil)
		msgRepo.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))

		msg, err := svc.SendMessage(ctx, 42, 1, "hello")
		assert.Error(t, err)
		assert.Nil(t, msg, "a failed write must not yield a message to broadcast")
	})
}

func TestHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("ChronologicalOrder", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		svc := service.NewMessageService(convRepo, msgRepo, testEncryptor, 0, 100)

		convRepo.On("GetByID", mock.Anything, int64(42)).Return(openConversation(), nil)
		// repository returns newest first, content encrypted
		msgRepo.On("ListForConversation", mock.Anything, int64(42), 100).Return([]*domain.Message{
			{ID: 3, Content: encrypt(t, "third")},
			{ID: 2, Content: encrypt(t, "second")},
			{ID: 1, Content: encrypt(t, "first")},
		}, nil)

		msgs, err := svc.History(ctx, 42, 1, 0)
		assert.NoError(t, err)
		assert.Len(t, msgs, 3)
		assert.Equal(t, int64(1), msgs[0].ID)
		assert.Equal(t, "first", msgs[0].Content)
		assert.Equal(t, int64(3), msgs[2].ID)
		assert.Equal(t, "third", msgs[2].Content)
	})

	t.Run("UndecryptableRow", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		svc := service.NewMessageService(convRepo, msgRepo, testEncryptor, 0, 100)

		convRepo.On("GetByID", mock.Anything, int64(42)).Return(openConversation(), nil)
		msgRepo.On("ListForConversation", mock.Anything, int64(42), 100).Return([]*domain.Message{
			{ID: 1, Content: "not ciphertext"},
		}, nil)

		_, err := svc.History(ctx, 42, 1, 0)
		assert.Error(t, err)
	})

	t.Run("LimitCapped", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		svc := service.NewMessageService(convRepo, msgRepo, testEncryptor, 0, 50)

		convRepo.On("GetByID", mock.Anything, int64(42)).Return(openConversation(), nil)
		msgRepo.On("ListForConversation", mock.Anything, int64(42), 50).Return([]*domain.Message{}, nil)

		_, err := svc.History(ctx, 42, 1, 500)
		assert.NoError(t, err)
		msgRepo.AssertExpectations(t)
	})

	t.Run("NonParticipant", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		svc := service.NewMessageService(convRepo, msgRepo, testEncryptor, 0, 0)

		convRepo.On("GetByID", mock.Anything, int64(42)).Return(openConversation(), nil)

		_, err := svc.History(ctx, 42, 99, 0)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		svc := service.NewMessageService(convRepo, msgRepo, testEncryptor, 0, 0)

		convRepo.On("GetByID", mock.Anything, int64(42)).Return(openConversation(), nil)
		msgRepo.On("MarkAllRead", mock.Anything, int64(42), int64(2)).Return(nil)

		assert.NoError(t, svc.MarkRead(ctx, 42, 2))
		msgRepo.AssertExpectations(t)
	})

	t.Run("IdempotentRepeat", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		svc := service.NewMessageService(convRepo, msgRepo, testEncryptor, 0, 0)

		convRepo.On("GetByID", mock.Anything, int64(42)).Return(openConversation(), nil)
		msgRepo.On("MarkAllRead", mock.Anything, int64(42), int64(2)).Return(nil)

		assert.NoError(t, svc.MarkRead(ctx, 42, 2))
		assert.NoError(t, svc.MarkRead(ctx, 42, 2), "repeat with nothing unread is still a success")
	})

	t.Run("NonParticipant", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		msgRepo := new(MockMessageRepo)
		svc := service.NewMessageService(convRepo, msgRepo, testEncryptor, 0, 0)

		convRepo.On("GetByID", mock.Anything, int64(42)).Return(openConversation(), nil)

		err := svc.MarkRead(ctx, 42, 99)
		assert.ErrorIs(t, err, domain.ErrForbidden)
		msgRepo.AssertNotCalled(t, "MarkAllRead", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestToPayload(t *testing.T) {
	sentAt := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	msg := &domain.Message{ID: 5, ConversationID: 42, SenderID: 1, Content: "Bonjour", SentAt: sentAt}

	p := service.ToPayload(msg)
	assert.Equal(t, int64(5), p.ID)
	assert.Equal(t, int64(42), p.ConversationID)
	assert.Equal(t, "Bonjour", p.Content)
	assert.Equal(t, sentAt, p.SentAt)
	assert.False(t, p.IsRead)
}
