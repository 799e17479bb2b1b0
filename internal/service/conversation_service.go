package service

import (
	"context"
	"fmt"

	"carnetsante/internal/domain"
)

// ConversationService owns conversation lifecycle: creation on first contact
// selection, lookup with participant authorization, listing, and archival.
type ConversationService struct {
	users         domain.UserRepository
	conversations domain.ConversationRepository
}

func NewConversationService(users domain.UserRepository, conversations domain.ConversationRepository) *ConversationService {
	return &ConversationService{
		users:         users,
		conversations: conversations,
	}
}

// StartConversation returns the conversation pairing the caller with the
// given contact, creating it if none exists. One side must be a patient and
// the other a doctor; pairings are unique, so repeated contact selection
// always lands in the same conversation.
func (s *ConversationService) StartConversation(
	ctx context.Context,
	callerID, contactID int64,
	appointmentID *int64,
) (*domain.Conversation, error) {
	if callerID == contactID {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", domain.ErrInvalidInput)
	}

	caller, err := s.users.GetByID(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("get caller: %w", err)
	}
	contact, err := s.users.GetByID(ctx, contactID)
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	if caller == nil || contact == nil || !contact.IsActive {
		return nil, domain.ErrNotFound
	}

	var patientID, doctorID int64
	switch {
	case caller.Role == domain.RolePatient && contact.Role == domain.RoleDoctor:
		patientID, doctorID = caller.ID, contact.ID
	case caller.Role == domain.RoleDoctor && contact.Role == domain.RolePatient:
		patientID, doctorID = contact.ID, caller.ID
	default:
		return nil, fmt.Errorf("%w: a conversation pairs one patient with one doctor", domain.ErrInvalidInput)
	}

	existing, err := s.conversations.FindBetween(ctx, patientID, doctorID)
	if err != nil {
		return nil, fmt.Errorf("find existing conversation: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	conv := &domain.Conversation{
		PatientID:     patientID,
		DoctorID:      doctorID,
		AppointmentID: appointmentID,
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *ConversationService) ListForUser(ctx context.Context, userID int64) ([]*domain.Conversation, error) {
	return s.conversations.ListForUser(ctx, userID)
}

// GetForParticipant fetches a conversation and enforces that the caller is
// one of its two participants. Every room operation in the relay goes
// through this check before any state mutation.
func (s *ConversationService) GetForParticipant(
	ctx context.Context,
	conversationID, userID int64,
) (*domain.Conversation, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, domain.ErrNotFound
	}
	if !conv.HasParticipant(userID) {
		return nil, domain.ErrForbidden
	}
	return conv, nil
}

// Archive soft-deletes the conversation. Idempotent; conversations are never
// hard-deleted.
func (s *ConversationService) Archive(ctx context.Context, conversationID, userID int64) error {
	if _, err := s.GetForParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	return s.conversations.SetArchived(ctx, conversationID, true)
}

// Contacts lists the users the caller may start a conversation with:
// patients see doctors, doctors see patients. Admins may browse either role.
func (s *ConversationService) Contacts(ctx context.Context, caller *domain.User, role domain.Role) ([]*domain.User, error) {
	switch caller.Role {
	case domain.RolePatient:
		role = domain.RoleDoctor
	case domain.RoleDoctor:
		role = domain.RolePatient
	case domain.RoleAdmin:
		if role != domain.RolePatient && role != domain.RoleDoctor {
			role = domain.RoleDoctor
		}
	default:
		return nil, domain.ErrForbidden
	}
	return s.users.ListActiveByRole(ctx, role)
}
