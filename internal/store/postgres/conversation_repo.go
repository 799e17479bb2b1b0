package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"carnetsante/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

const conversationColumns = `id, patient_id, doctor_id, appointment_id, archived, created_at, updated_at`

func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	if err := r.db.QueryRowContext(ctx, `
		INSERT INTO conversations (patient_id, doctor_id, appointment_id, archived, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, c.PatientID, c.DoctorID, c.AppointmentID).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	return r.scanConversation(r.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID int64) ([]*domain.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE patient_id = $1 OR doctor_id = $1
		ORDER BY archived ASC, updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var res []*domain.Conversation
	for rows.Next() {
		c := &domain.Conversation{}
		if err := rows.Scan(&c.ID, &c.PatientID, &c.DoctorID, &c.AppointmentID, &c.Archived, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// FindBetween finds the existing conversation for a patient–doctor pairing.
// Pairings are unique regardless of the archived flag, so first contact
// after archival resurfaces the same conversation.
func (r *ConversationRepo) FindBetween(ctx context.Context, patientID, doctorID int64) (*domain.Conversation, error) {
	return r.scanConversation(r.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE patient_id = $1 AND doctor_id = $2
		ORDER BY created_at ASC
		LIMIT 1
	`, patientID, doctorID))
}

func (r *ConversationRepo) SetArchived(ctx context.Context, id int64, archived bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET archived = $1, updated_at = NOW() WHERE id = $2
	`, archived, id)
	if err != nil {
		return fmt.Errorf("set archived: %w", err)
	}
	return nil
}

func (r *ConversationRepo) scanConversation(row *sql.Row) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	err := row.Scan(&c.ID, &c.PatientID, &c.DoctorID, &c.AppointmentID, &c.Archived, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}
