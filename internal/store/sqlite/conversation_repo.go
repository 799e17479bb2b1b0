package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

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
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (patient_id, doctor_id, appointment_id, archived, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
	`, c.PatientID, c.DoctorID, c.AppointmentID, now, now)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	return r.scanConversation(r.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id))
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID int64) ([]*domain.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE patient_id = ? OR doctor_id = ?
		ORDER BY archived ASC, updated_at DESC
	`, userID, userID)
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

func (r *ConversationRepo) FindBetween(ctx context.Context, patientID, doctorID int64) (*domain.Conversation, error) {
	return r.scanConversation(r.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE patient_id = ? AND doctor_id = ?
		ORDER BY created_at ASC
		LIMIT 1
	`, patientID, doctorID))
}

func (r *ConversationRepo) SetArchived(ctx context.Context, id int64, archived bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET archived = ?, updated_at = ? WHERE id = ?
	`, archived, time.Now().UTC(), id)
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
