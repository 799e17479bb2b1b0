package domain

import "time"

// Role of an application user. The relay only distinguishes patients and
// doctors; admins can read conversations through the REST collaborators but
// never participate in one.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// User is an application user. The relay treats users as read-only: accounts
// are provisioned by the main Carnet de Santé backend, this service only
// resolves verified token subjects to identities.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	FullName  string    `db:"full_name" json:"fullName"`
	Role      Role      `db:"role" json:"role"`
	IsActive  bool      `db:"is_active" json:"isActive"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Conversation is a durable patient–doctor pairing, optionally linked to an
// appointment. Exactly two participants; immutable after creation except the
// archived flag and timestamps. Never hard-deleted.
type Conversation struct {
	ID            int64     `db:"id"`
	PatientID     int64     `db:"patient_id"`
	DoctorID      int64     `db:"doctor_id"`
	AppointmentID *int64    `db:"appointment_id"`
	Archived      bool      `db:"archived"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// HasParticipant reports whether the given user is one of the two
// conversation participants.
func (c *Conversation) HasParticipant(userID int64) bool {
	return c.PatientID == userID || c.DoctorID == userID
}

// OtherParticipant returns the participant that is not the given user.
func (c *Conversation) OtherParticipant(userID int64) int64 {
	if c.PatientID == userID {
		return c.DoctorID
	}
	return c.PatientID
}

// Message is a single persisted chat message. Content is immutable once
// created; is_read transitions false→true only.
type Message struct {
	ID             int64     `db:"id"`
	ConversationID int64     `db:"conversation_id"`
	SenderID       int64     `db:"sender_id"`
	Content        string    `db:"content"`
	SentAt         time.Time `db:"sent_at"`
	IsRead         bool      `db:"is_read"`
}
