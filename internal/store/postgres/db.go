package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations for the messaging relay schema.
// The users table is shared with the main Carnet de Santé backend, which owns
// account provisioning; the relay only ensures the shape it reads from.
func Migrate(db *sql.DB) error {
	stmts := []string{
		// Users (read-only to the relay)
		`CREATE TABLE IF NOT EXISTS users (
			id         BIGSERIAL    PRIMARY KEY,
			username   VARCHAR(50)  UNIQUE NOT NULL,
			full_name  VARCHAR(100) NOT NULL DEFAULT '',
			role       VARCHAR(20)  NOT NULL DEFAULT 'patient',
			is_active  BOOLEAN      NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		// Conversations: exactly two participants, encoded in the row itself
		`CREATE TABLE IF NOT EXISTS conversations (
			id             BIGSERIAL   PRIMARY KEY,
			patient_id     BIGINT      NOT NULL REFERENCES users(id),
			doctor_id      BIGINT      NOT NULL REFERENCES users(id),
			appointment_id BIGINT,
			archived       BOOLEAN     NOT NULL DEFAULT FALSE,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT conversations_distinct_participants CHECK (patient_id <> doctor_id)
		)`,

		// Messages
		`CREATE TABLE IF NOT EXISTS messages (
			id              BIGSERIAL   PRIMARY KEY,
			conversation_id BIGINT      NOT NULL REFERENCES conversations(id),
			sender_id       BIGINT      NOT NULL REFERENCES users(id),
			content         TEXT        NOT NULL,
			sent_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			is_read         BOOLEAN     NOT NULL DEFAULT FALSE
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username)`,
		`CREATE INDEX IF NOT EXISTS idx_users_role ON users(role)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_patient ON conversations(patient_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_doctor ON conversations(doctor_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_sent ON messages(conversation_id, sent_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(conversation_id, is_read) WHERE is_read = FALSE`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}
