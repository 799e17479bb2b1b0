// Package store selects and wires a storage backend. PostgreSQL is the
// production backend; SQLite exists for local development, mirroring the
// split the main backend uses.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	"carnetsante/internal/domain"
	"carnetsante/internal/store/postgres"
	"carnetsante/internal/store/sqlite"
)

// Repositories bundles the persistence gateways the relay depends on.
type Repositories struct {
	Users         domain.UserRepository
	Conversations domain.ConversationRepository
	Messages      domain.MessageRepository
}

// Open opens the database named by dsn, runs migrations, and returns the
// repository set. DSNs starting with "sqlite:" or ending in ".db" select the
// SQLite backend; everything else is treated as a PostgreSQL URL.
func Open(dsn string) (*sql.DB, *Repositories, error) {
	if isSQLite(dsn) {
		db, err := sqlite.Open(strings.TrimPrefix(dsn, "sqlite:"))
		if err != nil {
			return nil, nil, err
		}
		if err := sqlite.Migrate(db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return db, &Repositories{
			Users:         sqlite.NewUserRepo(db),
			Conversations: sqlite.NewConversationRepo(db),
			Messages:      sqlite.NewMessageRepo(db),
		}, nil
	}

	db, err := postgres.Open(dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return db, &Repositories{
		Users:         postgres.NewUserRepo(db),
		Conversations: postgres.NewConversationRepo(db),
		Messages:      postgres.NewMessageRepo(db),
	}, nil
}

func isSQLite(dsn string) bool {
	return strings.HasPrefix(dsn, "sqlite:") ||
		strings.HasPrefix(dsn, "file:") ||
		strings.HasSuffix(dsn, ".db") ||
		dsn == ":memory:"
}
