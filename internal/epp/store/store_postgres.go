package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PostgresStore answers registration lookups for EPP commands.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DomainExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM domain WHERE name = $1)`,
		strings.ToLower(name),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check domain exists: %w", err)
	}
	return exists, nil
}
