package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"regcore/internal/label"
	"regcore/pkg/platform/sentinel"
)

// PostgresStore reads zone policies and reserved names from the registry database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed zone policy store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ZonePolicy returns the policy for tld (leading dot). A zone row means the
// zone is served.
func (s *PostgresStore) ZonePolicy(ctx context.Context, tld string) (*label.ZonePolicy, error) {
	query := `
		SELECT id, tld, COALESCE(idn_table, '')
		FROM domain_tld
		WHERE LOWER(tld) = $1
	`
	var policy label.ZonePolicy
	err := s.db.QueryRowContext(ctx, query, strings.ToLower(tld)).Scan(&policy.ID, &policy.TLD, &policy.IDNTable)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("zone %s: %w", tld, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get zone policy: %w", err)
	}
	policy.TLD = strings.ToLower(policy.TLD)
	policy.Supported = true
	return &policy, nil
}

func (s *PostgresStore) IsReserved(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM reserved_domain_names WHERE LOWER(name) = $1)`,
		strings.ToLower(name),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check reserved name: %w", err)
	}
	return exists, nil
}
