package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"regcore/internal/registrar"
	"regcore/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByCLID(ctx context.Context, clID string) (*registrar.Registrar, error) {
	var r registrar.Registrar
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, clid, pw FROM registrar WHERE clid = $1`, clID,
	).Scan(&r.ID, &r.Name, &r.CLID, &r.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("registrar %q: %w", clID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find registrar by clid: %w", err)
	}
	return &r, nil
}
