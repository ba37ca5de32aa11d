// Package registrar authenticates EPP clients against the registrar table.
package registrar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"regcore/pkg/platform/sentinel"
)

var ErrInvalidCredentials = errors.New("invalid registrar credentials")

// Registrar is the subset of a registrar row the listeners need.
type Registrar struct {
	ID           int64
	Name         string
	CLID         string
	PasswordHash string
}

type Store interface {
	FindByCLID(ctx context.Context, clID string) (*Registrar, error)
}

// Directory resolves client identifiers and checks login passwords.
type Directory struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Directory)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Directory) {
		d.logger = logger
	}
}

func New(store Store, opts ...Option) *Directory {
	d := &Directory{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Authenticate returns the registrar id when pw matches the stored hash.
// Unknown client ids and wrong passwords both yield ErrInvalidCredentials.
func (d *Directory) Authenticate(ctx context.Context, clID, pw string) (int64, error) {
	r, err := d.store.FindByCLID(ctx, clID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return 0, ErrInvalidCredentials
	}
	if err != nil {
		return 0, fmt.Errorf("authenticate registrar: %w", err)
	}
	if err := VerifyPassword(pw, r.PasswordHash); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			d.logger.WarnContext(ctx, "registrar login rejected", "clid", clID)
		}
		return 0, err
	}
	return r.ID, nil
}

// IDByCLID looks up a registrar id without checking credentials.
func (d *Directory) IDByCLID(ctx context.Context, clID string) (int64, error) {
	r, err := d.store.FindByCLID(ctx, clID)
	if err != nil {
		return 0, fmt.Errorf("find registrar %q: %w", clID, err)
	}
	return r.ID, nil
}
