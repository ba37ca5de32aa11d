// Package ledger is the durable audit trail pairing every EPP command with
// its response.
package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"regcore/pkg/requestcontext"
)

var (
	// ErrMalformedCommand is returned by Begin when no registrar is bound to
	// the command. It is not retried.
	ErrMalformedCommand = errors.New("Malformed command received.")
	// ErrNoTransaction is returned by Complete for the sentinel id 0 used
	// when Begin never ran.
	ErrNoTransaction = errors.New("no transaction row to complete")
)

const placeholderPrefix = "client-not-provided-"

// Store persists transactions. Complete must only touch server fields and
// return sentinel.ErrNotFound for an unknown id.
type Store interface {
	Insert(ctx context.Context, t *Transaction) (int64, error)
	Complete(ctx context.Context, id int64, o Outcome, date time.Time, microsecond string) (*Transaction, error)
	Find(ctx context.Context, id int64) (*Transaction, error)
	ListByRegistrar(ctx context.Context, registrarID int64, limit int) ([]*Transaction, error)
}

// Publisher forwards completed transactions downstream. Publish must not
// block the caller.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type Ledger struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

func WithPublisher(p Publisher) Option {
	return func(l *Ledger) {
		l.publisher = p
	}
}

func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Begin records the client side of an exchange. An empty clTRID is replaced
// with a generated placeholder, which the returned transaction carries.
func (l *Ledger) Begin(ctx context.Context, registrarID int64, clTRID string, frame []byte) (*Transaction, error) {
	if clTRID == "" {
		clTRID = PlaceholderClientTRID()
	}
	if registrarID <= 0 {
		return nil, ErrMalformedCommand
	}

	date, micro := stamp(ctx)
	t := &Transaction{
		RegistrarID:       registrarID,
		ClientTRID:        clTRID,
		ClientFrame:       frame,
		ClientDate:        date,
		ClientMicrosecond: micro,
	}
	id, err := l.store.Insert(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	t.ID = id
	return t, nil
}

// Complete records the server side of transaction id.
func (l *Ledger) Complete(ctx context.Context, id int64, o Outcome) (*Transaction, error) {
	if id <= 0 {
		return nil, ErrNoTransaction
	}

	date, micro := stamp(ctx)
	t, err := l.store.Complete(ctx, id, o, date, micro)
	if err != nil {
		return nil, fmt.Errorf("complete transaction %d: %w", id, err)
	}

	if l.publisher != nil {
		l.publisher.Publish(ctx, eventFrom(t))
	}
	return t, nil
}

func (l *Ledger) Find(ctx context.Context, id int64) (*Transaction, error) {
	t, err := l.store.Find(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find transaction %d: %w", id, err)
	}
	return t, nil
}

// ListByRegistrar returns the newest transactions first.
func (l *Ledger) ListByRegistrar(ctx context.Context, registrarID int64, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	ts, err := l.store.ListByRegistrar(ctx, registrarID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions for registrar %d: %w", registrarID, err)
	}
	return ts, nil
}

// PlaceholderClientTRID stands in for a missing client transaction id.
func PlaceholderClientTRID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return placeholderPrefix + hex.EncodeToString(b[:])
}

// stamp reads the clock twice: once for the second-precision date and once
// for the microsecond fraction.
func stamp(ctx context.Context) (time.Time, string) {
	date := requestcontext.Now(ctx).UTC().Truncate(time.Second)
	micro := fmt.Sprintf("%06d", requestcontext.Now(ctx).Nanosecond()/int(time.Microsecond))
	return date, micro
}
