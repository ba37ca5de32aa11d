package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"regcore/internal/ledger"
	"regcore/pkg/platform/sentinel"
)

// InMemoryStore keeps transactions in a map keyed by id.
type InMemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]ledger.Transaction
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{rows: make(map[int64]ledger.Transaction)}
}

func (s *InMemoryStore) Insert(_ context.Context, t *ledger.Transaction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	row := *t
	row.ID = s.nextID
	s.rows[row.ID] = row
	return row.ID, nil
}

func (s *InMemoryStore) Complete(_ context.Context, id int64, o ledger.Outcome, date time.Time, microsecond string) (*ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, fmt.Errorf("transaction %d: %w", id, sentinel.ErrNotFound)
	}
	row.Command = o.Command
	row.ObjectType = o.ObjectType
	row.ObjectID = o.ObjectID
	row.Code = o.Code
	row.Message = o.Message
	row.ServerTRID = o.ServerTRID
	row.ServerFrame = o.ServerFrame
	row.ServerDate = date
	row.ServerMicrosecond = microsecond
	s.rows[id] = row
	return &row, nil
}

func (s *InMemoryStore) Find(_ context.Context, id int64) (*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, fmt.Errorf("transaction %d: %w", id, sentinel.ErrNotFound)
	}
	return &row, nil
}

func (s *InMemoryStore) ListByRegistrar(_ context.Context, registrarID int64, limit int) ([]*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ledger.Transaction
	for _, row := range s.rows {
		if row.RegistrarID == registrarID {
			r := row
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every row ordered by id.
func (s *InMemoryStore) All() []ledger.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Transaction, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
