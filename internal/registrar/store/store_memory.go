package store

import (
	"context"
	"fmt"
	"sync"

	"regcore/internal/registrar"
	"regcore/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	byCLID map[string]registrar.Registrar
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{byCLID: make(map[string]registrar.Registrar)}
}

func (s *InMemoryStore) Put(r registrar.Registrar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byCLID[r.CLID] = r
}

func (s *InMemoryStore) FindByCLID(_ context.Context, clID string) (*registrar.Registrar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byCLID[clID]
	if !ok {
		return nil, fmt.Errorf("registrar %q: %w", clID, sentinel.ErrNotFound)
	}
	return &r, nil
}
