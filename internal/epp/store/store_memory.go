package store

import (
	"context"
	"strings"
	"sync"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	domains map[string]struct{}
}

func NewInMemory(names ...string) *InMemoryStore {
	s := &InMemoryStore{domains: make(map[string]struct{})}
	s.Register(names...)
	return s
}

func (s *InMemoryStore) Register(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		s.domains[strings.ToLower(n)] = struct{}{}
	}
}

func (s *InMemoryStore) DomainExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.domains[strings.ToLower(name)]
	return ok, nil
}
