package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"regcore/internal/label"
	"regcore/pkg/platform/sentinel"
)

// InMemoryStore holds zone policies and reserved names in maps.
type InMemoryStore struct {
	mu       sync.RWMutex
	policies map[string]label.ZonePolicy
	reserved map[string]struct{}
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		policies: make(map[string]label.ZonePolicy),
		reserved: make(map[string]struct{}),
	}
}

// PutZone adds or replaces a zone policy.
func (s *InMemoryStore) PutZone(policy label.ZonePolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	policy.TLD = strings.ToLower(policy.TLD)
	s.policies[policy.TLD] = policy
}

func (s *InMemoryStore) Reserve(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		s.reserved[strings.ToLower(n)] = struct{}{}
	}
}

func (s *InMemoryStore) ZonePolicy(_ context.Context, tld string) (*label.ZonePolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	policy, ok := s.policies[strings.ToLower(tld)]
	if !ok {
		return nil, fmt.Errorf("zone %s: %w", tld, sentinel.ErrNotFound)
	}
	return &policy, nil
}

func (s *InMemoryStore) IsReserved(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.reserved[strings.ToLower(name)]
	return ok, nil
}
