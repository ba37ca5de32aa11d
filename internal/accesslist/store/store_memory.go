package store

import (
	"context"
	"slices"
	"sync"
)

// InMemoryStore is a whitelist source whose contents tests can change
// between refreshes.
type InMemoryStore struct {
	mu    sync.RWMutex
	addrs []string
	err   error
}

func NewInMemory(addrs ...string) *InMemoryStore {
	return &InMemoryStore{addrs: addrs}
}

func (s *InMemoryStore) Set(addrs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addrs = addrs
}

// Fail makes subsequent lists return err until cleared with nil.
func (s *InMemoryStore) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *InMemoryStore) ListAddresses(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	return slices.Clone(s.addrs), nil
}
