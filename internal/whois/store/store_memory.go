package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"regcore/internal/whois"
	"regcore/pkg/platform/sentinel"
)

// InMemoryStore holds WHOIS records for tests and local runs.
type InMemoryStore struct {
	mu         sync.RWMutex
	domains    map[string]whois.Domain
	hosts      map[string]whois.Host
	registrars map[string]whois.Registrar
	counters   map[string]int64
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		domains:    make(map[string]whois.Domain),
		hosts:      make(map[string]whois.Host),
		registrars: make(map[string]whois.Registrar),
		counters:   make(map[string]int64),
	}
}

func (s *InMemoryStore) PutDomain(d whois.Domain) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.domains[strings.ToLower(d.Name)] = d
}

func (s *InMemoryStore) PutHost(h whois.Host) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hosts[strings.ToLower(h.Name)] = h
}

func (s *InMemoryStore) PutRegistrar(r whois.Registrar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registrars[r.Name] = r
}

func (s *InMemoryStore) FindDomain(_ context.Context, name string, maxNameservers int) (*whois.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.domains[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("domain %s: %w", name, sentinel.ErrNotFound)
	}
	if maxNameservers > 0 && len(d.Nameservers) > maxNameservers {
		d.Nameservers = d.Nameservers[:maxNameservers]
	}
	return &d, nil
}

func (s *InMemoryStore) FindHost(_ context.Context, name string) (*whois.Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hosts[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("host %s: %w", name, sentinel.ErrNotFound)
	}
	return &h, nil
}

func (s *InMemoryStore) FindRegistrar(_ context.Context, name string) (*whois.Registrar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.registrars[name]
	if !ok {
		return nil, fmt.Errorf("registrar %s: %w", name, sentinel.ErrNotFound)
	}
	return &r, nil
}

func (s *InMemoryStore) IncrementCounter(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name]++
	return nil
}

// Counter returns the current value of a served-queries counter.
func (s *InMemoryStore) Counter(_ context.Context, name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[name], nil
}
