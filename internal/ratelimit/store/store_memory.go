package store

import (
	"context"
	"sync"
	"time"

	"regcore/internal/ratelimit"
)

// InMemoryStore keeps one sliding window of timestamps per key. It is local
// to the process. Expired keys are swept at most once per window.
type InMemoryStore struct {
	mu        sync.Mutex
	windows   map[string][]time.Time
	lastSweep time.Time
	now       func() time.Time
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

func (s *InMemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration) (*ratelimit.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) > window {
		s.sweep(now.Add(-window))
		s.lastSweep = now
	}
	stamps := trim(s.windows[key], now.Add(-window))

	if len(stamps) >= limit {
		s.windows[key] = stamps
		resetAt := now.Add(window)
		if len(stamps) > 0 {
			resetAt = stamps[0].Add(window)
		}
		return &ratelimit.Result{Allowed: false, ResetAt: resetAt, Limit: limit}, nil
	}

	stamps = append(stamps, now)
	s.windows[key] = stamps
	return &ratelimit.Result{
		Allowed:   true,
		Remaining: limit - len(stamps),
		ResetAt:   stamps[0].Add(window),
		Limit:     limit,
	}, nil
}

func (s *InMemoryStore) sweep(cutoff time.Time) {
	for key, stamps := range s.windows {
		if stamps = trim(stamps, cutoff); len(stamps) == 0 {
			delete(s.windows, key)
		} else {
			s.windows[key] = stamps
		}
	}
}

// Len is the number of tracked keys.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

func trim(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(stamps); i++ {
		if stamps[i].After(cutoff) {
			break
		}
	}
	return stamps[i:]
}
