// Package ratelimit throttles new connections per remote address with a
// sliding window.
package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Result describes one admission decision.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	Limit     int
}

// Store counts events in a sliding window keyed by key.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// Limiter admits at most limit connections per address per window.
type Limiter struct {
	store  Store
	prefix string
	limit  int
	window time.Duration
	logger *slog.Logger
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// New builds a limiter whose keys are namespaced by prefix, typically the
// listener name, so listeners sharing a store do not share budgets.
func New(store Store, prefix string, limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		prefix: prefix,
		limit:  limit,
		window: window,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether addr may open another connection. A failing store
// admits the connection.
func (l *Limiter) Allow(ctx context.Context, addr string) bool {
	res, err := l.store.Allow(ctx, Key(l.prefix, addr), l.limit, l.window)
	if err != nil {
		l.logger.WarnContext(ctx, "rate limit store unavailable, admitting connection",
			"remote", addr,
			"error", err,
		)
		return true
	}
	return res.Allowed
}

// Key is the store key for addr under prefix.
func Key(prefix, addr string) string {
	return "regcore:ratelimit:" + prefix + ":" + addr
}
