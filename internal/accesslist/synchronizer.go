// Package accesslist keeps the registrar address whitelist in memory and
// refreshes it from the database on a fixed interval.
package accesslist

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"regcore/internal/platform/metrics"
)

// Source lists whitelisted addresses as stored.
type Source interface {
	ListAddresses(ctx context.Context) ([]string, error)
}

type Synchronizer struct {
	source    Source
	permitted *PermittedIPs
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Synchronizer)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Synchronizer) {
		s.metrics = m
	}
}

func NewSynchronizer(source Source, permitted *PermittedIPs, opts ...Option) *Synchronizer {
	s := &Synchronizer{source: source, permitted: permitted, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh loads the whitelist and swaps it in. On error the previous set
// stays in effect.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	addrs, err := s.source.ListAddresses(ctx)
	if err != nil {
		s.metrics.IncrementAccessListRefreshFailure()
		return fmt.Errorf("refresh permitted addresses: %w", err)
	}
	set := NewSet(addrs)
	s.permitted.Replace(set)
	s.metrics.SetAccessListSize(set.Len())
	return nil
}

// Start refreshes every interval until ctx is done. It does not load the
// list up front; callers run Refresh once before accepting connections.
// Failed refreshes are logged and the loop keeps running.
func (s *Synchronizer) Start(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.logger.ErrorContext(ctx, "access list refresh failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
