// Package tcpserver runs a fixed pool of accept workers over one listener.
// Each worker accepts a connection and serves it to completion before
// accepting the next; after serving its request budget a worker is replaced
// by a fresh one.
package tcpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"regcore/internal/platform/metrics"
	"regcore/pkg/requestcontext"
)

// Handler serves one accepted connection. The server closes conn after
// ServeConn returns and when ctx is cancelled.
type Handler interface {
	ServeConn(ctx context.Context, conn net.Conn)
}

type HandlerFunc func(ctx context.Context, conn net.Conn)

func (f HandlerFunc) ServeConn(ctx context.Context, conn net.Conn) { f(ctx, conn) }

// AdmitFunc decides whether a remote address may connect at all.
type AdmitFunc func(ip string) bool

// RateLimiter throttles admitted addresses.
type RateLimiter interface {
	Allow(ctx context.Context, ip string) bool
}

type Server struct {
	name        string
	handler     Handler
	workers     int
	maxRequests int
	admit       AdmitFunc
	limiter     RateLimiter
	tlsConfig   *tls.Config
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithWorkers sets the worker count. Zero or less means twice the CPU count.
func WithWorkers(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithMaxRequests sets how many connections a worker serves before it is
// recycled. Zero disables recycling.
func WithMaxRequests(n int) Option {
	return func(s *Server) {
		s.maxRequests = n
	}
}

func WithAdmit(admit AdmitFunc) Option {
	return func(s *Server) {
		s.admit = admit
	}
}

func WithRateLimit(l RateLimiter) Option {
	return func(s *Server) {
		s.limiter = l
	}
}

func WithTLS(cfg *tls.Config) Option {
	return func(s *Server) {
		s.tlsConfig = cfg
	}
}

// New builds a server. name labels logs and metrics ("epp", "whois").
func New(name string, handler Handler, opts ...Option) *Server {
	s := &Server{
		name:    name,
		handler: handler,
		workers: runtime.NumCPU() * 2,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s on %s: %w", s.name, addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the worker pool on ln. It returns nil once ctx is cancelled and
// every worker has finished its current connection.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.logger.InfoContext(ctx, "listener started", "listener", s.name, "addr", ln.Addr().String(), "workers", s.workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := range s.workers {
		g.Go(func() error { return s.supervise(gctx, ln, i) })
	}
	err := g.Wait()
	_ = ln.Close()
	if ctx.Err() != nil {
		s.logger.InfoContext(ctx, "listener stopped", "listener", s.name)
		return nil
	}
	return err
}

func (s *Server) supervise(ctx context.Context, ln net.Listener, worker int) error {
	for generation := 0; ; generation++ {
		served, err := s.work(ctx, ln)
		if err != nil || ctx.Err() != nil {
			return err
		}
		s.logger.DebugContext(ctx, "worker recycled",
			"listener", s.name,
			"worker", worker,
			"generation", generation,
			"served", served,
		)
	}
}

// work accepts until the request budget is spent. A closed listener ends
// the worker without error.
func (s *Server) work(ctx context.Context, ln net.Listener) (int, error) {
	served := 0
	backoff := 5 * time.Millisecond
	for s.maxRequests <= 0 || served < s.maxRequests {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return served, nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(backoff)
				backoff = min(backoff*2, time.Second)
				continue
			}
			return served, fmt.Errorf("accept %s connection: %w", s.name, err)
		}
		backoff = 5 * time.Millisecond
		s.serve(ctx, conn)
		served++
	}
	return served, nil
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	ip := remoteIP(conn.RemoteAddr())
	if s.admit != nil && !s.admit(ip) {
		s.metrics.IncrementRejected(s.name, "not_permitted")
		s.logger.WarnContext(ctx, "connection refused, address not permitted", "listener", s.name, "remote", ip)
		return
	}
	if s.limiter != nil && !s.limiter.Allow(ctx, ip) {
		s.metrics.IncrementRejected(s.name, "rate_limited")
		s.logger.WarnContext(ctx, "connection refused, rate limit exceeded", "listener", s.name, "remote", ip)
		return
	}

	ctx = requestcontext.WithSessionID(ctx, uuid.New())
	ctx = requestcontext.WithClientIP(ctx, ip)
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "connection handler panicked",
				"listener", s.name,
				"session_id", requestcontext.SessionID(ctx).String(),
				"remote", ip,
				"panic", r,
			)
		}
	}()

	s.handler.ServeConn(ctx, conn)
}

func remoteIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
