// Package whois answers port 43 queries. Each connection carries one query
// line and receives one plain text answer before it is closed.
package whois

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"regcore/internal/label"
	"regcore/internal/platform/config"
	"regcore/internal/platform/metrics"
	"regcore/pkg/platform/sentinel"
	"regcore/pkg/requestcontext"
)

// Store reads registry records. Lookups return sentinel.ErrNotFound for
// missing rows. IncrementCounter must be a single atomic update.
type Store interface {
	FindDomain(ctx context.Context, name string, maxNameservers int) (*Domain, error)
	FindHost(ctx context.Context, name string) (*Host, error)
	FindRegistrar(ctx context.Context, name string) (*Registrar, error)
	IncrementCounter(ctx context.Context, name string) error
}

// Zones resolves zone policy and reserved names.
type Zones interface {
	label.PolicyLookup
	label.ReservedLookup
}

// Matcher splits names at their zone and applies zone character tables.
// *label.Validator implements it.
type Matcher interface {
	Split(host string) (name, zone string, ok bool)
	MatchesPolicy(policy *label.ZonePolicy, s string) (bool, error)
}

type Outcome string

const (
	OutcomeFound    Outcome = "found"
	OutcomeNotFound Outcome = "not_found"
	OutcomeRejected Outcome = "rejected"
	OutcomeError    Outcome = "error"
)

// Result is the answer to one query.
type Result struct {
	Query   Query
	Outcome Outcome
	Text    string
}

type Engine struct {
	cfg     config.WHOIS
	store   Store
	matcher Matcher
	zones   Zones
	format  formatter
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func New(cfg config.WHOIS, roid string, store Store, matcher Matcher, zones Zones, opts ...Option) *Engine {
	maxNS := cfg.MaxNameservers
	if maxNS <= 0 {
		maxNS = 13
	}
	cfg.MaxNameservers = maxNS
	e := &Engine{
		cfg:     cfg,
		store:   store,
		matcher: matcher,
		zones:   zones,
		format: formatter{
			roid:           roid,
			registryName:   cfg.RegistryName,
			privacy:        cfg.Privacy,
			maxNameservers: maxNS,
		},
		logger: slog.Default(),
		tracer: otel.Tracer("regcore/whois"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ServeConn reads one query line, writes the answer and returns. It
// implements tcpserver.Handler; the server closes conn.
func (e *Engine) ServeConn(ctx context.Context, conn net.Conn) {
	if e.cfg.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(e.cfg.Timeout))
	}

	line, err := readQuery(conn, e.cfg.MaxQueryLength)
	if err != nil {
		e.logger.DebugContext(ctx, "whois client sent no query",
			"remote", requestcontext.ClientIP(ctx),
			"error", err,
		)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "whois query panicked",
				"remote", requestcontext.ClientIP(ctx),
				"query", line,
				"panic", fmt.Sprint(r),
			)
			_, _ = io.WriteString(conn, MsgGeneralError)
		}
	}()

	res := e.Answer(ctx, line)
	if _, err := io.WriteString(conn, res.Text); err != nil {
		e.logger.WarnContext(ctx, "whois write failed", "remote", requestcontext.ClientIP(ctx), "error", err)
	}
}

// readQuery reads up to the first newline. A client that closes its side
// without a newline still gets an answer for what it sent.
func readQuery(r io.Reader, limit int) (string, error) {
	if limit > 0 {
		r = io.LimitReader(r, int64(limit))
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Answer resolves one query line. Every query counts toward the served
// counter whatever its outcome.
func (e *Engine) Answer(ctx context.Context, line string) Result {
	q := ParseQuery(line)
	ctx, span := e.tracer.Start(ctx, "whois."+string(q.Kind),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("whois.query", q.Value)),
	)
	defer span.End()

	res := e.lookup(ctx, q)

	if err := e.store.IncrementCounter(ctx, e.cfg.CounterName); err != nil {
		span.RecordError(err)
		e.logger.ErrorContext(ctx, "failed to increment whois counter",
			"counter", e.cfg.CounterName,
			"remote", requestcontext.ClientIP(ctx),
			"error", err,
		)
	}

	span.SetAttributes(attribute.String("whois.outcome", string(res.Outcome)))
	if res.Outcome == OutcomeError {
		span.SetStatus(codes.Error, res.Text)
	}
	e.metrics.IncrementWHOISQuery(string(q.Kind), string(res.Outcome))
	e.logger.InfoContext(ctx, "whois query",
		"remote", requestcontext.ClientIP(ctx),
		"query", q.Value,
		"result", logResult(res.Outcome),
	)
	return res
}

func logResult(o Outcome) string {
	switch o {
	case OutcomeFound:
		return "FOUND"
	case OutcomeNotFound:
		return "NOT FOUND"
	default:
		return strings.ToUpper(string(o))
	}
}

func (e *Engine) lookup(ctx context.Context, q Query) Result {
	if msg := q.syntaxError(); msg != "" {
		return Result{Query: q, Outcome: OutcomeRejected, Text: msg}
	}

	now := requestcontext.Now(ctx)
	switch q.Kind {
	case KindNameserver:
		h, err := e.store.FindHost(ctx, q.Value)
		if err != nil {
			return e.failed(ctx, q, err)
		}
		return Result{Query: q, Outcome: OutcomeFound, Text: e.format.nameserver(h, now)}

	case KindRegistrar:
		r, err := e.store.FindRegistrar(ctx, q.Value)
		if err != nil {
			return e.failed(ctx, q, err)
		}
		return Result{Query: q, Outcome: OutcomeFound, Text: e.format.registrar(r, now)}

	default:
		msg, err := e.checkDomain(ctx, q.Value)
		if err != nil {
			return e.failed(ctx, q, err)
		}
		if msg != "" {
			return Result{Query: q, Outcome: OutcomeRejected, Text: msg}
		}
		d, err := e.store.FindDomain(ctx, strings.ToLower(q.Value), e.cfg.MaxNameservers)
		if err != nil {
			return e.failed(ctx, q, err)
		}
		return Result{Query: q, Outcome: OutcomeFound, Text: e.format.domain(d, now)}
	}
}

// checkDomain applies zone policy to a domain query. It returns the reply
// for a rejected name, or an error when policy could not be read.
func (e *Engine) checkDomain(ctx context.Context, domain string) (string, error) {
	name, zone, ok := e.matcher.Split(domain)
	if !ok {
		return MsgInvalidTLD, nil
	}

	policy, err := e.zones.ZonePolicy(ctx, zone)
	if errors.Is(err, sentinel.ErrNotFound) {
		return MsgInvalidTLD, nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup zone %s: %w", zone, err)
	}
	if !policy.Supported {
		return MsgInvalidTLD, nil
	}

	reserved, err := e.zones.IsReserved(ctx, name)
	if err != nil {
		return "", fmt.Errorf("check reserved %s: %w", name, err)
	}
	if reserved {
		return MsgReserved, nil
	}

	if policy.IDNTable == "" {
		return MsgPolicyMissing, nil
	}
	ok, err = e.matcher.MatchesPolicy(policy, name)
	if err != nil {
		e.logger.WarnContext(ctx, "idn table unusable", "zone", zone, "error", err)
		return MsgDomainFormat, nil
	}
	if !ok {
		return MsgDomainFormat, nil
	}
	return "", nil
}

func (e *Engine) failed(ctx context.Context, q Query, err error) Result {
	if errors.Is(err, sentinel.ErrNotFound) {
		return Result{Query: q, Outcome: OutcomeNotFound, Text: MsgNotFound}
	}
	trace.SpanFromContext(ctx).RecordError(err)
	e.logger.ErrorContext(ctx, "whois lookup failed",
		"kind", string(q.Kind),
		"query", q.Value,
		"remote", requestcontext.ClientIP(ctx),
		"error", err,
	)
	return Result{Query: q, Outcome: OutcomeError, Text: MsgDatabaseError}
}
