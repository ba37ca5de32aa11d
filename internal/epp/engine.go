// Package epp implements the EPP session over a framed TCP stream: the
// greeting, login state, dispatch to command handlers, and the ledger
// bookkeeping that pairs every command with its response.
package epp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"regcore/internal/ledger"
	"regcore/internal/platform/config"
	"regcore/internal/platform/metrics"
	"regcore/pkg/requestcontext"
)

// Ledger records each exchange.
type Ledger interface {
	Begin(ctx context.Context, registrarID int64, clTRID string, frame []byte) (*ledger.Transaction, error)
	Complete(ctx context.Context, id int64, o ledger.Outcome) (*ledger.Transaction, error)
}

// Authenticator checks registrar credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, clID, pw string) (int64, error)
	IDByCLID(ctx context.Context, clID string) (int64, error)
}

// Response is what a handler produces for a successful command.
type Response struct {
	Code       int
	Msg        string
	ObjectID   string
	ResData    any
	Extensions []any
}

// CommandHandler serves one command key.
type CommandHandler interface {
	Handle(ctx context.Context, sess *Session, req *Request) (*Response, error)
}

type HandlerFunc func(ctx context.Context, sess *Session, req *Request) (*Response, error)

func (f HandlerFunc) Handle(ctx context.Context, sess *Session, req *Request) (*Response, error) {
	return f(ctx, sess, req)
}

// Session is the per-connection state.
type Session struct {
	ID          uuid.UUID
	RemoteIP    string
	RegistrarID int64
	CLID        string
	StartedAt   time.Time
}

func (s *Session) LoggedIn() bool { return s.RegistrarID > 0 }

type Engine struct {
	cfg        config.EPP
	ledger     Ledger
	auth       Authenticator
	handlers   map[string]CommandHandler
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	retryDelay time.Duration
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

// WithHandler registers h for key ("domain:check", "poll").
func WithHandler(key string, h CommandHandler) Option {
	return func(e *Engine) {
		e.handlers[key] = h
	}
}

func New(cfg config.EPP, l Ledger, auth Authenticator, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		ledger:     l,
		auth:       auth,
		handlers:   make(map[string]CommandHandler),
		logger:     slog.Default(),
		tracer:     otel.Tracer("regcore/epp"),
		retryDelay: cfg.LedgerRetryDelay,
	}
	e.handlers["login"] = HandlerFunc(e.login)
	e.handlers["logout"] = HandlerFunc(e.logout)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds or replaces the handler for key.
func (e *Engine) Register(key string, h CommandHandler) {
	e.handlers[key] = h
}

// ServeConn runs one EPP session. It implements tcpserver.Handler.
func (e *Engine) ServeConn(ctx context.Context, conn net.Conn) {
	sess := &Session{
		ID:        requestcontext.SessionID(ctx),
		RemoteIP:  requestcontext.ClientIP(ctx),
		StartedAt: time.Now(),
	}
	e.metrics.SessionOpened()
	defer e.metrics.SessionClosed()

	log := e.logger.With("session_id", sess.ID.String(), "remote", sess.RemoteIP)
	log.InfoContext(ctx, "epp session opened")
	defer func() {
		log.InfoContext(ctx, "epp session closed", "registrar", sess.CLID, "duration", time.Since(sess.StartedAt))
	}()

	greeting, err := e.Greeting(ctx)
	if err != nil {
		log.ErrorContext(ctx, "failed to build greeting", "error", err)
		return
	}
	if err := e.write(conn, greeting); err != nil {
		return
	}

	for ctx.Err() == nil {
		if e.cfg.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(e.cfg.IdleTimeout))
		}
		frame, err := ReadFrame(conn, e.cfg.MaxFrameSize)
		if err != nil {
			if errors.Is(err, ErrFrameTooLarge) || errors.Is(err, ErrFrameTooShort) {
				log.WarnContext(ctx, "rejecting unframeable request", "error", err)
				out := e.reject(ctx, sess, nil)
				_ = e.write(conn, out)
				return
			}
			var ne net.Error
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			case errors.As(err, &ne) && ne.Timeout():
				log.InfoContext(ctx, "closing idle epp session")
			default:
				log.WarnContext(ctx, "epp read failed", "error", err)
			}
			return
		}

		out, closeAfter := e.Handle(ctx, sess, frame)
		if err := e.write(conn, out); err != nil {
			log.WarnContext(ctx, "epp write failed", "error", err)
			return
		}
		if closeAfter {
			return
		}
	}
}

func (e *Engine) write(conn net.Conn, payload []byte) error {
	if e.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(e.cfg.WriteTimeout))
	}
	return WriteFrame(conn, payload)
}

// Greeting builds the unsolicited server greeting.
func (e *Engine) Greeting(ctx context.Context) ([]byte, error) {
	return marshalGreeting(e.cfg.ServerID, requestcontext.Now(ctx).UTC().Format(DateFormat))
}

// Handle processes one request frame and returns the response document and
// whether the session ends after it.
func (e *Engine) Handle(ctx context.Context, sess *Session, frame []byte) ([]byte, bool) {
	start := time.Now()
	req, parseErr := ParseRequest(frame)
	if parseErr == nil && req.Hello {
		out, err := e.Greeting(ctx)
		if err != nil {
			return e.fail(ctx, sess, req.ClTRID, err)
		}
		return out, false
	}

	ctx, span := e.tracer.Start(ctx, "epp."+commandLabel(req),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("epp.session_id", sess.ID.String()),
			attribute.String("epp.cl_trid", req.ClTRID),
		),
	)
	defer span.End()

	registrarID := sess.RegistrarID
	if sess.LoggedIn() {
		ctx = requestcontext.WithRegistrarCLID(ctx, sess.CLID)
	} else if req.Login != nil {
		if id, err := e.auth.IDByCLID(ctx, req.Login.ClID); err == nil {
			registrarID = id
		}
	}

	clTRID := req.ClTRID
	var txID int64
	txn, err := e.ledger.Begin(ctx, registrarID, clTRID, frame)
	switch {
	case err == nil:
		txID = txn.ID
		clTRID = txn.ClientTRID
	case errors.Is(err, ledger.ErrMalformedCommand):
	default:
		e.metrics.IncrementLedgerFailure("begin")
		span.RecordError(err)
		e.logger.ErrorContext(ctx, "failed to record transaction start",
			"session_id", sess.ID.String(),
			"registrar_id", registrarID,
			"error", err,
		)
		return e.finish(ctx, span, start, sess, req, e.errorResponse(ctx, sess, CodeCommandFailed, "", clTRID, 0))
	}
	if clTRID == "" {
		clTRID = ledger.PlaceholderClientTRID()
	}

	if parseErr != nil {
		e.logger.InfoContext(ctx, "malformed epp document", "session_id", sess.ID.String(), "error", parseErr)
		return e.finish(ctx, span, start, sess, req, e.errorResponse(ctx, sess, CodeSyntaxError, "", clTRID, txID))
	}
	if !sess.LoggedIn() && req.Command != "login" {
		return e.finish(ctx, span, start, sess, req, e.errorResponse(ctx, sess, CodeUseError, "You must login first", clTRID, txID))
	}

	h, ok := e.handlers[req.Key()]
	if !ok {
		return e.finish(ctx, span, start, sess, req, e.errorResponse(ctx, sess, CodeUnimplementedCmd, "", clTRID, txID))
	}

	resp, err := h.Handle(ctx, sess, req)
	if err != nil {
		var eppErr *Error
		if errors.As(err, &eppErr) {
			return e.finish(ctx, span, start, sess, req, e.errorResponse(ctx, sess, eppErr.Code, eppErr.Msg, clTRID, txID))
		}
		span.RecordError(err)
		e.logger.ErrorContext(ctx, "epp command failed",
			"session_id", sess.ID.String(),
			"command", req.Key(),
			"error", err,
		)
		return e.finish(ctx, span, start, sess, req, e.errorResponse(ctx, sess, CodeCommandFailed, "", clTRID, txID))
	}
	return e.finish(ctx, span, start, sess, req, e.respond(ctx, sess, req, resp, clTRID, txID))
}

// reject answers a request that could not be framed.
func (e *Engine) reject(ctx context.Context, sess *Session, frame []byte) []byte {
	var txID int64
	clTRID := ledger.PlaceholderClientTRID()
	if txn, err := e.ledger.Begin(ctx, sess.RegistrarID, clTRID, frame); err == nil {
		txID = txn.ID
	}
	out := e.errorResponse(ctx, sess, CodeSyntaxError, "", clTRID, txID)
	return out.body
}

type outcome struct {
	body    []byte
	code    int
	svTRID  string
	closing bool
}

func (e *Engine) finish(ctx context.Context, span trace.Span, start time.Time, sess *Session, req *Request, o outcome) ([]byte, bool) {
	elapsed := time.Since(start)
	span.SetAttributes(attribute.Int("epp.result_code", o.code), attribute.String("epp.sv_trid", o.svTRID))
	if o.code >= 2000 {
		span.SetStatus(codes.Error, Message(o.code))
	}
	e.metrics.ObserveEPPCommand(commandLabel(req), o.code, elapsed)
	e.logger.InfoContext(ctx, "epp command",
		"session_id", requestcontext.SessionID(ctx).String(),
		"command", commandLabel(req),
		"code", o.code,
		"sv_trid", o.svTRID,
		"registrar", sess.CLID,
		"duration", elapsed,
	)
	return o.body, o.closing
}

func (e *Engine) respond(ctx context.Context, sess *Session, req *Request, resp *Response, clTRID string, txID int64) outcome {
	code := resp.Code
	if code == 0 {
		code = CodeSuccess
	}
	msg := resp.Msg
	if msg == "" {
		msg = Message(code)
	}

	svTRID := NewServerTRID(e.cfg.Prefix, requestcontext.Now(ctx))
	body, err := marshalResponse(code, msg, resp.ResData, resp.Extensions, clTRID, svTRID)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to marshal epp response", "command", req.Key(), "error", err)
		return e.errorResponse(ctx, sess, CodeCommandFailed, "", clTRID, txID)
	}

	_, err = e.ledger.Complete(ctx, txID, ledger.Outcome{
		Command:     req.Command,
		ObjectType:  req.Object,
		ObjectID:    resp.ObjectID,
		Code:        code,
		Message:     msg,
		ServerTRID:  svTRID,
		ServerFrame: body,
	})
	if err != nil && !errors.Is(err, ledger.ErrNoTransaction) {
		e.metrics.IncrementLedgerFailure("complete")
		e.logger.ErrorContext(ctx, "failed to record transaction completion",
			"transaction_id", txID,
			"command", req.Key(),
			"sv_trid", svTRID,
			"error", err,
		)
		return e.errorResponse(ctx, sess, CodeCommandFailed, "", clTRID, txID)
	}
	return outcome{body: body, code: code, svTRID: svTRID, closing: closes(code)}
}

// errorResponse builds an error document and records it on transaction
// txID. A failed ledger update is retried once; the response is returned
// either way.
func (e *Engine) errorResponse(ctx context.Context, sess *Session, code int, msg, clTRID string, txID int64) outcome {
	if msg == "" {
		msg = Message(code)
	}
	if clTRID == "" {
		clTRID = ledger.PlaceholderClientTRID()
	}
	svTRID := NewServerTRID(e.cfg.Prefix, requestcontext.Now(ctx))
	body, err := marshalResponse(code, msg, nil, nil, clTRID, svTRID)
	if err != nil {
		// Only reachable with a broken encoder; the fields are plain strings.
		e.logger.ErrorContext(ctx, "failed to marshal epp error", "code", code, "error", err)
	}

	o := ledger.Outcome{Code: code, Message: msg, ServerTRID: svTRID, ServerFrame: body}
	_, err = e.ledger.Complete(ctx, txID, o)
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrNoTransaction):
		e.logger.InfoContext(ctx, "epp error without transaction row",
			"session_id", sess.ID.String(),
			"remote", sess.RemoteIP,
			"code", code,
			"cl_trid", clTRID,
			"sv_trid", svTRID,
		)
	default:
		e.metrics.IncrementLedgerFailure("complete")
		if !sleepCtx(ctx, e.retryDelay) {
			break
		}
		if _, retryErr := e.ledger.Complete(ctx, txID, o); retryErr != nil {
			e.metrics.IncrementLedgerFailure("complete_retry")
			e.logger.ErrorContext(ctx, "failed to record epp error response",
				"transaction_id", txID,
				"registrar_id", sess.RegistrarID,
				"session_id", sess.ID.String(),
				"remote", sess.RemoteIP,
				"code", code,
				"msg", msg,
				"cl_trid", clTRID,
				"sv_trid", svTRID,
				"first_error", err,
				"error", retryErr,
			)
		}
	}
	return outcome{body: body, code: code, svTRID: svTRID, closing: closes(code)}
}

func (e *Engine) fail(ctx context.Context, sess *Session, clTRID string, err error) ([]byte, bool) {
	e.logger.ErrorContext(ctx, "epp request failed", "session_id", sess.ID.String(), "error", err)
	o := e.errorResponse(ctx, sess, CodeCommandFailed, "", clTRID, 0)
	return o.body, o.closing
}

func commandLabel(req *Request) string {
	if req == nil || req.Command == "" {
		return "unknown"
	}
	return req.Key()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
