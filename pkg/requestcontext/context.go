// Package requestcontext provides transport-independent context accessors for
// connection-scoped values.
//
// Listeners set these values when a connection is accepted; protocol engines
// and stores read them for logging and time-dependent decisions.
//
// Usage in engines (read values):
//
//	sessionID := requestcontext.SessionID(ctx)
//	remote := requestcontext.ClientIP(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type (
	sessionIDKey   struct{}
	clientIPKey    struct{}
	registrarKey   struct{}
	requestTimeKey struct{}
)

var (
	ContextKeySessionID   = sessionIDKey{}
	ContextKeyClientIP    = clientIPKey{}
	ContextKeyRegistrar   = registrarKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// SessionID returns the connection id, or uuid.Nil when not set.
func SessionID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(ContextKeySessionID).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// WithSessionID tags the context with a connection id.
func WithSessionID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, id)
}

// ClientIP returns the remote address of the connection.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// WithClientIP injects the remote address.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ContextKeyClientIP, ip)
}

// RegistrarCLID returns the clID of the logged-in registrar, if any.
func RegistrarCLID(ctx context.Context) string {
	if clid, ok := ctx.Value(ContextKeyRegistrar).(string); ok {
		return clid
	}
	return ""
}

// WithRegistrarCLID injects the logged-in registrar clID.
func WithRegistrarCLID(ctx context.Context, clid string) context.Context {
	return context.WithValue(ctx, ContextKeyRegistrar, clid)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() when not set (workers, sync loops, production paths).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request time. Used by tests and by callers that need a
// consistent "today" across several lookups.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
