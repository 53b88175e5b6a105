// Package context holds typed request-scoped values shared by transports and loggers.
package context

import (
	"context"

	"github.com/mkrupp/vidrio/internal/domain"
)

type contextKey string

const (
	contextKeyTraceID = contextKey("traceID")
	contextKeySession = contextKey("session")
)

func value[T any](ctx context.Context, key contextKey) (T, bool) {
	v, ok := ctx.Value(key).(T)

	return v, ok
}

// TraceIDFromContext returns the request trace ID. The boolean is false when none is set.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	traceID, ok := value[string](ctx, contextKeyTraceID)

	return traceID, ok && traceID != ""
}

// WithTraceID returns a copy of ctx carrying traceID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, contextKeyTraceID, traceID)
}

// SessionFromContext returns the session claim loaded for the current request.
// The boolean is false when the request is anonymous.
func SessionFromContext(ctx context.Context) (domain.SessionClaim, bool) {
	claim, ok := value[domain.SessionClaim](ctx, contextKeySession)
	if !ok || claim.Anonymous() {
		return domain.SessionClaim{}, false
	}

	return claim, true
}

// WithSession returns a copy of ctx carrying claim.
func WithSession(ctx context.Context, claim domain.SessionClaim) context.Context {
	return context.WithValue(ctx, contextKeySession, claim)
}
