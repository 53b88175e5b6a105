package logging

import (
	"context"
	"log/slog"
	"strings"

	context_ "github.com/mkrupp/vidrio/internal/infra/context"
)

const redacted = "[redacted]"

//nolint:gochecknoglobals
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"confirm":       {},
	"password_hash": {},
	"token":         {},
	"cookie":        {},
}

// ContextHandler wraps another slog.Handler. It adds the trace ID and the session
// email found in the context to every record and masks sensitive attributes.
type ContextHandler struct {
	h slog.Handler
}

var _ slog.Handler = (*ContextHandler)(nil)

// NewContextHandler creates a new ContextHandler wrapping the given handler.
func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{h: h}
}

// Handle implements slog.Handler.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	masked := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)

	r.Attrs(func(a slog.Attr) bool {
		masked.AddAttrs(redact(a))

		return true
	})

	if traceID, ok := context_.TraceIDFromContext(ctx); ok {
		masked.AddAttrs(slog.Group("trace", slog.String("id", traceID)))
	}

	if claim, ok := context_.SessionFromContext(ctx); ok {
		masked.AddAttrs(slog.Group("session", slog.String("email", claim.Email)))
	}

	//nolint:wrapcheck
	return h.h.Handle(ctx, masked)
}

// WithAttrs implements slog.Handler.WithAttrs.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = redact(a)
	}

	return NewContextHandler(h.h.WithAttrs(masked))
}

// WithGroup implements slog.Handler.WithGroup.
func (h *ContextHandler) WithGroup(name string) Handler {
	return NewContextHandler(h.h.WithGroup(name))
}

// Enabled implements slog.Handler.Enabled.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.h.Enabled(ctx, level)
}

func redact(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		masked := make([]any, len(group))

		for i, ga := range group {
			masked[i] = redact(ga)
		}

		return slog.Group(a.Key, masked...)
	}

	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}

	return a
}
