// Package errutil extracts oops codes and context from errors for logging and tests.
package errutil

import (
	"github.com/samber/oops"
)

// Code returns the oops code attached to err, or "" when there is none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	code, _ := oopsErr.Code().(string)

	return code
}

// Attrs returns slog key/value pairs describing err.
// oops errors contribute their code and context.
func Attrs(err error) []any {
	attrs := []any{"error", err}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return attrs
	}

	if code := oopsErr.Code(); code != nil {
		attrs = append(attrs, "code", code)
	}

	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}

	return attrs
}
