package http

import (
	"net/http"

	"github.com/mkrupp/vidrio/internal/domain"
	context_ "github.com/mkrupp/vidrio/internal/infra/context"
	"github.com/mkrupp/vidrio/internal/infra/logging"
)

// SessionReader reads the session claim carried by a request.
type SessionReader interface {
	Current(r *http.Request) (domain.SessionClaim, bool)
}

// SessionMiddleware creates middleware that loads the session claim into the request context.
// Anonymous requests pass through unchanged.
func SessionMiddleware(next http.Handler, sessions SessionReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claim, ok := sessions.Current(r)
		if !ok {
			next.ServeHTTP(w, r)

			return
		}

		next.ServeHTTP(w, r.WithContext(context_.WithSession(r.Context(), claim)))
	})
}

// RequireSession rejects requests whose context carries no session claim.
// It must run below SessionMiddleware.
func RequireSession(next http.Handler, log logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := context_.SessionFromContext(r.Context()); !ok {
			log.DebugContext(r.Context(), "anonymous request rejected", "path", r.URL.Path)

			_ = WriteUnauthenticated(w)

			return
		}

		next.ServeHTTP(w, r)
	})
}
