package http

import (
	"net/http"
	"time"
)

// RequestObserver records finished requests.
type RequestObserver interface {
	RequestStarted() (done func())
	ObserveRequest(method, route string, status int, duration time.Duration)
}

// MetricsMiddleware creates middleware that reports every request to observer.
// The route label is the ServeMux pattern, so it must wrap the mux directly.
func MetricsMiddleware(next http.Handler, observer RequestObserver) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		done := observer.RequestStarted()
		defer done()

		start := time.Now()
		rec := NewStatusRecorder(w)

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}

		observer.ObserveRequest(r.Method, route, rec.StatusCode, time.Since(start))
	})
}
