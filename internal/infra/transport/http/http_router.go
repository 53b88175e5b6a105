package http

import (
	"net/http"
	"slices"
	"sync"
)

// Mux registers handlers by pattern. Both *http.ServeMux and *Router implement it.
type Mux interface {
	Handle(pattern string, handler http.Handler)
	HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request))
}

// RouteRegistrar is implemented by service transports that mount their routes on a shared mux.
type RouteRegistrar interface {
	RegisterRoutes(mux Mux)
}

// Router is a ServeMux that remembers the patterns registered on it.
type Router struct {
	mux      *http.ServeMux
	m        sync.Mutex
	patterns []string
}

var (
	_ Mux          = (*Router)(nil)
	_ Mux          = (*http.ServeMux)(nil)
	_ http.Handler = (*Router)(nil)
)

// NewRouter returns a router carrying the routes of every registrar.
func NewRouter(registrars ...RouteRegistrar) *Router {
	router := &Router{mux: http.NewServeMux()}
	for _, registrar := range registrars {
		registrar.RegisterRoutes(router)
	}

	return router
}

// Handle registers handler for pattern.
func (rt *Router) Handle(pattern string, handler http.Handler) {
	rt.mux.Handle(pattern, handler)

	rt.m.Lock()
	rt.patterns = append(rt.patterns, pattern)
	rt.m.Unlock()
}

// HandleFunc registers handler for pattern.
func (rt *Router) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	rt.Handle(pattern, http.HandlerFunc(handler))
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}

// Routes returns the registered patterns, sorted.
func (rt *Router) Routes() []string {
	rt.m.Lock()
	defer rt.m.Unlock()

	routes := slices.Clone(rt.patterns)
	slices.Sort(routes)

	return routes
}
