// Package appsvc serves the application shell: landing redirect, dashboard,
// placeholder module pages, and the operational routes listing and metrics.
package appsvc

import (
	"net/http"

	context_ "github.com/mkrupp/vidrio/internal/infra/context"
	"github.com/mkrupp/vidrio/internal/infra/logging"
	http_ "github.com/mkrupp/vidrio/internal/infra/transport/http"
)

// Module is a dashboard tile.
type Module struct {
	Name string `json:"name"`
	Href string `json:"href"`
	Img  string `json:"img"`
}

// Dashboard is the payload of GET /dashboard.
type Dashboard struct {
	User    string   `json:"user"`
	Modules []Module `json:"modules"`
}

// Placeholder is the payload of a module that has no content yet.
type Placeholder struct {
	Title string `json:"title"`
}

// RouteLister reports the registered route patterns.
type RouteLister interface {
	Routes() []string
}

// Modules lists the dashboard tiles in display order.
//
//nolint:gochecknoglobals
var Modules = []Module{
	{Name: "Clientes", Href: "/clientes", Img: "img/clientes.png"},
	{Name: "Productos", Href: "/productos", Img: "img/productos.png"},
	{Name: "Pedidos", Href: "/pedidos", Img: "img/pedidos.png"},
	{Name: "Cotizaciones", Href: "/cotizaciones", Img: "img/cotizaciones.png"},
	{Name: "Inventario", Href: "/inventario", Img: "img/inventario.png"},
	{Name: "Reportes", Href: "/reportes", Img: "img/reportes.png"},
}

// HTTPTransport serves the application shell.
type HTTPTransport struct {
	routes  RouteLister
	metrics http.Handler
	log     logging.Logger
}

var (
	_ http_.HTTPTransport   = (*HTTPTransport)(nil)
	_ http_.RouteRegistrar = (*HTTPTransport)(nil)
)

// NewHTTPTransport creates a new HTTPTransport instance.
// GET /routes is mounted when routes is set, GET /metrics when metrics is set.
func NewHTTPTransport(routes RouteLister, metrics http.Handler) *HTTPTransport {
	return &HTTPTransport{
		routes:  routes,
		metrics: metrics,
		log:     logging.GetLogger("svc.appsvc.http_transport"),
	}
}

// RegisterRoutes mounts:
// - GET /{$}: 303 to the dashboard or the login page
// - GET /dashboard: session email and module list
// - GET /<module>: placeholder page of each dashboard module
// - GET /routes: registered route patterns
// - GET /metrics: Prometheus exposition.
func (ht *HTTPTransport) RegisterRoutes(mux http_.Mux) {
	mux.HandleFunc("GET /{$}", ht.HandleRoot)
	mux.Handle("GET /dashboard", http_.RequireSession(http.HandlerFunc(ht.HandleDashboard), ht.log))

	for _, module := range Modules {
		mux.Handle("GET "+module.Href, http_.RequireSession(placeholder(module.Name), ht.log))
	}

	if ht.routes != nil {
		mux.HandleFunc("GET /routes", ht.HandleRoutes)
	}

	if ht.metrics != nil {
		mux.Handle("GET /metrics", ht.metrics)
	}
}

// ServeHTTP implements http.Handler. The session must already be in the request context.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	ht.RegisterRoutes(mux)
	mux.ServeHTTP(w, r)
}

// HandleRoot redirects to the dashboard when a session is present, otherwise to the login page.
func (ht *HTTPTransport) HandleRoot(w http.ResponseWriter, r *http.Request) {
	target := http_.LoginPath
	if _, ok := context_.SessionFromContext(r.Context()); ok {
		target = http_.DashboardPath
	}

	http.Redirect(w, r, target, http.StatusSeeOther)
}

// HandleDashboard returns the session email and the module tiles.
// The user is the email stored in the session; the credential store is not consulted.
func (ht *HTTPTransport) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	claim, _ := context_.SessionFromContext(r.Context())

	_ = http_.WriteOK(w, http.StatusOK, Dashboard{User: claim.Email, Modules: Modules})
}

// HandleRoutes lists the registered route patterns.
func (ht *HTTPTransport) HandleRoutes(w http.ResponseWriter, _ *http.Request) {
	_ = http_.WriteOK(w, http.StatusOK, ht.routes.Routes())
}

func placeholder(title string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = http_.WriteOK(w, http.StatusOK, Placeholder{Title: title})
	})
}
