package medidasvc

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/mkrupp/vidrio/internal/domain"
	context_ "github.com/mkrupp/vidrio/internal/infra/context"
	"github.com/mkrupp/vidrio/internal/infra/logging"
	http_ "github.com/mkrupp/vidrio/internal/infra/transport/http"
	"github.com/mkrupp/vidrio/internal/util/errutil"
)

const maxBodySize = 1 << 20

// HTTPTransport serves the medidas CRUD endpoints. Every route requires a session.
type HTTPTransport struct {
	svc *MedidaService
	log logging.Logger
}

var (
	_ http_.HTTPTransport   = (*HTTPTransport)(nil)
	_ http_.RouteRegistrar = (*HTTPTransport)(nil)
)

// NewHTTPTransport creates a new HTTPTransport instance.
func NewHTTPTransport(svc *MedidaService) *HTTPTransport {
	return &HTTPTransport{
		svc: svc,
		log: logging.GetLogger("svc.medidasvc.http_transport"),
	}
}

// RegisterRoutes mounts:
// - GET /medidas: list
// - POST /medidas: create from nombre, unidad, descripcion
// - GET /medidas/{id}: fetch one
// - PUT /medidas/{id}: replace nombre, unidad, descripcion
// - DELETE /medidas/{id}: delete.
func (ht *HTTPTransport) RegisterRoutes(mux http_.Mux) {
	gated := func(h http.HandlerFunc) http.Handler { return http_.RequireSession(h, ht.log) }

	mux.Handle("GET /medidas", gated(ht.HandleList))
	mux.Handle("POST /medidas", gated(ht.HandleCreate))
	mux.Handle("GET /medidas/{id}", gated(ht.HandleGet))
	mux.Handle("PUT /medidas/{id}", gated(ht.HandleUpdate))
	mux.Handle("DELETE /medidas/{id}", gated(ht.HandleDelete))
}

// ServeHTTP implements http.Handler. The session must already be in the request context.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	ht.RegisterRoutes(mux)
	mux.ServeHTTP(w, r)
}

// HandleList returns all medidas.
func (ht *HTTPTransport) HandleList(w http.ResponseWriter, r *http.Request) {
	medidas, err := ht.svc.List(r.Context())
	if err != nil {
		ht.fail(w, r, err)

		return
	}

	_ = http_.WriteOK(w, http.StatusOK, medidas)
}

// HandleCreate adds a medida owned by the session user.
func (ht *HTTPTransport) HandleCreate(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleCreate(w, r)
}

func (ht *HTTPTransport) handleCreate(w http.ResponseWriter, r *http.Request) error {
	claim, _ := context_.SessionFromContext(r.Context())

	in, err := decodeInput(w, r)
	if err != nil {
		return ht.invalid(w, r, err)
	}

	created, err := ht.svc.Create(r.Context(), in, claim.Email)
	if err != nil {
		return ht.fail(w, r, err)
	}

	//nolint:exhaustruct
	return http_.WriteJSON(w, http.StatusCreated, http_.Response{
		Outcome:  http_.OutcomeOK,
		Message:  "Medida creada.",
		Redirect: "/medidas",
		Data:     created,
	})
}

// HandleGet returns one medida.
func (ht *HTTPTransport) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		_ = http_.WriteNotFound(w, "No existe la medida.")

		return
	}

	m, err := ht.svc.Get(r.Context(), id)
	if err != nil {
		ht.fail(w, r, err)

		return
	}

	_ = http_.WriteOK(w, http.StatusOK, m)
}

// HandleUpdate replaces the editable fields of a medida.
func (ht *HTTPTransport) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleUpdate(w, r)
}

func (ht *HTTPTransport) handleUpdate(w http.ResponseWriter, r *http.Request) error {
	id, ok := pathID(r)
	if !ok {
		return http_.WriteNotFound(w, "No existe la medida.")
	}

	in, err := decodeInput(w, r)
	if err != nil {
		return ht.invalid(w, r, err)
	}

	updated, err := ht.svc.Update(r.Context(), id, in)
	if err != nil {
		return ht.fail(w, r, err)
	}

	//nolint:exhaustruct
	return http_.WriteJSON(w, http.StatusOK, http_.Response{
		Outcome:  http_.OutcomeOK,
		Message:  "Medida actualizada.",
		Redirect: "/medidas",
		Data:     updated,
	})
}

// HandleDelete removes a medida.
func (ht *HTTPTransport) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		_ = http_.WriteNotFound(w, "No existe la medida.")

		return
	}

	if err := ht.svc.Delete(r.Context(), id); err != nil {
		ht.fail(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (ht *HTTPTransport) invalid(w http.ResponseWriter, r *http.Request, err error) error {
	ht.log.DebugContext(r.Context(), "decode medida failed", "error", err)

	return http_.WriteInvalid(w, "invalid_body", "No se pudo leer la solicitud.")
}

func (ht *HTTPTransport) fail(w http.ResponseWriter, r *http.Request, err error) error {
	switch {
	case errors.Is(err, domain.ErrMedidaInvalid):
		return http_.WriteInvalid(w, "missing_fields", "Nombre y unidad son obligatorios.")
	case errors.Is(err, domain.ErrMedidaNotFound):
		return http_.WriteNotFound(w, "No existe la medida.")
	default:
		ht.log.ErrorContext(r.Context(), "medida request failed", append(errutil.Attrs(err),
			logging.Group("http", "method", r.Method, "url", r.URL.String()))...)

		return http_.WriteFault(w)
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)

	return id, err == nil && id > 0
}

// decodeInput reads a JSON body or, for any other content type, form values.
func decodeInput(w http.ResponseWriter, r *http.Request) (domain.MedidaInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var in domain.MedidaInput

	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			return in, fmt.Errorf("decode json: %w", err)
		}

		return in, nil
	}

	if err := r.ParseForm(); err != nil {
		return in, fmt.Errorf("parse form: %w", err)
	}

	in.Nombre = r.PostFormValue("nombre")
	in.Unidad = r.PostFormValue("unidad")
	in.Descripcion = r.PostFormValue("descripcion")

	return in, nil
}

