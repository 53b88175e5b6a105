package fotosvc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/mkrupp/vidrio/internal/domain"
	context_ "github.com/mkrupp/vidrio/internal/infra/context"
	"github.com/mkrupp/vidrio/internal/infra/logging"
	http_ "github.com/mkrupp/vidrio/internal/infra/transport/http"
	"github.com/mkrupp/vidrio/internal/util/errutil"
)

const (
	msgNotFound    = "No existe la foto."
	msgInvalid     = "Datos de foto inválidos."
	msgTooLarge    = "La imagen es demasiado grande."
	msgUnsupported = "Solo se admiten imágenes PNG."
)

//nolint:gochecknoglobals
var imageFiles = map[string]domain.FotoVariant{
	"original.png": domain.FotoOriginal,
	"anotada.png":  domain.FotoAnotada,
}

// HTTPTransport handles HTTP requests for the fotos service. Every route requires a session.
type HTTPTransport struct {
	svc *FotoService
	log logging.Logger
}

var (
	_ http_.HTTPTransport   = (*HTTPTransport)(nil)
	_ http_.RouteRegistrar = (*HTTPTransport)(nil)
)

// NewHTTPTransport creates a new HTTPTransport instance.
func NewHTTPTransport(svc *FotoService) *HTTPTransport {
	return &HTTPTransport{
		svc: svc,
		log: logging.GetLogger("svc.fotosvc.http_transport"),
	}
}

// RegisterRoutes mounts:
// - GET /fotos: list
// - POST /fotos: upload a JSON document {nombre, original, anotada, anotaciones}
// - GET /fotos/{id}: fetch the record
// - DELETE /fotos/{id}: delete
// - GET /fotos/{id}/{file}: original.png or anotada.png, optionally ?width=N.
func (ht *HTTPTransport) RegisterRoutes(mux http_.Mux) {
	gated := func(h http.HandlerFunc) http.Handler { return http_.RequireSession(h, ht.log) }

	mux.Handle("GET /fotos", gated(ht.HandleList))
	mux.Handle("POST /fotos", gated(ht.HandleUpload))
	mux.Handle("GET /fotos/{id}", gated(ht.HandleGet))
	mux.Handle("DELETE /fotos/{id}", gated(ht.HandleDelete))
	mux.Handle("GET /fotos/{id}/{file}", gated(ht.HandleImage))
}

// ServeHTTP implements http.Handler. The session must already be in the request context.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	ht.RegisterRoutes(mux)
	mux.ServeHTTP(w, r)
}

// HandleList returns every foto record.
func (ht *HTTPTransport) HandleList(w http.ResponseWriter, r *http.Request) {
	fotos, err := ht.svc.List(r.Context())
	if err != nil {
		_ = ht.fail(w, r, err)

		return
	}

	_ = http_.WriteOK(w, http.StatusOK, fotos)
}

// HandleUpload stores a foto owned by the session user.
func (ht *HTTPTransport) HandleUpload(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleUpload(w, r)
}

func (ht *HTTPTransport) handleUpload(w http.ResponseWriter, r *http.Request) error {
	claim, _ := context_.SessionFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, ht.svc.MaxBodySize())

	var form UploadForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return ht.fail(w, r, fmt.Errorf("%w: %w", domain.ErrFotoTooLarge, err))
		}

		return ht.fail(w, r, fmt.Errorf("%w: decode json: %w", domain.ErrFotoInvalid, err))
	}

	created, err := ht.svc.Upload(r.Context(), form, claim.Email)
	if err != nil {
		return ht.fail(w, r, err)
	}

	//nolint:exhaustruct
	return http_.WriteJSON(w, http.StatusCreated, http_.Response{
		Outcome: http_.OutcomeOK,
		Message: "Foto guardada.",
		Data:    created,
	})
}

// HandleGet returns a foto record.
func (ht *HTTPTransport) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		_ = http_.WriteNotFound(w, msgNotFound)

		return
	}

	f, err := ht.svc.Get(r.Context(), id)
	if err != nil {
		_ = ht.fail(w, r, err)

		return
	}

	_ = http_.WriteOK(w, http.StatusOK, f)
}

// HandleDelete removes a foto.
func (ht *HTTPTransport) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		_ = http_.WriteNotFound(w, msgNotFound)

		return
	}

	if err := ht.svc.Delete(r.Context(), id); err != nil {
		_ = ht.fail(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleImage writes a foto PNG, scaled when the width query parameter is set.
func (ht *HTTPTransport) HandleImage(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleImage(w, r)
}

func (ht *HTTPTransport) handleImage(w http.ResponseWriter, r *http.Request) error {
	id, ok := pathID(r)
	if !ok {
		return http_.WriteNotFound(w, msgNotFound)
	}

	variant, ok := imageFiles[r.PathValue("file")]
	if !ok {
		return http_.WriteNotFound(w, msgNotFound)
	}

	var width int

	if widthStr := r.URL.Query().Get("width"); widthStr != "" {
		parsed, err := strconv.Atoi(widthStr)
		if err != nil || parsed <= 0 {
			return http_.WriteInvalid(w, "invalid_width", msgInvalid)
		}

		width = parsed
	}

	img, err := ht.svc.Image(r.Context(), id, variant, width)
	if err != nil {
		return ht.fail(w, r, err)
	}

	w.Header().Set("Content-Type", MIMETypePNG)
	w.Header().Set("Content-Length", strconv.FormatInt(img.Size(), 10))
	w.Header().Set("ETag", strconv.Quote(img.ID.String()))
	w.Header().Set("Cache-Control", "private, max-age=3600")

	if _, err := img.WriteTo(w); err != nil {
		ht.log.DebugContext(r.Context(), "write image failed", "error", err)

		return fmt.Errorf("write to: %w", err)
	}

	return nil
}

func (ht *HTTPTransport) fail(w http.ResponseWriter, r *http.Request, err error) error {
	switch {
	case errors.Is(err, domain.ErrFotoNotFound), errors.Is(err, domain.ErrBlobNotFound):
		return http_.WriteNotFound(w, msgNotFound)
	case errors.Is(err, domain.ErrFotoTooLarge):
		return http_.WriteInvalid(w, "too_large", msgTooLarge)
	case errors.Is(err, domain.ErrImageTypeNotSupported):
		return http_.WriteInvalid(w, "unsupported_type", msgUnsupported)
	case errors.Is(err, domain.ErrInvalidWidth):
		return http_.WriteInvalid(w, "invalid_width", msgInvalid)
	case errors.Is(err, domain.ErrFotoInvalid):
		return http_.WriteInvalid(w, "invalid_foto", msgInvalid)
	default:
		ht.log.ErrorContext(r.Context(), "foto request failed", append(errutil.Attrs(err),
			logging.Group("http", "method", r.Method, "url", r.URL.String()))...)

		return http_.WriteFault(w)
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)

	return id, err == nil && id > 0
}
