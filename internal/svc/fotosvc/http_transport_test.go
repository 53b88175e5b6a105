package fotosvc_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/vidrio/internal/domain"
	context_ "github.com/mkrupp/vidrio/internal/infra/context"
	"github.com/mkrupp/vidrio/internal/svc/fotosvc"
)

type fotoResponse struct {
	Outcome string          `json:"outcome"`
	Kind    string          `json:"kind"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func serve(t *testing.T, h http.Handler, r *http.Request, session bool) (*httptest.ResponseRecorder, fotoResponse) {
	t.Helper()

	if session {
		//nolint:exhaustruct
		r = r.WithContext(context_.WithSession(r.Context(), domain.SessionClaim{Email: testEmail}))
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	var body fotoResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}

	return rec, body
}

func uploadBody(t *testing.T, form fotosvc.UploadForm) *strings.Reader {
	t.Helper()

	raw, err := json.Marshal(form)
	require.NoError(t, err)

	return strings.NewReader(string(raw))
}

func TestHTTPTransport_Fotos(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, defaultConfig())
	h := fotosvc.NewHTTPTransport(fx.svc)

	rec, _ := serve(t, h, httptest.NewRequest(http.MethodGet, "/fotos", nil), false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	original := encodePNG(t, 40, 20, 0x55)

	rec, body := serve(t, h, httptest.NewRequest(http.MethodPost, "/fotos", uploadBody(t, fotosvc.UploadForm{
		Nombre:      "Puerta",
		Original:    dataURL(original),
		Anotaciones: json.RawMessage(`[{"x":1}]`),
	})), true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Foto guardada.", body.Message)

	var created domain.Foto
	require.NoError(t, json.Unmarshal(body.Data, &created))
	assert.Equal(t, testEmail, created.CreadoPor)

	base := "/fotos/" + strconv.FormatInt(created.ID, 10)

	rec, body = serve(t, h, httptest.NewRequest(http.MethodGet, base, nil), true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body.Data), `"anotaciones":[{"x":1}]`)

	rec, _ = serve(t, h, httptest.NewRequest(http.MethodGet, base+"/original.png", nil), true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, fotosvc.MIMETypePNG, rec.Header().Get("Content-Type"))
	assert.Equal(t, original, rec.Body.Bytes())

	rec, _ = serve(t, h, httptest.NewRequest(http.MethodGet, base+"/original.png?width=10", nil), true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, original, rec.Body.Bytes())

	for path, want := range map[string]struct {
		status int
		kind   string
	}{
		base + "/anotada.png":           {http.StatusNotFound, ""},
		base + "/otro.png":              {http.StatusNotFound, ""},
		base + "/original.png?width=x":  {http.StatusUnprocessableEntity, "invalid_width"},
		base + "/original.png?width=0":  {http.StatusUnprocessableEntity, "invalid_width"},
		base + "/original.png?width=65": {http.StatusUnprocessableEntity, "invalid_width"},
		"/fotos/abc":                    {http.StatusNotFound, ""},
		"/fotos/999":                    {http.StatusNotFound, ""},
	} {
		rec, body = serve(t, h, httptest.NewRequest(http.MethodGet, path, nil), true)
		assert.Equal(t, want.status, rec.Code, path)

		if want.kind != "" {
			assert.Equal(t, want.kind, body.Kind, path)
		}
	}

	rec, body = serve(t, h, httptest.NewRequest(http.MethodGet, "/fotos", nil), true)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []domain.Foto
	require.NoError(t, json.Unmarshal(body.Data, &list))
	assert.Len(t, list, 1)

	rec, _ = serve(t, h, httptest.NewRequest(http.MethodDelete, base, nil), true)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = serve(t, h, httptest.NewRequest(http.MethodGet, base+"/original.png", nil), true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPTransport_UploadErrors(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.MaxBodySize = 1024

	fx := newFixture(t, cfg)
	h := fotosvc.NewHTTPTransport(fx.svc)

	tests := []struct {
		name string
		body string
		kind string
	}{
		{"broken json", "{", "invalid_foto"},
		{"missing nombre", `{"original":"AAAA"}`, "invalid_foto"},
		{"not png", `{"nombre":"x","original":"data:image/jpeg;base64,AAAA"}`, "unsupported_type"},
		{"body too large", `{"nombre":"x","original":"` + strings.Repeat("A", 2048) + `"}`, "too_large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := serve(t, h, httptest.NewRequest(http.MethodPost, "/fotos", strings.NewReader(tt.body)), true)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Equal(t, tt.kind, body.Kind)
		})
	}
}
