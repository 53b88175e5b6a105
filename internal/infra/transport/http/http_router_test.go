package http_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	http_ "github.com/mkrupp/vidrio/internal/infra/transport/http"
)

type registrarFunc func(mux http_.Mux)

func (f registrarFunc) RegisterRoutes(mux http_.Mux) { f(mux) }

func TestRouter(t *testing.T) {
	t.Parallel()

	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) }

	router := http_.NewRouter(
		registrarFunc(func(mux http_.Mux) { mux.HandleFunc("POST /login", ok) }),
		registrarFunc(func(mux http_.Mux) { mux.Handle("GET /dashboard", http.HandlerFunc(ok)) }),
	)

	assert.Equal(t, []string{"GET /dashboard", "POST /login"}, router.Routes())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
