package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	http_ "github.com/mkrupp/vidrio/internal/infra/transport/http"
	"github.com/mkrupp/vidrio/internal/util/errutil"
)

// setupEnv points every storage path at a temp dir and keeps hashing cheap.
// t.Setenv rules out t.Parallel for these tests.
func setupEnv(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()

	for name, value := range map[string]string{
		"VIDRIO_LOG_LEVEL":                    "error",
		"VIDRIO_DATABASE_URL":                 "",
		"VIDRIO_DATABASE_SQLITE_PATH":         filepath.Join(dir, "vidrio.db"),
		"VIDRIO_AUTH_SESSION_SIGNING_KEY_FILE": filepath.Join(dir, "session.key"),
		"VIDRIO_AUTH_ARGON2_MEMORY":           "64",
		"VIDRIO_AUTH_ARGON2_ITERATIONS":       "1",
		"VIDRIO_AUTH_ARGON2_PARALLELISM":      "1",
		"VIDRIO_BLOB_FS_BASEDIR":              filepath.Join(dir, "blob"),
		"VIDRIO_METRICS_RUNTIME":              "false",
	} {
		t.Setenv(name, value)
	}

	return dir
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))

	err := cmd.ExecuteContext(context.Background())

	return out.String(), err
}

func TestRootCmd(t *testing.T) {
	cmd := NewRootCmd()

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}

	assert.Subset(t, names, []string{"serve", "migrate", "user"})
}

func TestParseSteps(t *testing.T) {
	tests := []struct {
		args    []string
		want    int
		wantErr bool
	}{
		{nil, 1, false},
		{[]string{"3"}, 3, false},
		{[]string{"0"}, 0, true},
		{[]string{"-2"}, 0, true},
		{[]string{"x"}, 0, true},
	}

	for _, tt := range tests {
		steps, err := parseSteps(tt.args)
		if tt.wantErr {
			errutil.AssertErrorCode(t, err, "INVALID_STEPS")

			continue
		}

		require.NoError(t, err)
		assert.Equal(t, tt.want, steps)
	}
}

func TestMigrateCmd(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "", "migrate", "version")
	require.NoError(t, err)
	assert.Equal(t, "version 0\n", out)

	out, err = execute(t, "", "migrate", "up")
	require.NoError(t, err)
	assert.Equal(t, "version 3\n", out)

	out, err = execute(t, "", "migrate", "down")
	require.NoError(t, err)
	assert.Equal(t, "version 2\n", out)

	out, err = execute(t, "", "migrate", "down", "--all")
	require.NoError(t, err)
	assert.Equal(t, "version 0\n", out)

	_, err = execute(t, "", "migrate", "down", "nope")
	errutil.AssertErrorCode(t, err, "INVALID_STEPS")
}

func TestUserAddCmd(t *testing.T) {
	setupEnv(t)

	args := []string{"user", "add", "--email", " Ana@Example.com ", "--first-name", "Ana", "--last-name", "Díaz"}

	out, err := execute(t, "secreto123\nsecreto123\n", args...)
	require.NoError(t, err)
	assert.Contains(t, out, "user ana@example.com created")

	_, err = execute(t, "secreto123\nsecreto123\n", args...)
	errutil.AssertErrorCode(t, err, "USER_CONFLICT")

	_, err = execute(t, "corta\ncorta\n", "user", "add", "--email", "b@example.com", "--first-name", "B", "--last-name", "C")
	errutil.AssertErrorCode(t, err, "USER_INVALID")

	_, err = execute(t, "", "user", "add", "--email", "c@example.com")
	require.Error(t, err, "names are required flags")
}

func TestUserAddCmd_Terminal(t *testing.T) {
	setupEnv(t)

	r, w, err := os.Pipe()
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = r.Close()
		_ = w.Close()
	})

	origRead, origIsTerminal := readPassword, isTerminal
	t.Cleanup(func() { readPassword, isTerminal = origRead, origIsTerminal })

	var prompts int

	isTerminal = func(int) bool { return true }
	readPassword = func(int) ([]byte, error) {
		prompts++

		return []byte("secreto123"), nil
	}

	var out bytes.Buffer

	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetIn(r)
	cmd.SetArgs([]string{"--env-file", "", "user", "add", "--email", "t@example.com", "--first-name", "T", "--last-name", "U"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Equal(t, 2, prompts)
	assert.Contains(t, out.String(), "Password: ")
	assert.Contains(t, out.String(), "user t@example.com created")
}

func TestNewApp(t *testing.T) {
	setupEnv(t)

	ctx := context.Background()
	envFile = ""

	cfg, err := loadConfig(ctx)
	require.NoError(t, err)

	a, err := newApp(ctx, cfg)
	require.NoError(t, err)

	t.Cleanup(func() { _ = a.Close() })

	assert.Subset(t, a.router.Routes(), []string{
		"POST /register", "POST /login", "GET /session", "GET /{$}", "GET /dashboard",
		"GET /medidas", "POST /fotos", "GET /fotos/{id}/{file}", "GET /routes", "GET /metrics",
	})

	do := func(method, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
		var body *strings.Reader
		if form != nil {
			body = strings.NewReader(form.Encode())
		} else {
			body = strings.NewReader("")
		}

		req := httptest.NewRequest(method, path, body)
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		for _, c := range cookies {
			req.AddCookie(c)
		}

		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, req)

		return rec
	}

	rec := do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, http_.LoginPath, rec.Header().Get("Location"))
	assert.NotEmpty(t, rec.Header().Get(http_.TraceIDHeader))

	rec = do(http.MethodPost, "/register", url.Values{
		"email": {"ana@example.com"}, "password": {"secreto123"}, "confirm": {"secreto123"},
		"first_name": {"Ana"}, "last_name": {"Díaz"}, "accept": {"on"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(http.MethodPost, "/login", url.Values{"email": {"ana@example.com"}, "password": {"secreto123"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	rec = do(http.MethodGet, "/", nil, cookies...)
	assert.Equal(t, http_.DashboardPath, rec.Header().Get("Location"))

	rec = do(http.MethodGet, "/dashboard", nil, cookies...)
	require.Equal(t, http.StatusOK, rec.Code)

	var dashboard struct {
		Data struct {
			User string `json:"user"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dashboard))
	assert.Equal(t, "ana@example.com", dashboard.Data.User)

	rec = do(http.MethodPost, "/medidas", url.Values{"nombre": {"Metro"}, "unidad": {"m"}}, cookies...)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = do(http.MethodGet, "/medidas", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `vidrio_http_requests_total{method="POST",route="POST /medidas",status="201"} 1`)
	assert.Contains(t, rec.Body.String(), `vidrio_auth_authentications_total{outcome="authenticated"} 1`)
}
