package http

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Outcomes used by endpoints that are not registration or login.
const (
	OutcomeOK              = "ok"
	OutcomeNotFound        = "not_found"
	OutcomeInvalid         = "validation_error"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeRateLimited     = "rate_limited"
	OutcomeError           = "error"
)

const (
	// LoginPath is where anonymous clients are sent.
	LoginPath = "/login"
	// DashboardPath is where authenticated clients land.
	DashboardPath = "/dashboard"
)

// Response is the JSON document every endpoint answers with.
type Response struct {
	Outcome  string `json:"outcome"`
	Kind     string `json:"kind,omitempty"`
	Message  string `json:"message,omitempty"`
	Redirect string `json:"redirect,omitempty"`
	Data     any    `json:"data,omitempty"`
}

// WriteJSON writes body as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	return nil
}

// WriteFault answers with the generic 500 document. Error details are never echoed.
func WriteFault(w http.ResponseWriter) error {
	//nolint:exhaustruct
	return WriteJSON(w, http.StatusInternalServerError, Response{
		Outcome: OutcomeError,
		Message: "Ocurrió un error. Intenta de nuevo más tarde.",
	})
}

// WriteUnauthenticated answers with 401 and a redirect to the login page.
func WriteUnauthenticated(w http.ResponseWriter) error {
	//nolint:exhaustruct
	return WriteJSON(w, http.StatusUnauthorized, Response{
		Outcome:  OutcomeUnauthenticated,
		Message:  "Acceso no autorizado. Inicia sesión.",
		Redirect: LoginPath,
	})
}

// WriteNotFound answers with 404.
func WriteNotFound(w http.ResponseWriter, message string) error {
	//nolint:exhaustruct
	return WriteJSON(w, http.StatusNotFound, Response{Outcome: OutcomeNotFound, Message: message})
}

// WriteInvalid answers with 422.
func WriteInvalid(w http.ResponseWriter, kind, message string) error {
	//nolint:exhaustruct
	return WriteJSON(w, http.StatusUnprocessableEntity, Response{Outcome: OutcomeInvalid, Kind: kind, Message: message})
}

// WriteOK answers with status and data.
func WriteOK(w http.ResponseWriter, status int, data any) error {
	//nolint:exhaustruct
	return WriteJSON(w, status, Response{Outcome: OutcomeOK, Data: data})
}
