package authsvc

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mkrupp/vidrio/internal/domain"
	context_ "github.com/mkrupp/vidrio/internal/infra/context"
	"github.com/mkrupp/vidrio/internal/infra/logging"
	http_ "github.com/mkrupp/vidrio/internal/infra/transport/http"
	"github.com/mkrupp/vidrio/internal/util/errutil"
)

//nolint:gochecknoglobals
var validationMessages = map[domain.ValidationKind]string{
	domain.ValidationMissingFields:    "Completa los campos obligatorios (*).",
	domain.ValidationInvalidEmail:     "Correo inválido.",
	domain.ValidationPasswordMismatch: "Las contraseñas no coinciden.",
	domain.ValidationConsentRequired:  "Debes aceptar las políticas para continuar.",
}

//nolint:gochecknoglobals
var conflictMessages = map[domain.ConflictKind]string{
	domain.ConflictDuplicateEmail: "Ese correo ya está registrado.",
	domain.ConflictDuplicatePhone: "Ese teléfono ya está registrado.",
}

// SessionManager establishes and clears sessions on HTTP responses.
type SessionManager interface {
	http_.SessionReader
	Establish(w http.ResponseWriter, claim domain.SessionClaim) (domain.SessionClaim, error)
	Clear(w http.ResponseWriter)
}

// OutcomeObserver records workflow outcomes.
type OutcomeObserver interface {
	ObserveRegistration(outcome domain.RegistrationOutcome)
	ObserveAuthentication(outcome domain.AuthenticationOutcome)
}

type nopObserver struct{}

func (nopObserver) ObserveRegistration(domain.RegistrationOutcome)     {}
func (nopObserver) ObserveAuthentication(domain.AuthenticationOutcome) {}

// SessionView is the JSON rendering of a session claim.
type SessionView struct {
	Email     string    `json:"email"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HTTPTransport handles HTTP requests for the authentication service.
// It provides endpoints for registration, login, logout and session inspection.
type HTTPTransport struct {
	authSvc  *AuthService
	sessions SessionManager
	limiter  *http_.RateLimiter
	observer OutcomeObserver
	log      logging.Logger
}

// NewHTTPTransport creates a new HTTPTransport instance.
// The limiter and observer are optional.
func NewHTTPTransport(
	authSvc *AuthService,
	sessions SessionManager,
	limiter *http_.RateLimiter,
	observer OutcomeObserver,
) *HTTPTransport {
	if observer == nil {
		observer = nopObserver{}
	}

	return &HTTPTransport{
		authSvc:  authSvc,
		sessions: sessions,
		limiter:  limiter,
		observer: observer,
		log:      logging.GetLogger("svc.authsvc.http_transport"),
	}
}

var (
	_ http_.HTTPTransport   = (*HTTPTransport)(nil)
	_ http_.RouteRegistrar = (*HTTPTransport)(nil)
)

// RegisterRoutes mounts the auth endpoints:
// - POST /register: create an account
// - POST /login: check credentials and establish a session
// - GET|POST /logout: clear the session
// - GET /session: inspect the current session.
func (ht *HTTPTransport) RegisterRoutes(mux http_.Mux) {
	mux.Handle("POST /register", ht.limited(http.HandlerFunc(ht.HandleRegister)))
	mux.Handle("POST /login", ht.limited(http.HandlerFunc(ht.HandleLogin)))
	mux.HandleFunc("GET /logout", ht.HandleLogout)
	mux.HandleFunc("POST /logout", ht.HandleLogout)
	mux.Handle("GET /session", http_.RequireSession(http.HandlerFunc(ht.HandleSession), ht.log))
}

// ServeHTTP implements http.Handler.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	ht.RegisterRoutes(mux)
	http_.SessionMiddleware(mux, ht.sessions).ServeHTTP(w, r)
}

func (ht *HTTPTransport) limited(next http.Handler) http.Handler {
	if ht.limiter == nil {
		return next
	}

	return ht.limiter.Middleware(next)
}

// HandleRegister processes registration requests.
// Expects form parameters: email, password, confirm, first_name, last_name, address, phone, company, accept.
func (ht *HTTPTransport) HandleRegister(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleRegister(w, r)
}

func (ht *HTTPTransport) handleRegister(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	defer func(ctx context.Context) {
		if err != nil {
			log.ErrorContext(ctx, "user register failed", errutil.Attrs(err)...)
		}
	}(r.Context())

	if err := r.ParseForm(); err != nil {
		_ = http_.WriteInvalid(w, string(domain.ValidationMissingFields), validationMessages[domain.ValidationMissingFields])

		return fmt.Errorf("parse form: %w", err)
	}

	outcome, err := ht.authSvc.Register(r.Context(), RegistrationForm{
		Email:     r.PostFormValue("email"),
		Password:  r.PostFormValue("password"),
		Confirm:   r.PostFormValue("confirm"),
		FirstName: r.PostFormValue("first_name"),
		LastName:  r.PostFormValue("last_name"),
		Address:   r.PostFormValue("address"),
		Phone:     r.PostFormValue("phone"),
		Company:   r.PostFormValue("company"),
		Accept:    r.PostFormValue("accept") != "",
	})
	if err != nil {
		_ = http_.WriteFault(w)

		return fmt.Errorf("register user: %w", err)
	}

	ht.observer.ObserveRegistration(outcome)

	switch outcome.Kind {
	case domain.OutcomeCreated:
		//nolint:exhaustruct
		return http_.WriteJSON(w, http.StatusCreated, http_.Response{
			Outcome:  string(outcome.Kind),
			Message:  "Cuenta creada. Inicia sesión.",
			Redirect: http_.LoginPath,
			Data:     map[string]string{"id": outcome.UserID.String()},
		})
	case domain.OutcomeConflict:
		//nolint:exhaustruct
		return http_.WriteJSON(w, http.StatusConflict, http_.Response{
			Outcome:  string(outcome.Kind),
			Kind:     string(outcome.Conflict),
			Message:  conflictMessages[outcome.Conflict],
			Redirect: "/register",
		})
	default:
		//nolint:exhaustruct
		return http_.WriteJSON(w, http.StatusUnprocessableEntity, http_.Response{
			Outcome:  string(outcome.Kind),
			Kind:     string(outcome.Validation),
			Message:  ht.validationMessage(outcome.Validation),
			Redirect: "/register",
		})
	}
}

func (ht *HTTPTransport) validationMessage(kind domain.ValidationKind) string {
	if kind == domain.ValidationPasswordTooShort {
		return fmt.Sprintf("La contraseña debe tener al menos %d caracteres.", ht.authSvc.Config.MinPasswordLength)
	}

	return validationMessages[kind]
}

// HandleLogin processes login requests.
// Expects form parameters: email, password.
// Sets the session cookie on success.
func (ht *HTTPTransport) HandleLogin(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleLogin(w, r)
}

func (ht *HTTPTransport) handleLogin(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	defer func(ctx context.Context) {
		if err != nil {
			log.ErrorContext(ctx, "user login failed", errutil.Attrs(err)...)
		}
	}(r.Context())

	if err := r.ParseForm(); err != nil {
		_ = ht.writeInvalidCredentials(w)

		return fmt.Errorf("parse form: %w", err)
	}

	outcome, err := ht.authSvc.Authenticate(r.Context(), LoginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	})
	if err != nil {
		_ = http_.WriteFault(w)

		return fmt.Errorf("authenticate: %w", err)
	}

	ht.observer.ObserveAuthentication(outcome)

	if outcome.Kind != domain.OutcomeAuthenticated {
		return ht.writeInvalidCredentials(w)
	}

	claim, err := ht.sessions.Establish(w, outcome.Claim)
	if err != nil {
		_ = http_.WriteFault(w)

		return fmt.Errorf("establish session: %w", err)
	}

	log.InfoContext(r.Context(), "user logged in", logging.Group("user", "email", claim.Email))

	//nolint:exhaustruct
	return http_.WriteJSON(w, http.StatusOK, http_.Response{
		Outcome:  string(outcome.Kind),
		Message:  "Has iniciado sesión.",
		Redirect: http_.DashboardPath,
		Data:     sessionView(claim),
	})
}

func (ht *HTTPTransport) writeInvalidCredentials(w http.ResponseWriter) error {
	//nolint:exhaustruct
	return http_.WriteJSON(w, http.StatusUnauthorized, http_.Response{
		Outcome:  string(domain.OutcomeInvalidCredentials),
		Message:  "Correo o contraseña incorrectos.",
		Redirect: http_.LoginPath,
	})
}

// HandleLogout clears the session cookie. Logging out without a session is not an error.
func (ht *HTTPTransport) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if claim, ok := context_.SessionFromContext(r.Context()); ok {
		ht.log.InfoContext(r.Context(), "user logged out", logging.Group("user", "email", claim.Email))
	}

	ht.sessions.Clear(w)

	//nolint:exhaustruct
	_ = http_.WriteJSON(w, http.StatusOK, http_.Response{
		Outcome:  http_.OutcomeOK,
		Message:  "Sesión cerrada.",
		Redirect: http_.LoginPath,
	})
}

// HandleSession returns the claim of the current session.
func (ht *HTTPTransport) HandleSession(w http.ResponseWriter, r *http.Request) {
	claim, _ := context_.SessionFromContext(r.Context())

	_ = http_.WriteOK(w, http.StatusOK, sessionView(claim))
}

func sessionView(claim domain.SessionClaim) SessionView {
	return SessionView{Email: claim.Email, IssuedAt: claim.IssuedAt, ExpiresAt: claim.ExpiresAt}
}
