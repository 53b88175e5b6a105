// Package session issues and reads the signed, client-held session token.
//
// The token is a PS256 JWT whose only application claim is the user email. It lives in
// an HttpOnly cookie and is not renewed per request. There is no server side record, so
// a copied token stays valid until it expires even after logout.
package session

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"

	"github.com/mkrupp/vidrio/internal/domain"
	"github.com/mkrupp/vidrio/internal/infra/logging"
)

// Config contains configuration parameters for sessions.
type Config struct {
	// SigningKeyFile is the path to the RSA private key file
	SigningKeyFile string `env:"SIGNING_KEY_FILE" default:"var/storage/session.key"`
	// TTL is how long an established session stays valid
	TTL time.Duration `env:"TTL" default:"12h"`
	// CookieName names the session cookie
	CookieName string `env:"COOKIE_NAME" default:"vidrio_session"`
	// SecureCookie restricts the cookie to HTTPS
	SecureCookie bool `env:"SECURE_COOKIE" default:"false"`
	// Issuer is written to and required in the iss claim
	Issuer string `env:"ISSUER" default:"vidrio"`
}

// Claims is the JWT payload of a session token.
type Claims struct {
	jwt.RegisteredClaims

	UserEmail string `json:"user_email"`
}

// Manager establishes, reads and clears sessions.
type Manager struct {
	cfg Config
	key *rsa.PrivateKey
	log logging.Logger
	now func() time.Time
}

// NewManager creates a Manager, loading or generating the signing key.
func NewManager(cfg Config) (*Manager, error) {
	key, err := GetPrivateKey(cfg.SigningKeyFile)
	if err != nil {
		return nil, fmt.Errorf("get private key: %w", err)
	}

	return NewManagerWithKey(cfg, key), nil
}

// NewManagerWithKey creates a Manager signing with key.
func NewManagerWithKey(cfg Config, key *rsa.PrivateKey) *Manager {
	return &Manager{
		cfg: cfg,
		key: key,
		log: logging.GetLogger("svc.authsvc.session"),
		now: time.Now,
	}
}

// Issue signs a token for claim. It returns the token and the claim with its
// issue and expiry times set.
func (m *Manager) Issue(claim domain.SessionClaim) (string, domain.SessionClaim, error) {
	if claim.Anonymous() {
		return "", domain.SessionClaim{}, oops.Code("SESSION_ANONYMOUS").Wrap(domain.ErrNoSession)
	}

	now := m.now().Truncate(time.Second)
	claim.IssuedAt = now
	claim.ExpiresAt = now.Add(m.cfg.TTL)

	token := jwt.NewWithClaims(jwt.SigningMethodPS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ //nolint:exhaustruct
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(claim.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claim.ExpiresAt),
		},
		UserEmail: claim.Email,
	})

	signed, err := token.SignedString(m.key)
	if err != nil {
		return "", domain.SessionClaim{}, oops.Code("SESSION_SIGN_FAILED").Wrap(err)
	}

	return signed, claim, nil
}

// Parse verifies token and returns its claim.
// Every failure matches domain.ErrInvalidSession.
func (m *Manager) Parse(token string) (domain.SessionClaim, error) {
	claims := &Claims{} //nolint:exhaustruct

	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return &m.key.PublicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodPS256.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return domain.SessionClaim{}, oops.Code("SESSION_INVALID").Wrap(errors.Join(domain.ErrInvalidSession, err))
	}

	if !parsed.Valid || claims.UserEmail == "" {
		return domain.SessionClaim{}, oops.Code("SESSION_INVALID").Wrap(domain.ErrInvalidSession)
	}

	claim := domain.SessionClaim{Email: claims.UserEmail} //nolint:exhaustruct
	if claims.IssuedAt != nil {
		claim.IssuedAt = claims.IssuedAt.UTC()
	}

	claim.ExpiresAt = claims.ExpiresAt.UTC()

	return claim, nil
}

// Establish issues a token for claim and stores it in the session cookie.
func (m *Manager) Establish(w http.ResponseWriter, claim domain.SessionClaim) (domain.SessionClaim, error) {
	token, issued, err := m.Issue(claim)
	if err != nil {
		return domain.SessionClaim{}, err
	}

	http.SetCookie(w, m.cookie(token, issued.ExpiresAt))

	return issued, nil
}

// Current returns the claim carried by r. The boolean is false for an absent,
// expired or forged token.
func (m *Manager) Current(r *http.Request) (domain.SessionClaim, bool) {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return domain.SessionClaim{}, false
	}

	claim, err := m.Parse(cookie.Value)
	if err != nil {
		m.log.DebugContext(r.Context(), "session rejected", "error", err)

		return domain.SessionClaim{}, false
	}

	return claim, true
}

// Clear expires the session cookie. Clearing an absent session is not an error.
func (m *Manager) Clear(w http.ResponseWriter) {
	cookie := m.cookie("", time.Unix(0, 0))
	cookie.MaxAge = -1

	http.SetCookie(w, cookie)
}

func (m *Manager) cookie(value string, expires time.Time) *http.Cookie {
	//nolint:exhaustruct
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires.UTC(),
		HttpOnly: true,
		Secure:   m.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}
