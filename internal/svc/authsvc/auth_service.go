// Package authsvc implements account registration and login.
package authsvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/mkrupp/vidrio/internal/domain"
	"github.com/mkrupp/vidrio/internal/infra/logging"
	"github.com/mkrupp/vidrio/internal/repo/user"
	"github.com/mkrupp/vidrio/internal/svc/authsvc/password"
	"github.com/mkrupp/vidrio/internal/svc/authsvc/session"
	"github.com/mkrupp/vidrio/internal/util/errutil"
)

// AuthConfig contains configuration parameters for the authentication service.
type AuthConfig struct {
	// RequireConsent rejects registrations that do not accept the terms
	RequireConsent bool `env:"REQUIRE_CONSENT" default:"true"`
	// MinPasswordLength is the shortest accepted password in bytes
	MinPasswordLength int `env:"MIN_PASSWORD_LENGTH" default:"8"`

	Password password.Config `envPrefix:"ARGON2_"`
	Session  session.Config  `envPrefix:"SESSION_"`
}

// AuthService runs the registration and authentication workflows.
// Outcomes are returned as values; the error return is reserved for storage and hashing faults.
type AuthService struct {
	Config   AuthConfig
	UserRepo user.Repository
	Hasher   password.Hasher
	Log      logging.Logger

	// dummyHash is verified against when the user does not exist.
	dummyHash string
}

// NewAuthService creates a new AuthService with the given user repository factory and configuration.
// Returns an error if the user repository cannot be created.
func NewAuthService(repoFactory user.RepositoryFactory, hasher password.Hasher, cfg AuthConfig) (*AuthService, error) {
	userRepo, err := repoFactory()
	if err != nil {
		return nil, fmt.Errorf("new user repo: %w", err)
	}

	dummyHash, err := hasher.Hash("not-a-real-password")
	if err != nil {
		return nil, fmt.Errorf("hash dummy password: %w", err)
	}

	return &AuthService{
		Config:    cfg,
		UserRepo:  userRepo,
		Hasher:    hasher,
		Log:       logging.GetLogger("svc.authsvc.auth_service"),
		dummyHash: dummyHash,
	}, nil
}

// Register validates form, checks uniqueness and creates the user.
// Validation failures and conflicts are reported in the outcome, never as errors.
func (s *AuthService) Register(
	ctx context.Context,
	form RegistrationForm,
) (outcome domain.RegistrationOutcome, err error) {
	form = form.Normalize()
	log := s.Log.With(logging.Group("user", "email", form.Email))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "register user failed", errutil.Attrs(err)...)
		} else {
			log.DebugContext(ctx, "register user", logging.Group("outcome",
				"kind", outcome.Kind,
				"validation", outcome.Validation,
				"conflict", outcome.Conflict,
			))
		}
	}()

	if kind, ok := form.Validate(s.Config); !ok {
		return domain.Invalid(kind), nil
	}

	if _, err := s.UserRepo.GetUserByEmail(ctx, form.Email); err == nil {
		return domain.Conflicting(domain.ConflictDuplicateEmail), nil
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return domain.RegistrationOutcome{}, fmt.Errorf("get user: %w", err)
	}

	if form.Phone != "" {
		exists, err := s.UserRepo.ExistsByPhone(ctx, form.Phone)
		if err != nil {
			return domain.RegistrationOutcome{}, fmt.Errorf("check phone: %w", err)
		} else if exists {
			return domain.Conflicting(domain.ConflictDuplicatePhone), nil
		}
	}

	passwordHash, err := s.Hasher.Hash(form.Password)
	if err != nil {
		return domain.RegistrationOutcome{}, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.UserRepo.CreateUser(ctx, domain.NewUser{
		Email:        form.Email,
		PasswordHash: passwordHash,
		FirstName:    form.FirstName,
		LastName:     form.LastName,
		Address:      form.Address,
		Phone:        form.Phone,
		Company:      form.Company,
	})

	// A concurrent registration can pass the pre-check; the storage constraint decides.
	switch {
	case errors.Is(err, domain.ErrDuplicateEmail):
		return domain.Conflicting(domain.ConflictDuplicateEmail), nil
	case errors.Is(err, domain.ErrDuplicatePhone):
		return domain.Conflicting(domain.ConflictDuplicatePhone), nil
	case err != nil:
		return domain.RegistrationOutcome{}, fmt.Errorf("create user: %w", err)
	}

	log = log.With(logging.Group("user", "id", id))

	return domain.Created(id), nil
}

// Authenticate checks the submitted credentials.
// An unknown email and a wrong password yield the same outcome.
// On success the outcome carries the claim the caller must hand to the session manager.
func (s *AuthService) Authenticate(
	ctx context.Context,
	form LoginForm,
) (outcome domain.AuthenticationOutcome, err error) {
	form = form.Normalize()
	log := s.Log.With(logging.Group("user", "email", form.Email))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "authenticate failed", errutil.Attrs(err)...)
		} else {
			log.DebugContext(ctx, "authenticate", logging.Group("outcome", "kind", outcome.Kind))
		}
	}()

	if form.Email == "" || form.Password == "" {
		s.Hasher.Verify(form.Password, s.dummyHash)

		return domain.InvalidCredentials(), nil
	}

	found, err := s.UserRepo.GetUserByEmail(ctx, form.Email)
	if errors.Is(err, domain.ErrUserNotFound) {
		s.Hasher.Verify(form.Password, s.dummyHash)

		return domain.InvalidCredentials(), nil
	} else if err != nil {
		return domain.AuthenticationOutcome{}, fmt.Errorf("get user: %w", err)
	}

	if !s.Hasher.Verify(form.Password, found.PasswordHash) {
		return domain.InvalidCredentials(), nil
	}

	return domain.Authenticated(found.Email), nil
}

// Close releases resources held by the service, such as database connections.
// Returns an error if cleanup fails.
func (s *AuthService) Close() error {
	if err := s.UserRepo.Close(); err != nil {
		return fmt.Errorf("close user repo: %w", err)
	}

	return nil
}
