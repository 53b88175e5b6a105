// Package user persists registered accounts and enforces their uniqueness rules.
package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/mkrupp/vidrio/internal/domain"
	"github.com/mkrupp/vidrio/internal/infra/database"
)

// Index names shared by both dialects.
const (
	emailConstraint = "users_email_key"
	phoneIndex      = "users_phone_key"
)

// Repository defines the interface for user data persistence.
// Uniqueness is enforced by the storage engine, so concurrent writers cannot both win.
type Repository interface {
	// CreateUser adds a new user and returns its ID.
	// Returns domain.ErrDuplicateEmail or domain.ErrDuplicatePhone when a unique
	// constraint rejects the insert; both match domain.ErrUserAlreadyExists.
	CreateUser(ctx context.Context, user domain.NewUser) (domain.UserID, error)

	// GetUserByEmail retrieves a user by email, ignoring case and surrounding space.
	// Returns domain.ErrUserNotFound when there is no such user.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// ExistsByPhone reports whether a user has the given phone. An empty phone never exists,
	// and with the phone policy off no phone does.
	ExistsByPhone(ctx context.Context, phone string) (bool, error)

	// Close releases any resources held by the repository.
	// The database handle belongs to the caller and stays open.
	Close() error
}

// RepositoryFactory is a function that creates a new Repository instance.
// Returns an error if initialization fails.
type RepositoryFactory func() (Repository, error)

// Config holds the account uniqueness policy.
type Config struct {
	// UniquePhone rejects a second user with the same non-empty phone
	UniquePhone bool `env:"UNIQUE_PHONE" default:"true"`
}

// NewRepository returns the repository matching the dialect of db.
func NewRepository(ctx context.Context, db *database.DB, cfg Config) (Repository, error) {
	switch db.Dialect {
	case database.DialectPostgres:
		return NewPostgresUserRepository(ctx, db.Pool, cfg)
	case database.DialectSQLite:
		return NewSQLiteUserRepository(ctx, db, cfg)
	default:
		return nil, fmt.Errorf("new user repository: unsupported dialect %q", db.Dialect)
	}
}

// Factory creates a factory function that returns the repository matching the dialect of db.
func Factory(ctx context.Context, db *database.DB, cfg Config) RepositoryFactory {
	return func() (Repository, error) {
		return NewRepository(ctx, db, cfg)
	}
}

// NormalizeEmail lowercases and trims an email the way it is stored.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// phoneIndexDDL returns the statement that applies the phone policy.
// Both SQLite and PostgreSQL accept partial unique indexes.
func phoneIndexDDL(cfg Config) string {
	if cfg.UniquePhone {
		return "CREATE UNIQUE INDEX IF NOT EXISTS " + phoneIndex + " ON users (phone) WHERE phone IS NOT NULL"
	}

	return "DROP INDEX IF EXISTS " + phoneIndex
}

// nullable maps the empty string to NULL.
func nullable(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}

	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
