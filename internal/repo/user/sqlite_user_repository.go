package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mkrupp/vidrio/internal/domain"
	"github.com/mkrupp/vidrio/internal/infra/database"
	"github.com/mkrupp/vidrio/internal/infra/logging"
)

// SQLiteUserRepository implements Repository using SQLite as the storage backend.
type SQLiteUserRepository struct {
	db  *database.DB
	log logging.Logger
	now func() time.Time

	// uniquePhone is the phone policy; when off no phone counts as taken
	uniquePhone bool
}

var _ Repository = (*SQLiteUserRepository)(nil)

type sqliteUserRow struct {
	ID           string         `db:"id"`
	Email        string         `db:"email"`
	PasswordHash string         `db:"password_hash"`
	FirstName    string         `db:"first_name"`
	LastName     string         `db:"last_name"`
	Address      sql.NullString `db:"address"`
	Phone        sql.NullString `db:"phone"`
	Company      sql.NullString `db:"company"`
	CreatedAt    int64          `db:"created_at"`
}

func (row sqliteUserRow) user() *domain.User {
	return &domain.User{
		ID:           domain.UserID(row.ID),
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		FirstName:    row.FirstName,
		LastName:     row.LastName,
		Address:      row.Address.String,
		Phone:        row.Phone.String,
		Company:      row.Company.String,
		CreatedAt:    time.Unix(row.CreatedAt, 0).UTC(),
	}
}

// NewSQLiteUserRepository creates a new SQLiteUserRepository on an open, migrated database.
// It applies the phone uniqueness policy to the schema.
func NewSQLiteUserRepository(ctx context.Context, db *database.DB, cfg Config) (*SQLiteUserRepository, error) {
	log := logging.GetLogger("repo.user.sqlite_user_repository").With(
		logging.Group("policy", "unique_phone", cfg.UniquePhone),
	)

	release := db.LockWrites()
	defer release()

	if _, err := db.ExecContext(ctx, phoneIndexDDL(cfg)); err != nil {
		return nil, fmt.Errorf("apply phone policy: %w", err)
	}

	return &SQLiteUserRepository{
		db:          db,
		log:         log,
		now:         time.Now,
		uniquePhone: cfg.UniquePhone,
	}, nil
}

// CreateUser implements Repository.CreateUser using SQLite.
func (r *SQLiteUserRepository) CreateUser(ctx context.Context, user domain.NewUser) (_ domain.UserID, err error) {
	user.Email = NormalizeEmail(user.Email)

	if err := user.Check(); err != nil {
		return "", fmt.Errorf("check user: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("new user id: %w", err)
	}

	release := r.db.LockWrites()
	defer release()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, first_name, last_name, address, phone, company, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(),
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		nullable(user.Address),
		nullable(user.Phone),
		nullable(user.Company),
		r.now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("insert user: %w", classifySQLiteError(err))
	}

	return domain.UserID(id.String()), nil
}

func classifySQLiteError(err error) error {
	var liteErr *sqlite.Error
	if !errors.As(err, &liteErr) {
		return err
	}

	switch liteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		// The message names the violated columns, e.g. "UNIQUE constraint failed: users.email".
		switch msg := liteErr.Error(); {
		case strings.Contains(msg, "users.email"):
			return errors.Join(domain.ErrDuplicateEmail, err)
		case strings.Contains(msg, "users.phone"):
			return errors.Join(domain.ErrDuplicatePhone, err)
		default:
			return errors.Join(domain.ErrUserAlreadyExists, err)
		}
	default:
		return err
	}
}

// GetUserByEmail implements Repository.GetUserByEmail using SQLite.
func (r *SQLiteUserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var row sqliteUserRow

	err := r.db.GetContext(ctx, &row,
		`SELECT id, email, password_hash, first_name, last_name, address, phone, company, created_at
		 FROM users WHERE email = ?`,
		NormalizeEmail(email),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = errors.Join(domain.ErrUserNotFound, err)
		}

		return nil, fmt.Errorf("query user: %w", err)
	}

	return row.user(), nil
}

// ExistsByPhone implements Repository.ExistsByPhone using SQLite.
func (r *SQLiteUserRepository) ExistsByPhone(ctx context.Context, phone string) (bool, error) {
	phoneValue := nullable(phone)
	if phoneValue == nil || !r.uniquePhone {
		return false, nil
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM users WHERE phone = ?)", *phoneValue); err != nil {
		return false, fmt.Errorf("query phone: %w", err)
	}

	return exists, nil
}

// Close implements Repository.Close.
func (r *SQLiteUserRepository) Close() error {
	r.log.Debug("user repository closed")

	return nil
}
