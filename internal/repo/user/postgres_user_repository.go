package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/mkrupp/vidrio/internal/domain"
	"github.com/mkrupp/vidrio/internal/infra/logging"
)

// PgxPool is the subset of *pgxpool.Pool used by PostgresUserRepository.
// Each call acquires a pooled connection for its own duration only.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresUserRepository implements Repository using PostgreSQL through pgx.
type PostgresUserRepository struct {
	pool PgxPool
	log  logging.Logger
	now  func() time.Time

	// uniquePhone is the phone policy; when off no phone counts as taken
	uniquePhone bool
}

var _ Repository = (*PostgresUserRepository)(nil)

// NewPostgresUserRepository creates a PostgresUserRepository on a migrated database.
// It applies the phone uniqueness policy to the schema.
func NewPostgresUserRepository(ctx context.Context, pool PgxPool, cfg Config) (*PostgresUserRepository, error) {
	log := logging.GetLogger("repo.user.postgres_user_repository").With(
		logging.Group("policy", "unique_phone", cfg.UniquePhone),
	)

	if pool == nil {
		return nil, oops.Code("USER_REPO_INIT_FAILED").Errorf("postgres repository requires a pool")
	}

	if _, err := pool.Exec(ctx, phoneIndexDDL(cfg)); err != nil {
		return nil, oops.Code("USER_REPO_INIT_FAILED").With("unique_phone", cfg.UniquePhone).Wrapf(err, "apply phone policy")
	}

	return &PostgresUserRepository{
		pool:        pool,
		log:         log,
		now:         time.Now,
		uniquePhone: cfg.UniquePhone,
	}, nil
}

// CreateUser implements Repository.CreateUser using PostgreSQL.
func (r *PostgresUserRepository) CreateUser(ctx context.Context, user domain.NewUser) (domain.UserID, error) {
	user.Email = NormalizeEmail(user.Email)

	if err := user.Check(); err != nil {
		return "", oops.Code("USER_INVALID").Wrap(err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", oops.Code("USER_CREATE_FAILED").Wrapf(err, "new user id")
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, first_name, last_name, address, phone, company, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id.String(),
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		nullable(user.Address),
		nullable(user.Phone),
		nullable(user.Company),
		r.now().UTC(),
	)
	if err != nil {
		return "", classifyPostgresError(err)
	}

	return domain.UserID(id.String()), nil
}

func classifyPostgresError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return oops.Code("USER_CREATE_FAILED").Wrapf(err, "insert user")
	}

	conflict := domain.ErrUserAlreadyExists

	switch pgErr.ConstraintName {
	case emailConstraint:
		conflict = domain.ErrDuplicateEmail
	case phoneIndex:
		conflict = domain.ErrDuplicatePhone
	}

	return oops.Code("USER_EXISTS").With("constraint", pgErr.ConstraintName).Wrap(errors.Join(conflict, err))
}

// GetUserByEmail implements Repository.GetUserByEmail using PostgreSQL.
func (r *PostgresUserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var (
		user                    domain.User
		id                      string
		address, phone, company *string
	)

	err := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, first_name, last_name, address, phone, company, created_at
		 FROM users WHERE email = $1`,
		NormalizeEmail(email),
	).Scan(&id, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName,
		&address, &phone, &company, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, oops.Code("USER_NOT_FOUND").Wrap(errors.Join(domain.ErrUserNotFound, err))
		}

		return nil, oops.Code("USER_QUERY_FAILED").Wrapf(err, "query user")
	}

	user.ID = domain.UserID(id)
	user.Address = deref(address)
	user.Phone = deref(phone)
	user.Company = deref(company)
	user.CreatedAt = user.CreatedAt.UTC()

	return &user, nil
}

// ExistsByPhone implements Repository.ExistsByPhone using PostgreSQL.
func (r *PostgresUserRepository) ExistsByPhone(ctx context.Context, phone string) (bool, error) {
	phoneValue := nullable(phone)
	if phoneValue == nil || !r.uniquePhone {
		return false, nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE phone = $1)", *phoneValue).Scan(&exists); err != nil {
		return false, oops.Code("USER_QUERY_FAILED").Wrapf(err, "query phone")
	}

	return exists, nil
}

// Close implements Repository.Close.
func (r *PostgresUserRepository) Close() error {
	r.log.Debug("user repository closed")

	return nil
}
