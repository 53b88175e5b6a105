package database

import (
	"context"
	"embed"
	"errors"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	// Register the pgx/v5 and sqlite database drivers for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"

	"github.com/mkrupp/vidrio/internal/infra/logging"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// migrateIface abstracts golang-migrate so Migrator can be tested without a database.
type migrateIface interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Close() (source error, database error)
}

// Migrator applies the embedded migrations of one dialect.
type Migrator struct {
	m migrateIface
}

// Migrations returns the embedded migration files of dialect.
func Migrations(dialect Dialect) (fs.FS, error) {
	sub, err := fs.Sub(migrationsFS, "migrations/"+string(dialect))
	if err != nil {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").With("dialect", dialect).Wrap(err)
	}

	return sub, nil
}

// NewMigrator creates a Migrator with its own connection to the database described by cfg.
func NewMigrator(cfg Config) (*Migrator, error) {
	migrations, err := Migrations(cfg.Dialect())
	if err != nil {
		return nil, err
	}

	source, err := iofs.New(migrations, ".")
	if err != nil {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").With("operation", "create migration source").Wrap(err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(cfg))
	if err != nil {
		_ = source.Close()

		return nil, oops.Code("MIGRATION_INIT_FAILED").With("dialect", cfg.Dialect()).Wrap(err)
	}

	return &Migrator{m: m}, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_UP_FAILED").Wrap(err)
	}

	return nil
}

// Down rolls back every migration. All tables and data are dropped.
func (m *Migrator) Down() error {
	if err := m.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_DOWN_FAILED").Wrap(err)
	}

	return nil
}

// Steps applies n migrations. Positive n migrates up, negative n migrates down.
func (m *Migrator) Steps(n int) error {
	if err := m.m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_STEPS_FAILED").With("steps", n).Wrap(err)
	}

	return nil
}

// Version returns the current migration version and dirty state.
// Returns version 0 when no migration has been applied.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, oops.Code("MIGRATION_VERSION_FAILED").Wrap(err)
	}

	return version, dirty, nil
}

// Close releases the migration source and connection.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		return oops.Code("MIGRATION_CLOSE_FAILED").Wrap(err)
	}

	return nil
}

// Migrate applies all pending migrations for cfg.
func Migrate(ctx context.Context, cfg Config) (err error) {
	log := logging.GetLogger("infra.database.migrate").With(logging.Group("db", "dialect", cfg.Dialect()))

	m, err := NewMigrator(cfg)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, m.Close())
	}()

	if err := m.Up(); err != nil {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}

	log.InfoContext(ctx, "schema migrated", "version", version, "dirty", dirty)

	return nil
}
