// Package database opens the relational store selected by configuration and
// keeps its schema current.
package database

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/samber/oops"

	// Register the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	"github.com/mkrupp/vidrio/internal/infra/logging"
)

// Dialect names a supported storage engine.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Config selects and tunes the storage engine.
// A non-empty URL selects PostgreSQL; otherwise the SQLite file at SQLitePath is used.
type Config struct {
	// URL is a postgres:// or postgresql:// connection string
	URL string `env:"URL" default:""`
	// SQLitePath is the SQLite database file used when URL is empty
	SQLitePath string `env:"SQLITE_PATH" default:"var/storage/vidrio.db"`
	// AutoMigrate applies pending migrations when the database is opened
	AutoMigrate bool `env:"AUTO_MIGRATE" default:"true"`
	// MaxConns bounds the connection pool
	MaxConns int `env:"MAX_CONNS" default:"10"`
	// ConnMaxLifetime recycles pooled connections
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" default:"5m"`
	// BusyTimeout is how long SQLite waits on a locked database
	BusyTimeout time.Duration `env:"BUSY_TIMEOUT" default:"5s"`
}

// Dialect returns the engine selected by cfg.
func (cfg Config) Dialect() Dialect {
	if cfg.URL != "" {
		return DialectPostgres
	}

	return DialectSQLite
}

// DB is an open database handle.
type DB struct {
	*sqlx.DB

	// Dialect is the engine behind the handle
	Dialect Dialect
	// Pool is the native pgx pool, nil for SQLite
	Pool *pgxpool.Pool

	writeLock *sync.Mutex
}

// Wrap adopts an already open handle. SQLite handles get a write lock.
func Wrap(db *sqlx.DB, dialect Dialect) *DB {
	handle := &DB{DB: db, Dialect: dialect, Pool: nil, writeLock: nil}
	if dialect == DialectSQLite {
		handle.writeLock = new(sync.Mutex)
	}

	return handle
}

// LockWrites serializes writers on SQLite, which does not support concurrent writes.
// It is a no-op on PostgreSQL. The returned function releases the lock.
func (db *DB) LockWrites() func() {
	if db.writeLock == nil {
		return func() {}
	}

	db.writeLock.Lock()

	return db.writeLock.Unlock
}

// Open connects to the configured engine and, with AutoMigrate, applies pending migrations.
func Open(ctx context.Context, cfg Config) (db *DB, err error) {
	log := logging.GetLogger("infra.database").With(logging.Group("db", "dialect", cfg.Dialect()))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "open database failed", "error", err)
		} else {
			log.DebugContext(ctx, "database opened")
		}
	}()

	switch cfg.Dialect() {
	case DialectPostgres:
		db, err = openPostgres(ctx, cfg)
	default:
		db, err = openSQLite(ctx, cfg)
	}

	if err != nil {
		return nil, err
	}

	if !cfg.AutoMigrate {
		return db, nil
	}

	if err := Migrate(ctx, cfg); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

func openSQLite(ctx context.Context, cfg Config) (*DB, error) {
	if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, oops.Code("DB_OPEN_FAILED").With("path", cfg.SQLitePath).Wrapf(err, "mkdir")
		}
	}

	sqlDB, err := sqlx.Open("sqlite", sqliteDSN(cfg))
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").With("path", cfg.SQLitePath).Wrapf(err, "open db")
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()

		return nil, oops.Code("DB_OPEN_FAILED").With("path", cfg.SQLitePath).Wrapf(err, "ping db")
	}

	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetMaxOpenConns(max(1, cfg.MaxConns))

	return Wrap(sqlDB, DialectSQLite), nil
}

func sqliteDSN(cfg Config) string {
	query := url.Values{}
	query.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	query.Add("_pragma", "foreign_keys(1)")

	return "file:" + cfg.SQLitePath + "?" + query.Encode()
}

func openPostgres(ctx context.Context, cfg Config) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").Wrapf(err, "parse database url")
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(min(cfg.MaxConns, 1<<15)) //nolint:gosec
	}

	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").Wrapf(err, "create pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, oops.Code("DB_OPEN_FAILED").Wrapf(err, "ping db")
	}

	sqlDB := sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx")

	return &DB{DB: sqlDB, Dialect: DialectPostgres, Pool: pool, writeLock: nil}, nil
}

// Close releases the handle and, for PostgreSQL, the pool.
func (db *DB) Close() error {
	err := db.DB.Close()

	if db.Pool != nil {
		db.Pool.Close()
	}

	if err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	return nil
}

// migrateURL converts cfg into a URL understood by golang-migrate.
func migrateURL(cfg Config) string {
	if cfg.Dialect() == DialectSQLite {
		return "sqlite://" + cfg.SQLitePath
	}

	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if rest, found := strings.CutPrefix(cfg.URL, scheme); found {
			return "pgx5://" + rest
		}
	}

	return cfg.URL
}
