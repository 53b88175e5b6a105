// Package foto persists foto records. Image bodies live in the blob store.
package foto

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mkrupp/vidrio/internal/domain"
	"github.com/mkrupp/vidrio/internal/infra/database"
	"github.com/mkrupp/vidrio/internal/infra/logging"
)

// Repository defines the interface for foto storage operations.
type Repository interface {
	// CreateFoto stores f and returns it with its ID and creation time set.
	CreateFoto(ctx context.Context, f domain.Foto) (*domain.Foto, error)

	// GetFoto returns the foto with the given ID or domain.ErrFotoNotFound.
	GetFoto(ctx context.Context, id int64) (*domain.Foto, error)

	// ListFotos returns all fotos, newest first.
	ListFotos(ctx context.Context) ([]domain.Foto, error)

	// DeleteFoto removes a foto or returns domain.ErrFotoNotFound.
	DeleteFoto(ctx context.Context, id int64) error

	// CountBlobRefs counts the fotos referencing blob in either rendition.
	CountBlobRefs(ctx context.Context, blob domain.BlobID) (int, error)
}

// SQLRepository implements Repository with sqlx on SQLite or PostgreSQL.
type SQLRepository struct {
	db  *database.DB
	log logging.Logger
	now func() time.Time
}

var _ Repository = (*SQLRepository)(nil)

type fotoRow struct {
	ID              int64          `db:"id"`
	Nombre          string         `db:"nombre"`
	CreadoPor       string         `db:"creado_por"`
	CreatedAt       int64          `db:"created_at"`
	OriginalBlob    sql.NullString `db:"original_blob"`
	AnotadaBlob     sql.NullString `db:"anotada_blob"`
	AnotacionesJSON string         `db:"anotaciones_json"`
}

func (row fotoRow) foto() domain.Foto {
	return domain.Foto{
		ID:           row.ID,
		Nombre:       row.Nombre,
		CreadoPor:    row.CreadoPor,
		CreatedAt:    time.Unix(row.CreatedAt, 0).UTC(),
		OriginalBlob: domain.BlobID(row.OriginalBlob.String),
		AnotadaBlob:  domain.BlobID(row.AnotadaBlob.String),
		Anotaciones:  json.RawMessage(row.AnotacionesJSON),
	}
}

func nullBlob(id domain.BlobID) sql.NullString {
	return sql.NullString{String: string(id), Valid: id != ""}
}

const selectFoto = `SELECT id, nombre, creado_por, created_at, original_blob, anotada_blob, anotaciones_json FROM fotos`

// NewSQLRepository creates a new SQLRepository on an open, migrated database.
func NewSQLRepository(db *database.DB) *SQLRepository {
	return &SQLRepository{
		db:  db,
		log: logging.GetLogger("repo.foto.sql_repository").With(logging.Group("db", "dialect", db.Dialect)),
		now: time.Now,
	}
}

// CreateFoto implements Repository.CreateFoto.
func (r *SQLRepository) CreateFoto(ctx context.Context, f domain.Foto) (*domain.Foto, error) {
	if f.Nombre == "" || f.CreadoPor == "" {
		return nil, fmt.Errorf("%w: nombre and creado_por are required", domain.ErrFotoInvalid)
	}

	anotaciones := string(f.Anotaciones)
	if anotaciones == "" {
		anotaciones = "[]"
	}

	row := fotoRow{
		ID:              0,
		Nombre:          f.Nombre,
		CreadoPor:       f.CreadoPor,
		CreatedAt:       r.now().Unix(),
		OriginalBlob:    nullBlob(f.OriginalBlob),
		AnotadaBlob:     nullBlob(f.AnotadaBlob),
		AnotacionesJSON: anotaciones,
	}

	release := r.db.LockWrites()
	defer release()

	err := r.db.GetContext(ctx, &row.ID, r.db.Rebind(
		`INSERT INTO fotos (nombre, creado_por, created_at, original_blob, anotada_blob, anotaciones_json)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		row.Nombre, row.CreadoPor, row.CreatedAt, row.OriginalBlob, row.AnotadaBlob, row.AnotacionesJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("insert foto: %w", err)
	}

	r.log.DebugContext(ctx, "foto created", logging.Group("foto", "id", row.ID))

	created := row.foto()

	return &created, nil
}

// GetFoto implements Repository.GetFoto.
func (r *SQLRepository) GetFoto(ctx context.Context, id int64) (*domain.Foto, error) {
	var row fotoRow

	if err := r.db.GetContext(ctx, &row, r.db.Rebind(selectFoto+` WHERE id = ?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = errors.Join(domain.ErrFotoNotFound, err)
		}

		return nil, fmt.Errorf("query foto: %w", err)
	}

	f := row.foto()

	return &f, nil
}

// ListFotos implements Repository.ListFotos.
func (r *SQLRepository) ListFotos(ctx context.Context) ([]domain.Foto, error) {
	var rows []fotoRow

	if err := r.db.SelectContext(ctx, &rows, selectFoto+` ORDER BY id DESC`); err != nil {
		return nil, fmt.Errorf("query fotos: %w", err)
	}

	fotos := make([]domain.Foto, 0, len(rows))
	for _, row := range rows {
		fotos = append(fotos, row.foto())
	}

	return fotos, nil
}

// DeleteFoto implements Repository.DeleteFoto.
func (r *SQLRepository) DeleteFoto(ctx context.Context, id int64) error {
	release := r.db.LockWrites()
	defer release()

	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM fotos WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete foto: %w", err)
	}

	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("delete foto: %w", domain.ErrFotoNotFound)
	}

	return nil
}

// CountBlobRefs implements Repository.CountBlobRefs.
func (r *SQLRepository) CountBlobRefs(ctx context.Context, blob domain.BlobID) (int, error) {
	var count int

	if err := r.db.GetContext(ctx, &count, r.db.Rebind(
		`SELECT COUNT(*) FROM fotos WHERE original_blob = ? OR anotada_blob = ?`),
		string(blob), string(blob),
	); err != nil {
		return 0, fmt.Errorf("count blob refs: %w", err)
	}

	return count, nil
}
