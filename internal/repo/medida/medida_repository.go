// Package medida persists measurement definitions.
package medida

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mkrupp/vidrio/internal/domain"
	"github.com/mkrupp/vidrio/internal/infra/database"
	"github.com/mkrupp/vidrio/internal/infra/logging"
)

// Repository defines the interface for medida storage operations.
// The catalog is shared: every operation addresses medidas regardless of who created them.
type Repository interface {
	// CreateMedida stores a new medida recorded as created by creadoPor.
	CreateMedida(ctx context.Context, in domain.MedidaInput, creadoPor string) (*domain.Medida, error)

	// GetMedida returns the medida with the given ID or domain.ErrMedidaNotFound.
	GetMedida(ctx context.Context, id int64) (*domain.Medida, error)

	// ListMedidas returns all medidas, newest first.
	ListMedidas(ctx context.Context) ([]domain.Medida, error)

	// UpdateMedida replaces the editable fields of a medida.
	UpdateMedida(ctx context.Context, id int64, in domain.MedidaInput) (*domain.Medida, error)

	// DeleteMedida removes a medida or returns domain.ErrMedidaNotFound.
	DeleteMedida(ctx context.Context, id int64) error
}

// SQLRepository implements Repository with sqlx on SQLite or PostgreSQL.
type SQLRepository struct {
	db  *database.DB
	log logging.Logger
	now func() time.Time
}

var _ Repository = (*SQLRepository)(nil)

type medidaRow struct {
	ID          int64  `db:"id"`
	Nombre      string `db:"nombre"`
	Unidad      string `db:"unidad"`
	Descripcion string `db:"descripcion"`
	CreadoPor   string `db:"creado_por"`
	CreatedAt   int64  `db:"created_at"`
}

func (row medidaRow) medida() domain.Medida {
	return domain.Medida{
		ID:          row.ID,
		Nombre:      row.Nombre,
		Unidad:      row.Unidad,
		Descripcion: row.Descripcion,
		CreadoPor:   row.CreadoPor,
		CreatedAt:   time.Unix(row.CreatedAt, 0).UTC(),
	}
}

const selectMedida = `SELECT id, nombre, unidad, descripcion, creado_por, created_at FROM medidas`

// NewSQLRepository creates a new SQLRepository on an open, migrated database.
func NewSQLRepository(db *database.DB) *SQLRepository {
	return &SQLRepository{
		db:  db,
		log: logging.GetLogger("repo.medida.sql_repository").With(logging.Group("db", "dialect", db.Dialect)),
		now: time.Now,
	}
}

// CreateMedida implements Repository.CreateMedida.
func (r *SQLRepository) CreateMedida(
	ctx context.Context,
	in domain.MedidaInput,
	creadoPor string,
) (_ *domain.Medida, err error) {
	if err := in.Check(); err != nil {
		return nil, fmt.Errorf("check medida: %w", err)
	}

	row := medidaRow{
		ID:          0,
		Nombre:      in.Nombre,
		Unidad:      in.Unidad,
		Descripcion: in.Descripcion,
		CreadoPor:   creadoPor,
		CreatedAt:   r.now().Unix(),
	}

	release := r.db.LockWrites()
	defer release()

	err = r.db.GetContext(ctx, &row.ID, r.db.Rebind(
		`INSERT INTO medidas (nombre, unidad, descripcion, creado_por, created_at)
		 VALUES (?, ?, ?, ?, ?) RETURNING id`),
		row.Nombre, row.Unidad, row.Descripcion, row.CreadoPor, row.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert medida: %w", err)
	}

	r.log.DebugContext(ctx, "medida created", logging.Group("medida", "id", row.ID))

	medida := row.medida()

	return &medida, nil
}

// GetMedida implements Repository.GetMedida.
func (r *SQLRepository) GetMedida(ctx context.Context, id int64) (*domain.Medida, error) {
	var row medidaRow

	if err := r.db.GetContext(ctx, &row, r.db.Rebind(selectMedida+` WHERE id = ?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = errors.Join(domain.ErrMedidaNotFound, err)
		}

		return nil, fmt.Errorf("query medida: %w", err)
	}

	medida := row.medida()

	return &medida, nil
}

// ListMedidas implements Repository.ListMedidas.
func (r *SQLRepository) ListMedidas(ctx context.Context) ([]domain.Medida, error) {
	var rows []medidaRow

	if err := r.db.SelectContext(ctx, &rows, selectMedida+` ORDER BY id DESC`); err != nil {
		return nil, fmt.Errorf("query medidas: %w", err)
	}

	medidas := make([]domain.Medida, 0, len(rows))
	for _, row := range rows {
		medidas = append(medidas, row.medida())
	}

	return medidas, nil
}

// UpdateMedida implements Repository.UpdateMedida.
func (r *SQLRepository) UpdateMedida(ctx context.Context, id int64, in domain.MedidaInput) (*domain.Medida, error) {
	if err := in.Check(); err != nil {
		return nil, fmt.Errorf("check medida: %w", err)
	}

	release := r.db.LockWrites()

	res, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE medidas SET nombre = ?, unidad = ?, descripcion = ? WHERE id = ?`),
		in.Nombre, in.Unidad, in.Descripcion, id,
	)

	release()

	if err := affectedOne(res, err); err != nil {
		return nil, fmt.Errorf("update medida: %w", err)
	}

	return r.GetMedida(ctx, id)
}

// DeleteMedida implements Repository.DeleteMedida.
func (r *SQLRepository) DeleteMedida(ctx context.Context, id int64) error {
	release := r.db.LockWrites()
	defer release()

	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM medidas WHERE id = ?`), id)
	if err := affectedOne(res, err); err != nil {
		return fmt.Errorf("delete medida: %w", err)
	}

	return nil
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if n == 0 {
		return domain.ErrMedidaNotFound
	}

	return nil
}
