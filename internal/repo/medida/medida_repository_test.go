package medida_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/vidrio/internal/domain"
	"github.com/mkrupp/vidrio/internal/infra/database"
	"github.com/mkrupp/vidrio/internal/repo/medida"
)

func newSQLiteRepo(t *testing.T) *medida.SQLRepository {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		SQLitePath:      filepath.Join(t.TempDir(), "medidas.db"),
		AutoMigrate:     true,
		MaxConns:        4,
		ConnMaxLifetime: time.Minute,
		BusyTimeout:     5 * time.Second,
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return medida.NewSQLRepository(db)
}

func TestSQLRepository_CRUD(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newSQLiteRepo(t)

	metro, err := repo.CreateMedida(ctx, domain.MedidaInput{Nombre: "Metro", Unidad: "m", Descripcion: "Longitud"}, "a@b.com")
	require.NoError(t, err)
	assert.Positive(t, metro.ID)
	assert.Equal(t, "a@b.com", metro.CreadoPor)
	assert.WithinDuration(t, time.Now(), metro.CreatedAt, time.Minute)

	m2, err := repo.CreateMedida(ctx, domain.MedidaInput{Nombre: "Metro cuadrado", Unidad: "m2"}, "c@d.com")
	require.NoError(t, err)

	got, err := repo.GetMedida(ctx, metro.ID)
	require.NoError(t, err)
	assert.Equal(t, metro, got)

	list, err := repo.ListMedidas(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, m2.ID, list[0].ID, "newest first")
	assert.Equal(t, "c@d.com", list[0].CreadoPor, "the catalog is shared")

	updated, err := repo.UpdateMedida(ctx, metro.ID, domain.MedidaInput{Nombre: "Metro lineal", Unidad: "ml"})
	require.NoError(t, err)
	assert.Equal(t, "Metro lineal", updated.Nombre)
	assert.Empty(t, updated.Descripcion)
	assert.Equal(t, metro.CreadoPor, updated.CreadoPor)
	assert.Equal(t, metro.CreatedAt, updated.CreatedAt)

	require.NoError(t, repo.DeleteMedida(ctx, metro.ID))

	_, err = repo.GetMedida(ctx, metro.ID)
	require.ErrorIs(t, err, domain.ErrMedidaNotFound)
}

func TestSQLRepository_NotFoundAndInvalid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newSQLiteRepo(t)

	_, err := repo.CreateMedida(ctx, domain.MedidaInput{Nombre: "Metro"}, "a@b.com")
	require.ErrorIs(t, err, domain.ErrMedidaInvalid)

	_, err = repo.UpdateMedida(ctx, 42, domain.MedidaInput{Nombre: "Metro", Unidad: "m"})
	require.ErrorIs(t, err, domain.ErrMedidaNotFound)

	_, err = repo.UpdateMedida(ctx, 42, domain.MedidaInput{Unidad: "m"})
	require.ErrorIs(t, err, domain.ErrMedidaInvalid)

	require.ErrorIs(t, repo.DeleteMedida(ctx, 42), domain.ErrMedidaNotFound)

	list, err := repo.ListMedidas(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLRepository_StorageFault(t *testing.T) {
	t.Parallel()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	defer mockDB.Close()

	fault := errors.New("connection reset")

	mock.ExpectQuery("SELECT id, nombre").WithArgs(int64(7)).WillReturnError(fault)
	mock.ExpectQuery("INSERT INTO medidas").WillReturnError(fault)
	mock.ExpectExec("DELETE FROM medidas").WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))

	repo := medida.NewSQLRepository(database.Wrap(sqlx.NewDb(mockDB, "pgx"), database.DialectPostgres))

	_, err = repo.GetMedida(context.Background(), 7)
	require.ErrorIs(t, err, fault)
	require.NotErrorIs(t, err, domain.ErrMedidaNotFound)

	_, err = repo.CreateMedida(context.Background(), domain.MedidaInput{Nombre: "Metro", Unidad: "m"}, "a@b.com")
	require.ErrorIs(t, err, fault)

	require.NoError(t, repo.DeleteMedida(context.Background(), 7))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_PostgresPlaceholders(t *testing.T) {
	t.Parallel()

	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	defer mockDB.Close()

	mock.ExpectExec(`DELETE FROM medidas WHERE id = $1`).WithArgs(int64(3)).WillReturnResult(sqlmock.NewResult(0, 0))

	repo := medida.NewSQLRepository(database.Wrap(sqlx.NewDb(mockDB, "pgx"), database.DialectPostgres))

	require.ErrorIs(t, repo.DeleteMedida(context.Background(), 3), domain.ErrMedidaNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
