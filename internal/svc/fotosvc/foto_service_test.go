package fotosvc_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/vidrio/internal/domain"
	"github.com/mkrupp/vidrio/internal/infra/database"
	"github.com/mkrupp/vidrio/internal/repo/blob"
	"github.com/mkrupp/vidrio/internal/repo/foto"
	"github.com/mkrupp/vidrio/internal/svc/fotosvc"
)

const testEmail = "ana@example.com"

type fixture struct {
	svc      *fotosvc.FotoService
	images   blob.Repository
	cache    blob.Repository
	maxWidth int
}

func defaultConfig() fotosvc.FotosConfig {
	return fotosvc.FotosConfig{
		MaxSize:      1 << 20,
		MaxBodySize:  4 << 20,
		MaxWidth:     64,
		Interpolator: "catmullrom",
	}
}

var errCreateFoto = errors.New("create foto failed")

// flakyFotoRepository fails CreateFoto while failCreate is set.
type flakyFotoRepository struct {
	foto.Repository

	failCreate atomic.Bool
}

func (r *flakyFotoRepository) CreateFoto(ctx context.Context, f domain.Foto) (*domain.Foto, error) {
	if r.failCreate.Load() {
		return nil, errCreateFoto
	}

	return r.Repository.CreateFoto(ctx, f)
}

func newFixture(t *testing.T, cfg fotosvc.FotosConfig) *fixture {
	t.Helper()

	return newFixtureWithRepo(t, cfg, func(r foto.Repository) foto.Repository { return r })
}

func newFixtureWithRepo(t *testing.T, cfg fotosvc.FotosConfig, wrap func(foto.Repository) foto.Repository) *fixture {
	t.Helper()

	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		SQLitePath:      filepath.Join(t.TempDir(), "fotos.db"),
		AutoMigrate:     true,
		MaxConns:        4,
		ConnMaxLifetime: time.Minute,
		BusyTimeout:     5 * time.Second,
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	factory := blob.FileSystemBlobRepositoryFactory(blob.FileSystemBlobRepositoryConfig{Basedir: t.TempDir()})

	svc, err := fotosvc.NewFotoService(ctx, wrap(foto.NewSQLRepository(db)), factory, cfg)
	require.NoError(t, err)

	images, err := factory(ctx, "fotos", "png")
	require.NoError(t, err)

	cache, err := factory(ctx, "cache", "png")
	require.NoError(t, err)

	return &fixture{
		svc:      svc,
		images:   images,
		cache:    cache,
		maxWidth: cfg.MaxWidth,
	}
}

func encodePNG(t *testing.T, width, height int, fill uint8) []byte {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = fill
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	return buf.Bytes()
}

func dataURL(data []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

func TestNewFotoService_UnknownInterpolator(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Interpolator = "lanczos"

	_, err := fotosvc.NewFotoService(context.Background(), nil,
		blob.FileSystemBlobRepositoryFactory(blob.FileSystemBlobRepositoryConfig{Basedir: t.TempDir()}), cfg)
	require.ErrorIs(t, err, fotosvc.ErrUnknownInterpolator)
}

func TestFotoService_Upload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newFixture(t, defaultConfig())

	original := encodePNG(t, 32, 16, 0x10)
	anotada := encodePNG(t, 32, 16, 0xf0)

	created, err := fx.svc.Upload(ctx, fotosvc.UploadForm{
		Nombre:      "  Ventana cocina ",
		Original:    dataURL(original),
		Anotada:     base64.StdEncoding.EncodeToString(anotada),
		Anotaciones: []byte(`"[{\"texto\":\"1.20 m\"}]"`),
	}, testEmail)
	require.NoError(t, err)

	assert.Equal(t, "Ventana cocina", created.Nombre)
	assert.Equal(t, testEmail, created.CreadoPor)
	assert.Equal(t, domain.BlobIDOf(original), created.OriginalBlob)
	assert.Equal(t, domain.BlobIDOf(anotada), created.AnotadaBlob)
	assert.JSONEq(t, `[{"texto":"1.20 m"}]`, string(created.Anotaciones))

	assert.True(t, fx.images.Exists(ctx, created.OriginalBlob))
	assert.True(t, fx.images.Exists(ctx, created.AnotadaBlob))

	img, err := fx.svc.Image(ctx, created.ID, domain.FotoOriginal, 0)
	require.NoError(t, err)
	assert.Equal(t, original, img.Bytes())

	got, err := fx.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.OriginalBlob, got.OriginalBlob)

	list, err := fx.svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestFotoService_UploadDiscardsBlobsWhenRecordFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	//nolint:exhaustruct
	repo := &flakyFotoRepository{}
	fx := newFixtureWithRepo(t, defaultConfig(), func(r foto.Repository) foto.Repository {
		repo.Repository = r

		return repo
	})

	shared := encodePNG(t, 8, 8, 0x20)
	fresh := encodePNG(t, 8, 8, 0x80)

	kept, err := fx.svc.Upload(ctx, fotosvc.UploadForm{Nombre: "kept", Original: dataURL(shared)}, testEmail)
	require.NoError(t, err)

	repo.failCreate.Store(true)

	_, err = fx.svc.Upload(ctx, fotosvc.UploadForm{
		Nombre:   "lost",
		Original: dataURL(shared),
		Anotada:  dataURL(fresh),
	}, testEmail)
	require.ErrorIs(t, err, errCreateFoto)

	assert.True(t, fx.images.Exists(ctx, kept.OriginalBlob), "blob of an existing foto is kept")
	assert.False(t, fx.images.Exists(ctx, domain.BlobIDOf(fresh)), "blob stored by the failed upload is discarded")

	repo.failCreate.Store(false)

	img, err := fx.svc.Image(ctx, kept.ID, domain.FotoOriginal, 0)
	require.NoError(t, err)
	assert.Equal(t, shared, img.Bytes())
}

func TestFotoService_UploadRejected(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, defaultConfig())
	valid := dataURL(encodePNG(t, 4, 4, 0))

	tests := []struct {
		name string
		form fotosvc.UploadForm
		want error
	}{
		{"missing nombre", fotosvc.UploadForm{Nombre: " ", Original: valid}, domain.ErrFotoInvalid},
		{"missing original", fotosvc.UploadForm{Nombre: "x"}, domain.ErrFotoInvalid},
		{"bad base64", fotosvc.UploadForm{Nombre: "x", Original: "%%%"}, domain.ErrFotoInvalid},
		{"jpeg", fotosvc.UploadForm{Nombre: "x", Original: base64.StdEncoding.EncodeToString([]byte("\xFF\xD8\xFF\xE0"))}, domain.ErrImageTypeNotSupported},
		{"bad anotada", fotosvc.UploadForm{Nombre: "x", Original: valid, Anotada: "data:image/gif;base64,AAAA"}, domain.ErrImageTypeNotSupported},
		{"anotaciones object", fotosvc.UploadForm{Nombre: "x", Original: valid, Anotaciones: []byte(`{}`)}, domain.ErrFotoInvalid},
		{"too large", fotosvc.UploadForm{Nombre: "x", Original: dataURL(make([]byte, 2<<20))}, domain.ErrFotoTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.svc.Upload(context.Background(), tt.form, testEmail)
			require.ErrorIs(t, err, tt.want)
		})
	}

	list, err := fx.svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list, "rejected uploads leave no record")
}

func TestFotoService_Thumbnail(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newFixture(t, defaultConfig())

	original := encodePNG(t, 40, 20, 0x80)

	created, err := fx.svc.Upload(ctx, fotosvc.UploadForm{Nombre: "x", Original: dataURL(original)}, testEmail)
	require.NoError(t, err)

	thumb, err := fx.svc.Image(ctx, created.ID, domain.FotoOriginal, 10)
	require.NoError(t, err)

	cfg, err := png.DecodeConfig(bytes.NewReader(thumb.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Width)
	assert.Equal(t, 5, cfg.Height)

	cacheID := domain.BlobID(fmt.Sprintf("%s_10", created.OriginalBlob))
	assert.Equal(t, cacheID, thumb.ID)
	assert.True(t, fx.cache.Exists(ctx, cacheID))

	again, err := fx.svc.Image(ctx, created.ID, domain.FotoOriginal, 10)
	require.NoError(t, err)
	assert.Equal(t, thumb.Bytes(), again.Bytes())

	wide, err := fx.svc.Image(ctx, created.ID, domain.FotoOriginal, 40)
	require.NoError(t, err)
	assert.Equal(t, original, wide.Bytes(), "no upscaling")

	_, err = fx.svc.Image(ctx, created.ID, domain.FotoOriginal, fx.maxWidth+1)
	require.ErrorIs(t, err, domain.ErrFotoInvalid)
	require.ErrorIs(t, err, domain.ErrInvalidWidth)

	_, err = fx.svc.Image(ctx, created.ID, domain.FotoAnotada, 0)
	require.ErrorIs(t, err, domain.ErrFotoNotFound, "no annotated rendition")

	_, err = fx.svc.Image(ctx, created.ID+100, domain.FotoOriginal, 0)
	require.ErrorIs(t, err, domain.ErrFotoNotFound)
}

func TestFotoService_DeletePrunesUnreferencedBlobs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newFixture(t, defaultConfig())

	shared := dataURL(encodePNG(t, 40, 20, 0x01))
	own := encodePNG(t, 40, 20, 0x02)

	first, err := fx.svc.Upload(ctx, fotosvc.UploadForm{Nombre: "a", Original: shared, Anotada: dataURL(own)}, testEmail)
	require.NoError(t, err)

	second, err := fx.svc.Upload(ctx, fotosvc.UploadForm{Nombre: "b", Original: shared}, testEmail)
	require.NoError(t, err)
	require.Equal(t, first.OriginalBlob, second.OriginalBlob, "identical images share a blob")

	_, err = fx.svc.Image(ctx, first.ID, domain.FotoOriginal, 8)
	require.NoError(t, err)

	cacheID := domain.BlobID(string(first.OriginalBlob) + "_8")

	require.NoError(t, fx.svc.Delete(ctx, first.ID))

	assert.True(t, fx.images.Exists(ctx, first.OriginalBlob), "still referenced by the second foto")
	assert.True(t, fx.cache.Exists(ctx, cacheID))
	assert.False(t, fx.images.Exists(ctx, first.AnotadaBlob), "only the deleted foto referenced it")

	require.NoError(t, fx.svc.Delete(ctx, second.ID))

	assert.False(t, fx.images.Exists(ctx, second.OriginalBlob))
	assert.False(t, fx.cache.Exists(ctx, cacheID))

	err = fx.svc.Delete(ctx, second.ID)
	require.ErrorIs(t, err, domain.ErrFotoNotFound)
}

func TestFotoService_ConcurrentUploadAndDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newFixture(t, defaultConfig())

	shared := dataURL(encodePNG(t, 8, 8, 0x33))

	seed, err := fx.svc.Upload(ctx, fotosvc.UploadForm{Nombre: "seed", Original: shared}, testEmail)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		created = make(chan *domain.Foto, 8)
	)

	wg.Add(1)

	go func() {
		defer wg.Done()

		assert.NoError(t, fx.svc.Delete(ctx, seed.ID))
	}()

	for i := range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			f, err := fx.svc.Upload(ctx, fotosvc.UploadForm{Nombre: fmt.Sprintf("f%d", i), Original: shared}, testEmail)
			if assert.NoError(t, err) {
				created <- f
			}
		}()
	}

	wg.Wait()
	close(created)

	for f := range created {
		img, err := fx.svc.Image(ctx, f.ID, domain.FotoOriginal, 0)
		require.NoError(t, err, "every surviving foto can still read its image")
		assert.Equal(t, f.OriginalBlob, domain.BlobIDOf(img.Bytes()))
	}
}
