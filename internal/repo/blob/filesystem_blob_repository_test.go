package blob_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/vidrio/internal/domain"
	"github.com/mkrupp/vidrio/internal/repo/blob"
)

func setupFileSystemBlobTestRepo(t *testing.T) *blob.FileSystemRepository {
	t.Helper()

	repo, err := blob.NewFileSystemBlobRepository(context.Background(), "test", "bin", blob.FileSystemBlobRepositoryConfig{
		Basedir: t.TempDir(),
	})
	require.NoError(t, err)

	return repo
}

func TestFileSystemBlobRepository_Store(t *testing.T) {
	t.Parallel()

	repo := setupFileSystemBlobTestRepo(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		blob     *domain.Blob
		wantBody []byte
	}{
		{
			name:     "handles new blob",
			blob:     &domain.Blob{ID: "existingblob", Body: []byte("original content")},
			wantBody: []byte("original content"),
		},
		{
			name:     "handles existing blob",
			blob:     &domain.Blob{ID: "existingblob", Body: []byte("new content")},
			wantBody: []byte("new content"),
		},
		{
			name:     "handles empty blob",
			blob:     &domain.Blob{ID: "emptyblob", Body: []byte("")},
			wantBody: []byte(""),
		},
		{
			name:     "handles short id",
			blob:     &domain.Blob{ID: "ab", Body: []byte("short")},
			wantBody: []byte("short"),
		},
		{
			name:     "handles content address",
			blob:     domain.NewBlob([]byte("addressed")),
			wantBody: []byte("addressed"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unlock, err := repo.Lock(ctx, tt.blob.ID, true)
			require.NoError(t, err)
			t.Cleanup(unlock)

			require.NoError(t, repo.Store(ctx, tt.blob))

			content, err := os.ReadFile(repo.GetFilename(tt.blob.ID))
			require.NoError(t, err)
			assert.Equal(t, tt.wantBody, content)
			assert.True(t, repo.Exists(ctx, tt.blob.ID))
		})
	}
}

func TestFileSystemBlobRepository_Layout(t *testing.T) {
	t.Parallel()

	basedir := t.TempDir()

	repo, err := blob.NewFileSystemBlobRepository(context.Background(), "fotos", "png", blob.FileSystemBlobRepositoryConfig{
		Basedir: basedir,
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(basedir, "fotos", "ab", "cd", "abcdef.png"), repo.GetFilename("abcdef"))
	assert.Equal(t, filepath.Join(basedir, "fotos", "00", "ab", "ab.png"), repo.GetFilename("ab"))
	assert.Equal(t, filepath.Dir(repo.GetFilename("abcdef")), filepath.Dir(repo.GetFilename("abcdef_120")),
		"derived blobs share the shard of their source")
}

func TestFileSystemBlobRepository_InvalidID(t *testing.T) {
	t.Parallel()

	repo := setupFileSystemBlobTestRepo(t)
	ctx := context.Background()

	for _, id := range []domain.BlobID{"", "../escape", "a/b", "dot.dot", "sp ace"} {
		_, err := repo.Lock(ctx, id, true)
		require.ErrorIs(t, err, blob.ErrInvalidBlobID, id)

		require.ErrorIs(t, repo.Store(ctx, &domain.Blob{ID: id, Body: []byte("x")}), blob.ErrInvalidBlobID, id)

		_, err = repo.Fetch(ctx, id)
		require.ErrorIs(t, err, domain.ErrBlobNotFound, id)

		assert.False(t, repo.Exists(ctx, id), id)
	}

	require.ErrorIs(t, repo.DeleteAll(ctx, "abcd", "/*"), filepath.ErrBadPattern)
}

func TestFileSystemBlobRepository_Fetch(t *testing.T) {
	t.Parallel()

	repo := setupFileSystemBlobTestRepo(t)
	ctx := context.Background()

	stored := domain.NewBlob([]byte("test content"))
	require.NoError(t, repo.Store(ctx, stored))

	fetched, err := repo.Fetch(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored, fetched)

	fetched, err = repo.Fetch(ctx, "missingblob")
	require.ErrorIs(t, err, domain.ErrBlobNotFound)
	assert.Nil(t, fetched)
	assert.False(t, repo.Exists(ctx, "missingblob"))
}

func TestFileSystemBlobRepository_Delete(t *testing.T) {
	t.Parallel()

	repo := setupFileSystemBlobTestRepo(t)
	ctx := context.Background()

	stored := domain.NewBlob([]byte("test content"))
	require.NoError(t, repo.Store(ctx, stored))

	require.NoError(t, repo.Delete(ctx, stored.ID))
	assert.False(t, repo.Exists(ctx, stored.ID))

	_, err := os.Stat(repo.GetFilename(stored.ID))
	assert.True(t, os.IsNotExist(err))

	require.ErrorIs(t, repo.Delete(ctx, stored.ID), domain.ErrBlobNotFound)
}

func TestFileSystemBlobRepository_DeleteAll(t *testing.T) {
	t.Parallel()

	repo := setupFileSystemBlobTestRepo(t)
	ctx := context.Background()

	original := domain.NewBlob([]byte("original"))
	other := domain.NewBlob([]byte("other"))

	for _, b := range []*domain.Blob{
		original,
		{ID: original.ID + "_100", Body: []byte("small")},
		{ID: original.ID + "_200", Body: []byte("medium")},
		other,
		{ID: other.ID + "_100", Body: []byte("other small")},
	} {
		require.NoError(t, repo.Store(ctx, b))
	}

	require.NoError(t, repo.DeleteAll(ctx, original.ID, "_*"))

	assert.True(t, repo.Exists(ctx, original.ID), "the pattern needs a suffix")
	assert.False(t, repo.Exists(ctx, original.ID+"_100"))
	assert.False(t, repo.Exists(ctx, original.ID+"_200"))
	assert.True(t, repo.Exists(ctx, other.ID))
	assert.True(t, repo.Exists(ctx, other.ID+"_100"))

	require.NoError(t, repo.DeleteAll(ctx, "nothinghere", "_*"))
}

func TestFileSystemBlobRepository_Lock(t *testing.T) {
	t.Parallel()

	repo := setupFileSystemBlobTestRepo(t)
	ctx := context.Background()

	t.Run("shared lock allows multiple readers", func(t *testing.T) {
		unlock1, err := repo.Lock(ctx, "sharedlock", false)
		require.NoError(t, err)
		defer unlock1()

		unlock2, err := repo.Lock(ctx, "sharedlock", false)
		require.NoError(t, err)
		defer unlock2()
	})

	t.Run("can reacquire after release", func(t *testing.T) {
		unlock, err := repo.Lock(ctx, "relock", true)
		require.NoError(t, err)
		unlock()

		unlock, err = repo.Lock(ctx, "relock", true)
		require.NoError(t, err)
		unlock()
	})

	t.Run("exclusive lock serializes writers", func(t *testing.T) {
		var (
			wg      sync.WaitGroup
			m       sync.Mutex
			holders int
			maxSeen int
		)

		for range 8 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				unlock, err := repo.Lock(ctx, "exclusive", true)
				if !assert.NoError(t, err) {
					return
				}
				defer unlock()

				m.Lock()
				holders++
				maxSeen = max(maxSeen, holders)
				m.Unlock()

				m.Lock()
				holders--
				m.Unlock()
			}()
		}

		wg.Wait()
		assert.Equal(t, 1, maxSeen)
	})
}

func TestNewRepositoryFactory(t *testing.T) {
	t.Parallel()

	factory, err := blob.NewRepositoryFactory(context.Background(), blob.Config{
		Backend:    "filesystem",
		FileSystem: blob.FileSystemBlobRepositoryConfig{Basedir: t.TempDir()},
	})
	require.NoError(t, err)

	repo, err := factory(context.Background(), "fotos", "png")
	require.NoError(t, err)
	assert.IsType(t, &blob.FileSystemRepository{}, repo)

	_, err = blob.NewRepositoryFactory(context.Background(), blob.Config{Backend: "tape"})
	require.ErrorIs(t, err, blob.ErrUnknownBackend)
}
