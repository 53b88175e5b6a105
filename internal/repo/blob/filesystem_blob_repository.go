package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mkrupp/vidrio/internal/domain"
	"github.com/mkrupp/vidrio/internal/infra/logging"
)

var (
	ErrBytesWrittenMismatch = errors.New("bytes written mismatch")
	ErrBytesReadMismatch    = errors.New("bytes read mismatch")
	// ErrInvalidBlobID is returned for IDs that cannot name a file inside the repository.
	ErrInvalidBlobID = errors.New("invalid blob id")
)

const (
	shardWidth  = 2 // 16^2 = 256 directories per level
	shardLevels = 2 // 256^2 = 65,536 leaf directories
)

// FileSystemBlobRepositoryConfig holds configuration for the filesystem-based blob repository.
type FileSystemBlobRepositoryConfig struct {
	// Basedir is the root directory for blob storage
	Basedir string `env:"BASEDIR" default:"var/storage/blob"`
}

// FileSystemBlobRepositoryFactory returns a RepositoryFactory creating repositories below cfg.Basedir.
// Repositories created by one factory share their in-process locks.
func FileSystemBlobRepositoryFactory(cfg FileSystemBlobRepositoryConfig) RepositoryFactory {
	locks := newKeyedLocks()

	return func(ctx context.Context, subdir string, ext string) (Repository, error) {
		return newFileSystemBlobRepository(ctx, subdir, ext, cfg, locks)
	}
}

// NewFileSystemBlobRepository creates a FileSystemRepository storing blobs as
// <basedir>/<subdir>/<shard>/<shard>/<id>.<ext>.
func NewFileSystemBlobRepository(
	ctx context.Context,
	subdir string,
	ext string,
	cfg FileSystemBlobRepositoryConfig,
) (*FileSystemRepository, error) {
	return newFileSystemBlobRepository(ctx, subdir, ext, cfg, newKeyedLocks())
}

func newFileSystemBlobRepository(
	ctx context.Context,
	subdir string,
	ext string,
	cfg FileSystemBlobRepositoryConfig,
	locks *keyedLocks,
) (*FileSystemRepository, error) {
	repo := &FileSystemRepository{
		root:  filepath.Join(cfg.Basedir, subdir),
		ext:   ext,
		locks: locks,
		log: logging.GetLogger("repo.blob.filesystem_repository").With(
			logging.Group("repo", "basedir", cfg.Basedir, "subdir", subdir, "ext", ext),
		),
	}

	if err := os.MkdirAll(repo.root, 0o755); err != nil {
		repo.log.ErrorContext(ctx, "init storage failed", "error", err)

		return nil, fmt.Errorf("init repo: %w", err)
	}

	repo.log.DebugContext(ctx, "storage ready")

	return repo, nil
}

// FileSystemRepository implements Repository on the local filesystem.
// Blobs derived from another one (such as "<id>_<suffix>") share its shard directory,
// so DeleteAll only has to scan a single directory.
// Locks combine an in-process RWMutex with an flock(2) on a sidecar file, so they also
// hold across processes sharing the directory.
type FileSystemRepository struct {
	root  string
	ext   string
	locks *keyedLocks
	log   logging.Logger
}

var _ Repository = (*FileSystemRepository)(nil)

func checkID(id domain.BlobID) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidBlobID)
	}

	for _, r := range id {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '-':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidBlobID, id)
		}
	}

	return nil
}

// shardDir returns the directory holding id; short ids are padded with zeros.
func (fsRepo *FileSystemRepository) shardDir(id domain.BlobID) string {
	key := string(id)
	if n := shardWidth * shardLevels; len(key) < n {
		key = strings.Repeat("0", n-len(key)) + key
	}

	parts := []string{fsRepo.root}
	for level := range shardLevels {
		parts = append(parts, key[level*shardWidth:(level+1)*shardWidth])
	}

	return filepath.Join(parts...)
}

// GetFilename returns the full filesystem path for a blob with the given ID.
func (fsRepo *FileSystemRepository) GetFilename(id domain.BlobID) string {
	return filepath.Join(fsRepo.shardDir(id), string(id)+"."+fsRepo.ext)
}

func (fsRepo *FileSystemRepository) Lock(ctx context.Context, id domain.BlobID, exclusive bool) (_ func(), err error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	release := fsRepo.locks.lock(fsRepo.GetFilename(id), exclusive)

	defer func() {
		if err != nil {
			release()
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("lock: %w", err)
	}

	mode := syscall.LOCK_SH
	if exclusive {
		mode = syscall.LOCK_EX
	}

	unflock, err := fsRepo.flock(ctx, fsRepo.GetFilename(id)+".lock", mode)
	if err != nil {
		return nil, fmt.Errorf("flock: %w", err)
	}

	return func() {
		unflock()
		release()
	}, nil
}

func (fsRepo *FileSystemRepository) flock(ctx context.Context, lockfile string, mode int) (func(), error) {
	log := fsRepo.log.With(logging.Group("blob", "lockfile", lockfile))

	if err := os.MkdirAll(filepath.Dir(lockfile), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir all: %w", err)
	}

	file, err := os.OpenFile(lockfile, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lockfile: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), mode); err != nil {
		_ = file.Close()

		log.ErrorContext(ctx, "lock failed", "error", err)

		return nil, fmt.Errorf("flock: %w", err)
	}

	log.DebugContext(ctx, "lock acquired", "exclusive", mode == syscall.LOCK_EX)

	return func() {
		_ = syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		_ = file.Close()

		log.DebugContext(ctx, "lock released")
	}, nil
}

func (fsRepo *FileSystemRepository) Exists(_ context.Context, id domain.BlobID) bool {
	if checkID(id) != nil {
		return false
	}

	info, err := os.Stat(fsRepo.GetFilename(id))

	return err == nil && info.Mode().IsRegular()
}

// Store writes to a temporary file and renames it, so readers never see a partial blob.
func (fsRepo *FileSystemRepository) Store(ctx context.Context, blob *domain.Blob) (err error) {
	if err := checkID(blob.ID); err != nil {
		return fmt.Errorf("store blob: %w", err)
	}

	filename := fsRepo.GetFilename(blob.ID)
	log := fsRepo.log.With(logging.Group("blob", "id", blob.ID, "size", blob.Size()))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "blob store failed", "error", err)
		} else {
			log.DebugContext(ctx, "blob stored")
		}
	}()

	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("store blob: mkdir all: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(filename), "."+string(blob.ID)+".tmp*")
	if err != nil {
		return fmt.Errorf("store blob: create temp: %w", err)
	}

	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	written, err := blob.WriteTo(tmp)

	switch {
	case err != nil:
		err = fmt.Errorf("write: %w", err)
	case written != blob.Size():
		err = fmt.Errorf("%w: expected %d, got %d", ErrBytesWrittenMismatch, blob.Size(), written)
	default:
		err = tmp.Sync()
	}

	err = errors.Join(err, tmp.Close())
	if err != nil {
		return fmt.Errorf("store blob: %w", err)
	}

	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("store blob: chmod: %w", err)
	}

	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("store blob: rename: %w", err)
	}

	return nil
}

func (fsRepo *FileSystemRepository) Fetch(ctx context.Context, id domain.BlobID) (*domain.Blob, error) {
	if err := checkID(id); err != nil {
		return nil, fmt.Errorf("fetch blob: %w", errors.Join(domain.ErrBlobNotFound, err))
	}

	body, err := os.ReadFile(fsRepo.GetFilename(id))
	if errors.Is(err, fs.ErrNotExist) {
		fsRepo.log.DebugContext(ctx, "blob not found", logging.Group("blob", "id", id))

		return nil, fmt.Errorf("fetch blob: %w: %s", domain.ErrBlobNotFound, id)
	} else if err != nil {
		fsRepo.log.ErrorContext(ctx, "blob fetch failed", logging.Group("blob", "id", id), "error", err)

		return nil, fmt.Errorf("fetch blob: %w", err)
	}

	fsRepo.log.DebugContext(ctx, "blob fetched", logging.Group("blob", "id", id, "size", len(body)))

	return &domain.Blob{ID: id, Body: body}, nil
}

func (fsRepo *FileSystemRepository) Delete(ctx context.Context, id domain.BlobID) error {
	if err := checkID(id); err != nil {
		return fmt.Errorf("delete blob: %w", errors.Join(domain.ErrBlobNotFound, err))
	}

	if err := os.Remove(fsRepo.GetFilename(id)); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob: %w: %s", domain.ErrBlobNotFound, id)
	} else if err != nil {
		fsRepo.log.ErrorContext(ctx, "blob delete failed", logging.Group("blob", "id", id), "error", err)

		return fmt.Errorf("delete blob: %w", err)
	}

	fsRepo.log.DebugContext(ctx, "blob deleted", logging.Group("blob", "id", id))

	return nil
}

// DeleteAll removes the blobs named id+suffix where suffix matches pattern (filepath.Match syntax).
// Lock sidecars are left in place, since another process may be waiting on them.
func (fsRepo *FileSystemRepository) DeleteAll(ctx context.Context, id domain.BlobID, pattern string) error {
	if err := checkID(id); err != nil {
		return fmt.Errorf("delete blob pattern: %w", err)
	}

	if strings.ContainsRune(pattern, filepath.Separator) {
		return fmt.Errorf("delete blob pattern: %w", filepath.ErrBadPattern)
	}

	matches, err := filepath.Glob(filepath.Join(fsRepo.shardDir(id), string(id)+pattern+"."+fsRepo.ext))
	if err != nil {
		return fmt.Errorf("delete blob pattern: %w", err)
	}

	for _, filename := range matches {
		if err := os.Remove(filename); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete blob pattern: %w", err)
		}
	}

	fsRepo.log.DebugContext(ctx, "blob pattern deleted",
		logging.Group("blob", "id", id, "pattern", pattern, "count", len(matches)))

	return nil
}
