// Package blob stores opaque binary objects on the local filesystem or in an S3 bucket.
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mkrupp/vidrio/internal/domain"
)

// ErrUnknownBackend is returned when the configured backend is neither "filesystem" nor "s3".
var ErrUnknownBackend = errors.New("unknown blob backend")

const (
	BackendFileSystem = "filesystem"
	BackendS3         = "s3"
)

// Repository defines the interface for blob storage operations.
type Repository interface {
	// Lock acquires a lock on the blob with the given ID.
	// If exclusive is true, acquires a write lock, otherwise a read lock.
	// Returns a function to release the lock, and any error encountered.
	Lock(ctx context.Context, id domain.BlobID, exclusive bool) (func(), error)

	// Exists checks if a blob with the given ID exists.
	Exists(ctx context.Context, id domain.BlobID) bool

	// Store persists a blob in the repository, replacing any blob with the same ID.
	Store(ctx context.Context, blob *domain.Blob) error

	// Fetch retrieves a blob by its ID.
	// Returns domain.ErrBlobNotFound if there is none.
	Fetch(ctx context.Context, id domain.BlobID) (*domain.Blob, error)

	// Delete removes a blob with the given ID.
	// Returns domain.ErrBlobNotFound if there is none.
	Delete(ctx context.Context, id domain.BlobID) error

	// DeleteAll removes all blobs whose ID is id followed by a suffix matching pattern.
	DeleteAll(ctx context.Context, id domain.BlobID, pattern string) error
}

// RepositoryFactory is a function that creates a new Repository instance.
// Parameters:
// - name: namespace for the repository (subdirectory or key prefix)
// - ext: file extension for stored blobs
// Returns an error if initialization fails.
type RepositoryFactory func(
	ctx context.Context,
	name string,
	ext string,
) (Repository, error)

// Config selects and configures the blob backend.
type Config struct {
	// Backend is "filesystem" or "s3"
	Backend string `env:"BACKEND" default:"filesystem"`

	FileSystem FileSystemBlobRepositoryConfig `envPrefix:"FS_"`
	S3         S3BlobRepositoryConfig         `envPrefix:"S3_"`
}

// NewRepositoryFactory returns the factory of the configured backend.
func NewRepositoryFactory(ctx context.Context, cfg Config) (RepositoryFactory, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendFileSystem:
		return FileSystemBlobRepositoryFactory(cfg.FileSystem), nil
	case BackendS3:
		client, err := NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("new s3 client: %w", err)
		}

		return S3BlobRepositoryFactory(client, cfg.S3), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
