package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/mkrupp/vidrio/internal/domain"
	"github.com/mkrupp/vidrio/internal/infra/logging"
)

// S3BlobRepositoryConfig holds configuration for the S3 blob repository.
// Any S3 compatible store works; set Endpoint and PathStyle for MinIO.
type S3BlobRepositoryConfig struct {
	Bucket    string `env:"BUCKET" default:"vidrio"`
	Prefix    string `env:"PREFIX" default:""`
	Region    string `env:"REGION" default:"us-east-1"`
	Endpoint  string `env:"ENDPOINT" default:""`
	AccessKey string `env:"ACCESS_KEY" default:""`
	SecretKey string `env:"SECRET_KEY" default:""`
	PathStyle bool   `env:"PATH_STYLE" default:"false"`
}

// S3API is the subset of the S3 client used by S3Repository.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

var _ S3API = (*s3.Client)(nil)

// NewS3Client builds an S3 client from cfg. Static credentials are used when an access key
// is set; otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, cfg S3BlobRepositoryConfig) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}

	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}

		o.UsePathStyle = cfg.PathStyle
	}), nil
}

// S3BlobRepositoryFactory creates a factory of S3 repositories sharing client.
func S3BlobRepositoryFactory(client S3API, cfg S3BlobRepositoryConfig) RepositoryFactory {
	locks := newKeyedLocks()

	return func(_ context.Context, name string, ext string) (Repository, error) {
		return NewS3BlobRepository(client, locks, name, ext, cfg), nil
	}
}

// NewS3BlobRepository creates an S3Repository storing objects under <prefix>/<name>/<id>.<ext>.
func NewS3BlobRepository(
	client S3API,
	locks *keyedLocks,
	name string,
	ext string,
	cfg S3BlobRepositoryConfig,
) *S3Repository {
	if locks == nil {
		locks = newKeyedLocks()
	}

	return &S3Repository{
		client: client,
		locks:  locks,
		name:   name,
		ext:    ext,
		cfg:    cfg,
		log: logging.GetLogger("repo.blob.s3_repository").With(
			logging.Group("repo", "bucket", cfg.Bucket, "prefix", cfg.Prefix, "name", name, "ext", ext),
		),
	}
}

// S3Repository implements Repository on an S3 bucket.
// Locks only hold within this process.
type S3Repository struct {
	client S3API
	locks  *keyedLocks
	name   string
	ext    string
	cfg    S3BlobRepositoryConfig
	log    logging.Logger
}

var _ Repository = (*S3Repository)(nil)

// Key returns the object key of the blob with the given ID.
func (s3Repo *S3Repository) Key(id domain.BlobID) string {
	return path.Join(s3Repo.cfg.Prefix, s3Repo.name, strings.ReplaceAll(string(id), "/", "")) + "." + s3Repo.ext
}

func (s3Repo *S3Repository) Lock(_ context.Context, id domain.BlobID, exclusive bool) (func(), error) {
	return s3Repo.locks.lock(s3Repo.Key(id), exclusive), nil
}

func (s3Repo *S3Repository) Exists(ctx context.Context, id domain.BlobID) bool {
	_, err := s3Repo.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s3Repo.cfg.Bucket),
		Key:    aws.String(s3Repo.Key(id)),
	})
	if err != nil && !isNotFound(err) {
		s3Repo.log.WarnContext(ctx, "head object failed", "error", err)
	}

	return err == nil
}

func (s3Repo *S3Repository) Store(ctx context.Context, blob *domain.Blob) (err error) {
	key := s3Repo.Key(blob.ID)

	defer func() {
		log := s3Repo.log.With(logging.Group("blob", "id", blob.ID, "key", key))
		if err != nil {
			log.ErrorContext(ctx, "blob store failed", "error", err)
		} else {
			log.DebugContext(ctx, "blob stored", "size", blob.Size())
		}
	}()

	if _, err := s3Repo.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s3Repo.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(blob.Bytes()),
		ContentLength: aws.Int64(blob.Size()),
	}); err != nil {
		return fmt.Errorf("put object: %w", err)
	}

	return nil
}

func (s3Repo *S3Repository) Fetch(ctx context.Context, id domain.BlobID) (blob *domain.Blob, err error) {
	key := s3Repo.Key(id)

	defer func() {
		log := s3Repo.log.With(logging.Group("blob", "id", id, "key", key))
		if err != nil {
			log.DebugContext(ctx, "blob fetch failed", "error", err)
		} else {
			log.DebugContext(ctx, "blob fetched")
		}
	}()

	out, err := s3Repo.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s3Repo.cfg.Bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %s", domain.ErrBlobNotFound, id)
	} else if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer out.Body.Close()

	//nolint:exhaustruct
	blob = &domain.Blob{ID: id}
	if n, err := blob.ReadFrom(out.Body); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	} else if out.ContentLength != nil && n != *out.ContentLength {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrBytesReadMismatch, *out.ContentLength, n)
	}

	return blob, nil
}

func (s3Repo *S3Repository) Delete(ctx context.Context, id domain.BlobID) (err error) {
	key := s3Repo.Key(id)

	defer func() {
		log := s3Repo.log.With(logging.Group("blob", "id", id, "key", key))
		if err != nil {
			log.ErrorContext(ctx, "blob delete failed", "error", err)
		} else {
			log.DebugContext(ctx, "blob deleted")
		}
	}()

	// DeleteObject succeeds on missing keys.
	if !s3Repo.Exists(ctx, id) {
		return fmt.Errorf("%w: %s", domain.ErrBlobNotFound, id)
	}

	return s3Repo.deleteKey(ctx, key)
}

func (s3Repo *S3Repository) DeleteAll(ctx context.Context, id domain.BlobID, pattern string) (err error) {
	prefix := strings.TrimSuffix(s3Repo.Key(id), "."+s3Repo.ext)
	glob := prefix + pattern + "." + s3Repo.ext

	defer func() {
		log := s3Repo.log.With(logging.Group("blob", "id", id, "pattern", pattern))
		if err != nil {
			log.ErrorContext(ctx, "blob delete pattern failed", "error", err)
		} else {
			log.DebugContext(ctx, "blob pattern deleted")
		}
	}()

	var token *string

	for {
		out, err := s3Repo.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s3Repo.cfg.Bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return fmt.Errorf("list objects: %w", err)
		}

		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if matched, err := path.Match(glob, key); err != nil {
				return fmt.Errorf("match: %w", err)
			} else if !matched {
				continue
			}

			if err := s3Repo.deleteKey(ctx, key); err != nil {
				return err
			}
		}

		if !aws.ToBool(out.IsTruncated) {
			return nil
		}

		token = out.NextContinuationToken
	}
}

func (s3Repo *S3Repository) deleteKey(ctx context.Context, key string) error {
	if _, err := s3Repo.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s3Repo.cfg.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}

	return nil
}

func isNotFound(err error) bool {
	var (
		noSuchKey *types.NoSuchKey
		notFound  *types.NotFound
	)

	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
