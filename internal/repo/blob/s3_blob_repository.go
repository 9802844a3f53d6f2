package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/gabriel-vasile/mimetype"

	"github.com/mkrupp/mediapipe/internal/domain"
	"github.com/mkrupp/mediapipe/internal/infra/logging"
	"github.com/mkrupp/mediapipe/internal/infra/metrics"
)

// ErrS3NotConfigured is returned when the S3 repository lacks a bucket.
var ErrS3NotConfigured = errors.New("s3 bucket is not configured")

// S3BlobRepositoryConfig holds configuration for the S3-compatible blob repository.
type S3BlobRepositoryConfig struct {
	Endpoint        string `env:"ENDPOINT" default:""`
	Region          string `env:"REGION" default:"us-east-1"`
	Bucket          string `env:"BUCKET" default:""`
	AccessKeyID     string `env:"ACCESS_KEY_ID" default:""`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY" default:""`
	UsePathStyle    bool   `env:"USE_PATH_STYLE" default:"true"`
}

// S3API is the subset of the S3 client used by S3Repository.
type S3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Repository implements Repository on an S3-compatible bucket.
// Keys are stored below an optional prefix. S3 offers no locking, so Lock
// only serializes callers within this process.
type S3Repository struct {
	client S3API
	bucket string
	prefix string
	locks  *MemoryRepository
	log    logging.Logger
}

var _ Repository = (*S3Repository)(nil)

// S3BlobRepositoryFactory creates a factory function returning S3 repositories
// that share one client and differ by key prefix.
func S3BlobRepositoryFactory(cfg S3BlobRepositoryConfig) RepositoryFactory {
	return func(ctx context.Context, name string) (Repository, error) {
		client, err := NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}

		return NewS3Repository(client, cfg.Bucket, name), nil
	}
}

// NewS3Client builds an S3 client from static credentials, or from the
// default credential chain when no access key is configured.
func NewS3Client(ctx context.Context, cfg S3BlobRepositoryConfig) (*s3.Client, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, ErrS3NotConfigured
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle

		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// NewS3Repository creates an S3Repository storing keys below prefix.
func NewS3Repository(client S3API, bucket string, prefix string) *S3Repository {
	prefix = strings.Trim(prefix, "/")

	return &S3Repository{
		client: client,
		bucket: bucket,
		prefix: prefix,
		locks:  NewMemoryRepository(),
		log: logging.GetLogger("repo.blob.s3_repository").With(
			logging.Group("repo", "bucket", bucket, "prefix", prefix),
		),
	}
}

func (s3Repo *S3Repository) objectKey(id domain.BlobID) (string, error) {
	key := domain.NormalizeBlobID(string(id))
	if key == "" || key == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, id)
	}

	if s3Repo.prefix == "" {
		return string(key), nil
	}

	return path.Join(s3Repo.prefix, string(key)), nil
}

func (s3Repo *S3Repository) Lock(ctx context.Context, id domain.BlobID, exclusive bool) (func(), error) {
	return s3Repo.locks.Lock(ctx, id, exclusive)
}

func (s3Repo *S3Repository) Exists(ctx context.Context, id domain.BlobID) (exists bool, err error) {
	done := metrics.TimeStorageOperation("s3", "head")
	defer func() { done(err) }()

	key, err := s3Repo.objectKey(id)
	if err != nil {
		return false, err
	}

	_, err = s3Repo.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s3Repo.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}

		return false, fmt.Errorf("head object: %w", err)
	}

	return true, nil
}

func (s3Repo *S3Repository) Get(ctx context.Context, id domain.BlobID, force bool) (*domain.Blob, error) {
	if _, err := s3Repo.objectKey(id); err != nil {
		return nil, err
	}

	key := domain.NormalizeBlobID(string(id))

	if !force {
		exists, err := s3Repo.Exists(ctx, key)
		if err != nil {
			return nil, err
		}

		if !exists {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
		}
	}

	//nolint:exhaustruct
	return &domain.Blob{ID: key}, nil
}

func (s3Repo *S3Repository) Store(ctx context.Context, blob *domain.Blob) (err error) {
	done := metrics.TimeStorageOperation("s3", "put")
	defer func() { done(err) }()

	key, err := s3Repo.objectKey(blob.ID)
	if err != nil {
		return err
	}

	defer func() {
		log := s3Repo.log.With(logging.Group("blob", "id", blob.ID, "key", key))
		if err != nil {
			log.ErrorContext(ctx, "blob store failed", "error", err)
		} else {
			log.DebugContext(ctx, "blob stored", "size", blob.Size())
		}
	}()

	_, err = s3Repo.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s3Repo.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(blob.Body),
		ContentLength: aws.Int64(blob.Size()),
		ContentType:   aws.String(mimetype.Detect(blob.Body).String()),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}

	return nil
}

func (s3Repo *S3Repository) Fetch(ctx context.Context, id domain.BlobID) (blob *domain.Blob, err error) {
	done := metrics.TimeStorageOperation("s3", "get")
	defer func() { done(err) }()

	key, err := s3Repo.objectKey(id)
	if err != nil {
		return nil, err
	}

	out, err := s3Repo.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s3Repo.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, id)
		}

		return nil, fmt.Errorf("get object: %w", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}

	return domain.NewBlob(domain.NormalizeBlobID(string(id)), body), nil
}

func (s3Repo *S3Repository) Delete(ctx context.Context, id domain.BlobID) (err error) {
	done := metrics.TimeStorageOperation("s3", "delete")
	defer func() { done(err) }()

	key, err := s3Repo.objectKey(id)
	if err != nil {
		return err
	}

	// DeleteObject succeeds for absent keys
	if _, err := s3Repo.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s3Repo.bucket),
		Key:    aws.String(key),
	}); err != nil && !isS3NotFound(err) {
		return fmt.Errorf("delete object: %w", err)
	}

	return nil
}

func (s3Repo *S3Repository) DeleteAll(ctx context.Context, prefix domain.BlobID, pattern string) error {
	relPrefix := domain.NormalizeBlobID(string(prefix))
	if strings.HasSuffix(string(prefix), "/") {
		relPrefix += "/"
	}

	listPrefix := string(relPrefix)
	if s3Repo.prefix != "" {
		listPrefix = s3Repo.prefix + "/" + listPrefix
	}

	paginator := s3.NewListObjectsV2Paginator(s3Repo.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s3Repo.bucket),
		Prefix: aws.String(listPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list objects: %w", err)
		}

		for _, object := range page.Contents {
			key := domain.BlobID(aws.ToString(object.Key))
			if s3Repo.prefix != "" {
				key = domain.BlobID(strings.TrimPrefix(string(key), s3Repo.prefix+"/"))
			}

			if !matchKey(key, relPrefix, pattern) {
				continue
			}

			if err := s3Repo.Delete(ctx, key); err != nil {
				return err
			}
		}
	}

	return nil
}

func isS3NotFound(err error) bool {
	var (
		noSuchKey *types.NoSuchKey
		notFound  *types.NotFound
		respErr   *smithyhttp.ResponseError
	)

	switch {
	case errors.As(err, &noSuchKey), errors.As(err, &notFound):
		return true
	case errors.As(err, &respErr):
		return respErr.HTTPStatusCode() == http.StatusNotFound
	default:
		return false
	}
}
