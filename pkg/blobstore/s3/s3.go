// Package s3 implements the blobstore.Store interface on Amazon S3 or any
// S3-compatible object store (MinIO, R2, etc).
package s3

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/bozonx/mediastore/internal/logger"
	"github.com/bozonx/mediastore/pkg/blobstore"
)

// Store implements blobstore.Store on top of an S3-compatible client.
//
// Key design: unlike a path-mirroring filesystem content store, keys here
// are content-addressed (derived from checksum+mimeType by the Upload
// Pipeline) and objects are immutable once written — there is no
// incremental/partial-write path to support.
type Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	retry     retryConfig
}

// retryConfig holds exponential backoff settings for transient S3 errors.
type retryConfig struct {
	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
}

// Config configures the S3 blob store.
type Config struct {
	Client          *s3.Client
	Bucket          string
	KeyPrefix       string
	MaxRetries      int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiplier float64
}

// NewClientFromConfig builds an S3 client from plain configuration values.
func NewClientFromConfig(ctx context.Context, endpoint, region, accessKeyID, secretAccessKey string, usePathStyle bool) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = usePathStyle
	})

	return client, nil
}

// New creates a new S3-backed blob store, verifying bucket access.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	if _, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	initialBackoff := cfg.InitialBackoff
	if initialBackoff == 0 {
		initialBackoff = 100 * time.Millisecond
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff == 0 {
		maxBackoff = 2 * time.Second
	}
	backoffMultiplier := cfg.BackoffMultiplier
	if backoffMultiplier == 0 {
		backoffMultiplier = 2.0
	}

	return &Store{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		retry: retryConfig{
			maxRetries:        maxRetries,
			initialBackoff:    initialBackoff,
			maxBackoff:        maxBackoff,
			backoffMultiplier: backoffMultiplier,
		},
	}, nil
}

func (s *Store) objectKey(key string) string {
	if s.keyPrefix != "" {
		return s.keyPrefix + key
	}
	return key
}

// withRetry retries op on transient failure using exponential backoff,
// mirroring the teacher's S3 content store retry loop.
func (s *Store) withRetry(ctx context.Context, opName, key string, op func() error) error {
	var lastErr error
	backoff := s.retry.initialBackoff

	for attempt := 0; attempt <= s.retry.maxRetries; attempt++ {
		if attempt > 0 {
			logger.WarnCtx(ctx, "retrying blob store operation",
				logger.Operation(opName), logger.Key(key), logger.Attempt(attempt), logger.MaxRetries(s.retry.maxRetries))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(
				float64(backoff)*s.retry.backoffMultiplier,
				float64(s.retry.maxBackoff),
			))
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("blob store operation %s failed after %d attempts: %w", opName, s.retry.maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	var apiErr interface{ ErrorCode() string }
	if ok := errorsAs(err, &apiErr); ok {
		switch apiErr.ErrorCode() {
		case "InternalError", "SlowDown", "RequestTimeout", "ServiceUnavailable":
			return true
		}
	}
	return false
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	return s.withRetry(ctx, "Put", key, func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(s.objectKey(key)),
			Body:          r,
			ContentLength: aws.Int64(size),
		})
		return err
	})
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, blobstore.ErrNotFound
		}
		return nil, err
	}
	return out.Body, nil
}

func (s *Store) GetRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	rangeHeader := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Range:  aws.String(rangeHeader),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, blobstore.ErrNotFound
		}
		return nil, err
	}
	return out.Body, nil
}

func (s *Store) Head(ctx context.Context, key string) (*blobstore.ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, blobstore.ErrNotFound
		}
		return nil, err
	}

	info := &blobstore.ObjectInfo{Key: key}
	if out.ContentLength != nil {
		info.SizeBytes = *out.ContentLength
	}
	if out.ETag != nil {
		info.ETag = *out.ETag
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.withRetry(ctx, "Delete", key, func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.objectKey(key)),
		})
		return err
	})
}

// DeleteBatch uses S3's batch DeleteObjects API (up to 1000 keys per call)
// and reports per-key success/failure, matching the {deletedKeys, errors}
// shape the teacher's buffered deletion queue produces one key at a time.
func (s *Store) DeleteBatch(ctx context.Context, keys []string) (*blobstore.BatchDeleteResult, error) {
	result := &blobstore.BatchDeleteResult{Errors: make(map[string]error)}
	if len(keys) == 0 {
		return result, nil
	}

	const maxBatch = 1000
	for start := 0; start < len(keys); start += maxBatch {
		end := start + maxBatch
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		objects := make([]s3types.ObjectIdentifier, len(chunk))
		for i, k := range chunk {
			objects[i] = s3types.ObjectIdentifier{Key: aws.String(s.objectKey(k))}
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3types.Delete{Objects: objects, Quiet: aws.Bool(false)},
		})
		if err != nil {
			for _, k := range chunk {
				result.Errors[k] = err
			}
			continue
		}

		deletedSet := make(map[string]bool, len(out.Deleted))
		for _, d := range out.Deleted {
			if d.Key != nil {
				deletedSet[*d.Key] = true
			}
		}
		for _, k := range chunk {
			if deletedSet[s.objectKey(k)] {
				result.Deleted = append(result.Deleted, k)
			}
		}
		for _, e := range out.Errors {
			if e.Key == nil {
				continue
			}
			for _, k := range chunk {
				if s.objectKey(k) == *e.Key {
					result.Errors[k] = fmt.Errorf("%s: %s", aws.ToString(e.Code), aws.ToString(e.Message))
				}
			}
		}
	}

	return result, nil
}

func (s *Store) Copy(ctx context.Context, srcKey, dstKey string) error {
	return s.withRetry(ctx, "Copy", dstKey, func() error {
		_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(s.bucket),
			Key:        aws.String(s.objectKey(dstKey)),
			CopySource: aws.String(s.bucket + "/" + s.objectKey(srcKey)),
		})
		return err
	})
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.objectKey(prefix)),
	})

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, trimPrefix(*obj.Key, s.keyPrefix))
			}
		}
	}

	return keys, nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

func trimPrefix(s, prefix string) string {
	if prefix != "" && len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}
