// Package storage keeps call recordings in S3-compatible object storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"voicebot/internal/config"
)

// MinIOStore wraps MinIO operations for one bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string

	// publicURL replaces the internal endpoint in returned object URLs (reverse proxy setups).
	publicURL string
}

func NewMinIOStore(cfg config.StorageConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: create minio client: %w", err)
	}
	return &MinIOStore{client: client, bucket: cfg.Bucket, publicURL: cfg.PublicURL}, nil
}

// EnsureBucket creates the bucket if needed and makes its objects publicly readable,
// so stored recording URLs stay valid without presigning.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("storage: check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("storage: create bucket: %w", err)
		}
	}

	policy := fmt.Sprintf(`{
	"Version": "2012-10-17",
	"Statement": [
		{
			"Effect": "Allow",
			"Principal": {"AWS": ["*"]},
			"Action": ["s3:GetObject"],
			"Resource": ["arn:aws:s3:::%s/recordings/*"]
		}
	]
}`, s.bucket)
	if err := s.client.SetBucketPolicy(ctx, s.bucket, policy); err != nil {
		return fmt.Errorf("storage: set bucket policy: %w", err)
	}
	return nil
}

// Put uploads an object and returns its URL.
func (s *MinIOStore) Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) (string, error) {
	if _, err := s.client.PutObject(ctx, s.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("storage: upload %s: %w", objectName, err)
	}
	return s.ObjectURL(objectName), nil
}

func (s *MinIOStore) ObjectURL(objectName string) string {
	base := s.publicURL
	if base == "" {
		base = s.client.EndpointURL().String()
	}
	return ObjectURL(base, s.bucket, objectName)
}

// Ping reports whether the bucket is reachable.
func (s *MinIOStore) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("storage: bucket %s missing", s.bucket)
	}
	return nil
}

// ObjectURL joins a path-style object URL.
func ObjectURL(base, bucket, objectName string) string {
	return strings.TrimRight(base, "/") + "/" + bucket + "/" + strings.TrimLeft(objectName, "/")
}
