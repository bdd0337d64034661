// Package storage provides MinIO-backed object storage for template header
// media samples. This is part of the platform layer and contains no business
// logic.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// PresignedURLTTL is the expiration time for presigned download URLs handed
// to the approval authority as sample media.
const PresignedURLTTL = 1 * time.Hour

// Service wraps a MinIO client scoped to the template media bucket.
type Service struct {
	client *minio.Client
	bucket string
}

// New creates a storage service from config. Returns nil when MinIO is not
// configured; callers treat a nil service as "no media storage".
func New(cfg config.StorageConfig) (*Service, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, nil
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Service{
		client: client,
		bucket: cfg.GetMinioBucketTemplateMedia(),
	}, nil
}

// EnsureBucketExists creates the template media bucket if it doesn't exist.
func (s *Service) EnsureBucketExists(ctx context.Context) error {
	if s == nil {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Upload stores an object and returns its key.
func (s *Service) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("storage not configured")
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

// PresignedGetURL returns a time-limited download URL for an object key.
func (s *Service) PresignedGetURL(ctx context.Context, key string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("storage not configured")
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, PresignedURLTTL, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}
