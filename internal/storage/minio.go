package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"yatube/internal/middleware"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig holds S3-compatible object storage settings.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOStore keeps images in an S3-compatible bucket.
type MinIOStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewMinIOStore creates a client. It does not contact the server.
func NewMinIOStore(cfg MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return &MinIOStore{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: fmt.Sprintf("%s://%s/%s/", scheme, strings.TrimSuffix(cfg.Endpoint, "/"), cfg.Bucket),
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (m *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", m.bucket, err)
	}
	middleware.Logger.InfoContext(ctx, "minio bucket created", slog.String("bucket", m.bucket))
	return nil
}

func (m *MinIOStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	_, err = m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		middleware.Logger.ErrorContext(ctx, "minio upload failed",
			slog.String("object_name", key),
			slog.String("bucket", m.bucket),
			slog.String("error", err.Error()),
		)
		return err
	}
	middleware.Logger.InfoContext(ctx, "minio upload success",
		slog.String("object_name", key),
		slog.Int64("size", size),
		slog.String("content_type", contentType),
	)
	return nil
}

func (m *MinIOStore) Delete(ctx context.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	return m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
}

func (m *MinIOStore) URL(key string) string {
	if key == "" {
		return ""
	}
	return m.baseURL + key
}
