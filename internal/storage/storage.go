// Package storage persists uploaded post images.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"yatube/internal/config"
)

// ImageStore saves and removes image objects addressed by a slash-separated key.
type ImageStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	// URL returns where browsers can fetch the object.
	URL(key string) string
}

// New builds the store selected by IMAGE_STORAGE.
func New(ctx context.Context, cfg *config.Config) (ImageStore, error) {
	switch cfg.ImageStorage {
	case "", "local":
		return NewLocalStore(cfg.ImageUploadDir, cfg.MediaURL)
	case "minio":
		store, err := NewMinIOStore(MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported IMAGE_STORAGE %q", cfg.ImageStorage)
	}
}

// CleanKey rejects keys that are empty, absolute or escape the store root.
func CleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return cleaned, nil
}
