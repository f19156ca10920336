package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"yatube/internal/middleware"
)

// LocalStore keeps images on the local filesystem under Root.
type LocalStore struct {
	Root     string
	mediaURL string
}

// NewLocalStore creates root if needed.
func NewLocalStore(root, mediaURL string) (*LocalStore, error) {
	if root == "" {
		root = "media"
	}
	if mediaURL == "" {
		mediaURL = "/media/"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{Root: root, mediaURL: mediaURL}, nil
}

func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, size int64, _ string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	dst := filepath.Join(s.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return err
	}
	written, err := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && size >= 0 && written != size {
		err = fmt.Errorf("short write: %d of %d bytes", written, size)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}

	middleware.Logger.DebugContext(ctx, "image stored", slog.String("key", key), slog.Int64("size", written))
	return nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.Root, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *LocalStore) URL(key string) string {
	if key == "" {
		return ""
	}
	return s.mediaURL + key
}
