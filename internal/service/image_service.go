package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"log/slog"
	"mime"
	"path/filepath"
	"slices"
	"strings"

	"yatube/internal/config"
	"yatube/internal/middleware"
	"yatube/internal/models"
	"yatube/internal/observability"
	"yatube/internal/storage"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	DefaultImageMaxUploadSizeMB = 5
	// MaxImagePixels bounds width*height before a full decode is attempted.
	MaxImagePixels = 12_000_000
	imageKeyPrefix = "posts/"
)

const invalidImageMessage = "Upload a valid image. The file you uploaded was either not an image or a corrupted image."

type imageFormat struct {
	mime       string
	extensions []string
}

var imageFormats = map[string]imageFormat{
	"gif":  {mime: "image/gif", extensions: []string{".gif"}},
	"png":  {mime: "image/png", extensions: []string{".png"}},
	"jpeg": {mime: "image/jpeg", extensions: []string{".jpg", ".jpeg", ".jpe", ".jfif"}},
	"webp": {mime: "image/webp", extensions: []string{".webp"}},
}

// ImageUpload is a file received from a post form.
type ImageUpload struct {
	Filename    string
	ContentType string
	Content     []byte
}

// CheckedImage is an upload that passed Validate and is ready to store.
type CheckedImage struct {
	Format string
	Width  int
	Height int

	content []byte
	info    imageFormat
}

// ImageService validates uploaded pictures and hands them to the configured store.
type ImageService struct {
	store              storage.ImageStore
	maxUploadSizeBytes int64
}

func NewImageService(store storage.ImageStore, cfg *config.Config) *ImageService {
	maxUploadSizeMB := DefaultImageMaxUploadSizeMB
	if cfg != nil && cfg.ImageMaxUploadSizeMB > 0 {
		maxUploadSizeMB = cfg.ImageMaxUploadSizeMB
	}
	return &ImageService{
		store:              store,
		maxUploadSizeBytes: int64(maxUploadSizeMB) * 1024 * 1024,
	}
}

// Validate checks that the upload decodes as a supported image whose bytes
// agree with the declared content type and file extension. The image is
// decoded at most once, and only after its header passed the size checks.
func (s *ImageService) Validate(in *ImageUpload) (*CheckedImage, error) {
	img, err := s.validate(in)
	if err != nil {
		observability.ImageUploads.WithLabelValues("rejected").Inc()
		return nil, err
	}
	return img, nil
}

func (s *ImageService) validate(in *ImageUpload) (*CheckedImage, error) {
	if len(in.Content) == 0 {
		return nil, models.NewFieldError("image", "The submitted file is empty.")
	}
	if int64(len(in.Content)) > s.maxUploadSizeBytes {
		return nil, models.NewFieldError("image", fmt.Sprintf("File too large (max %dMB)", s.maxUploadSizeBytes/(1024*1024)))
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(in.Content))
	if err != nil {
		return nil, models.NewFieldError("image", invalidImageMessage)
	}
	info, ok := imageFormats[format]
	if !ok {
		return nil, models.NewFieldError("image", invalidImageMessage)
	}

	if declared := normalizeContentType(in.ContentType); declared != "" && declared != "application/octet-stream" {
		if declared != info.mime {
			return nil, models.NewFieldError("image", fmt.Sprintf("Declared content type %q does not match the uploaded %s image", declared, format))
		}
	}
	if ext := strings.ToLower(filepath.Ext(in.Filename)); ext != "" && !isImageExtension(ext) {
		return nil, models.NewFieldError("image", fmt.Sprintf("File extension %q is not allowed.", ext))
	}

	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return nil, models.NewFieldError("image", "Image dimensions are out of range")
	}
	if _, _, err := image.Decode(bytes.NewReader(in.Content)); err != nil {
		return nil, models.NewFieldError("image", invalidImageMessage)
	}

	return &CheckedImage{
		Format:  format,
		Width:   cfg.Width,
		Height:  cfg.Height,
		content: in.Content,
		info:    info,
	}, nil
}

// Save stores a validated image under a fresh key.
func (s *ImageService) Save(ctx context.Context, img *CheckedImage) (string, error) {
	ctx, span := observability.StartSpan(ctx, "service", "ImageService.Save")
	key := imageKeyPrefix + uuid.NewString() + img.info.extensions[0]
	if err := s.store.Put(ctx, key, bytes.NewReader(img.content), int64(len(img.content)), img.info.mime); err != nil {
		observability.ImageUploads.WithLabelValues("failed").Inc()
		observability.EndSpan(span, err)
		return "", models.NewInternalError(err)
	}

	observability.ImageUploads.WithLabelValues("stored").Inc()
	observability.EndSpan(span, nil)
	return key, nil
}

// Discard removes a stored image. Failures are logged only.
func (s *ImageService) Discard(ctx context.Context, key string) {
	if key == "" || s == nil || s.store == nil {
		return
	}
	if err := s.store.Delete(ctx, key); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to delete image",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// URL resolves a storage key to a public address.
func (s *ImageService) URL(key string) string {
	if key == "" || s == nil || s.store == nil {
		return ""
	}
	return s.store.URL(key)
}

func normalizeContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mediaType {
	case "image/jpg", "image/pjpeg":
		return "image/jpeg"
	case "image/x-png":
		return "image/png"
	}
	return mediaType
}

func isImageExtension(ext string) bool {
	for _, f := range imageFormats {
		if slices.Contains(f.extensions, ext) {
			return true
		}
	}
	return false
}
