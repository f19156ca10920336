package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"yatube/internal/config"
	"yatube/internal/models"
	"yatube/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageService_Validate(t *testing.T) {
	t.Parallel()
	svc := NewImageService(newMemoryStore(), &config.Config{ImageMaxUploadSizeMB: 1})

	gifBytes := testutil.TinyGIF(t, 2, 1)
	pngBytes := testutil.TinyPNG(t, 4, 4)
	jpegBytes := testutil.TinyJPEG(t, 4, 4)
	// 5000x5000 logical screen with no pixel data.
	hugeGIFHeader := append([]byte("GIF89a"), 0x88, 0x13, 0x88, 0x13, 0x00, 0x00, 0x00)

	tests := []struct {
		name       string
		in         ImageUpload
		wantFormat string
		wantErr    bool
	}{
		{"gif", ImageUpload{Filename: "small.gif", ContentType: "image/gif", Content: gifBytes}, "gif", false},
		{"png with charset param", ImageUpload{Filename: "a.png", ContentType: "image/png; charset=binary", Content: pngBytes}, "png", false},
		{"jpeg alias", ImageUpload{Filename: "a.JPG", ContentType: "image/jpg", Content: jpegBytes}, "jpeg", false},
		{"octet-stream trusts bytes", ImageUpload{Filename: "a.png", ContentType: "application/octet-stream", Content: pngBytes}, "png", false},
		{"no declared type", ImageUpload{Content: pngBytes}, "png", false},
		{"declared gif but png bytes", ImageUpload{Filename: "a.gif", ContentType: "image/gif", Content: pngBytes}, "", true},
		{"text bytes", ImageUpload{Filename: "a.gif", ContentType: "image/gif", Content: []byte("not an image")}, "", true},
		{"truncated png", ImageUpload{Filename: "a.png", ContentType: "image/png", Content: pngBytes[:len(pngBytes)/2]}, "", true},
		{"empty", ImageUpload{Filename: "a.png", ContentType: "image/png"}, "", true},
		{"bad extension", ImageUpload{Filename: "a.exe", ContentType: "image/png", Content: pngBytes}, "", true},
		{"too large", ImageUpload{Filename: "a.png", ContentType: "image/png", Content: bytes.Repeat([]byte{0}, 1024*1024+1)}, "", true},
		{"dimensions too large", ImageUpload{Filename: "huge.gif", ContentType: "image/gif", Content: hugeGIFHeader}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			img, err := svc.Validate(&in)
			if tt.wantErr {
				requireFieldError(t, err, "image")
				assert.Nil(t, img)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFormat, img.Format)
			assert.Positive(t, img.Width)
			assert.Positive(t, img.Height)
		})
	}
}

func TestImageService_Save(t *testing.T) {
	t.Parallel()
	store := newMemoryStore()
	svc := NewImageService(store, nil)

	jpeg, err := svc.Validate(&ImageUpload{Filename: "a.jpeg", ContentType: "image/jpeg", Content: testutil.TinyJPEG(t, 2, 2)})
	require.NoError(t, err)
	key, err := svc.Save(context.Background(), jpeg)
	require.NoError(t, err)
	assert.Regexp(t, `^posts/.+\.jpg$`, key)
	assert.Equal(t, "/media/"+key, svc.URL(key))
	assert.Equal(t, 1, store.len())

	svc.Discard(context.Background(), key)
	assert.Equal(t, 0, store.len())

	png, err := svc.Validate(&ImageUpload{Content: testutil.TinyPNG(t, 1, 1)})
	require.NoError(t, err)
	store.putErr = errors.New("disk full")
	_, err = svc.Save(context.Background(), png)
	requireAppError(t, err, models.CodeInternal)

	assert.Equal(t, "", svc.URL(""))
	var nilSvc *ImageService
	assert.Equal(t, "", nilSvc.URL("posts/a.png"))
}
