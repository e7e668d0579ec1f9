package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bethemayor/internal/cache"
	"bethemayor/internal/domain"
)

var (
	pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	mp4Header = []byte("\x00\x00\x00\x18ftypisom\x00\x00\x02\x00isomiso2\x00\x00\x00\x08free")
)

func newUploads(t *testing.T, store cache.Store, at time.Time) (*Uploads, string) {
	t.Helper()
	dir := t.TempDir()
	files, err := NewFileStore(dir)
	require.NoError(t, err)
	uploads, err := NewUploads(UploadOptions{
		Files:         files,
		BaseURL:       "http://localhost:8080/uploads/",
		MaxImageBytes: 1024,
		Cache:         store,
		Now:           func() time.Time { return at },
	})
	require.NoError(t, err)
	return uploads, dir
}

func TestSaveCapturedImage(t *testing.T) {
	store := cache.NewMemoryStore(0)
	at := time.UnixMilli(1_700_000_000_123)
	uploads, dir := newUploads(t, store, at)

	saved, err := uploads.Save(context.Background(), MediaImage, "selfie.jpeg", pngHeader)
	require.NoError(t, err)

	assert.Equal(t, "captured-image-1700000000123.png", saved.Filename)
	assert.Equal(t, "http://localhost:8080/uploads/captured-image-1700000000123.png", saved.URL)
	assert.Equal(t, "image/png", saved.ContentType)
	assert.Equal(t, "captured-image-1700000000123", saved.CacheKey)

	onDisk, err := os.ReadFile(filepath.Join(dir, saved.Filename))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, onDisk)

	entry, ok := store.Get(context.Background(), saved.CacheKey)
	require.True(t, ok)
	assert.Equal(t, saved.URL, entry.URL)
	assert.Equal(t, "image/png", entry.Metadata["type"])
}

func TestSaveRecordedVideo(t *testing.T) {
	store := cache.NewMemoryStore(0)
	uploads, _ := newUploads(t, store, time.UnixMilli(42))

	saved, err := uploads.Save(context.Background(), MediaVideo, "clip.webm", mp4Header)
	require.NoError(t, err)
	assert.Equal(t, "recorded-video-42.mp4", saved.Filename)
	assert.Equal(t, "video/mp4", saved.ContentType)

	latest, ok := cache.Latest(store.GetAll(context.Background()), cache.PrefixRecordedVideo)
	require.True(t, ok)
	assert.Equal(t, saved.URL, latest.URL)
}

func TestValidateRejectsUploads(t *testing.T) {
	uploads, _ := newUploads(t, nil, time.Now())

	tests := []struct {
		name string
		kind MediaKind
		data []byte
		want string
	}{
		{name: "empty", kind: MediaImage, data: nil, want: "Image file is required"},
		{name: "too large", kind: MediaImage, data: append(append([]byte{}, pngHeader...), make([]byte, 2048)...), want: "File too large. Maximum size is 1.0 KiB, got 2.0 KiB"},
		{name: "text as image", kind: MediaImage, data: []byte("hello world"), want: "Please upload an image file"},
		{name: "image as video", kind: MediaVideo, data: pngHeader, want: "Invalid file type image/png. Please upload a video file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uploads.Validate(tt.kind, tt.data)
			require.Error(t, err)
			assert.Equal(t, domain.KindValidation, domain.KindOf(err))
			assert.Contains(t, domain.PublicMessage(err), tt.want)
		})
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	files, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "..", "../etc/passwd", "a/../../b"} {
		_, err := files.Write(context.Background(), key, []byte("x"))
		assert.Error(t, err, "key %q", key)
	}

	stored, err := files.Write(context.Background(), "/nested/./file.txt", []byte("ok"))
	require.NoError(t, err)
	assert.Equal(t, "nested/file.txt", stored)

	data, err := files.Read(context.Background(), stored)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
}
