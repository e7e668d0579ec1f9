package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	"bethemayor/internal/cache"
	"bethemayor/internal/domain"
	"bethemayor/internal/infra"
)

// MediaKind selects the validation rules and cache prefix for an upload.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

const (
	DefaultMaxImageBytes int64 = 10 << 20
	DefaultMaxVideoBytes int64 = 50 << 20
)

// UploadOptions configures an Uploads service.
type UploadOptions struct {
	Files *FileStore
	// BaseURL is the public prefix the files are served under.
	BaseURL       string
	MaxImageBytes int64
	MaxVideoBytes int64
	Cache         cache.Store
	Logger        *infra.Logger
	Now           func() time.Time
}

// Uploads saves browser-captured media and records it in the cache so the UI
// can find the latest capture after a reload.
type Uploads struct {
	files    *FileStore
	baseURL  string
	maxImage int64
	maxVideo int64
	cache    cache.Store
	logger   *infra.Logger
	now      func() time.Time
}

// Saved describes a stored upload.
type Saved struct {
	URL         string
	Filename    string
	Size        int64
	ContentType string
	CacheKey    string
}

// Media is a validated upload body.
type Media struct {
	Data        []byte
	ContentType string
	Extension   string
}

func NewUploads(opts UploadOptions) (*Uploads, error) {
	if opts.Files == nil {
		return nil, fmt.Errorf("storage: file store is required")
	}
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = DefaultMaxImageBytes
	}
	if opts.MaxVideoBytes <= 0 {
		opts.MaxVideoBytes = DefaultMaxVideoBytes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Uploads{
		files:    opts.Files,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		maxImage: opts.MaxImageBytes,
		maxVideo: opts.MaxVideoBytes,
		cache:    opts.Cache,
		logger:   infra.LoggerOrDiscard(opts.Logger),
		now:      opts.Now,
	}, nil
}

// MaxBytes returns the size limit for kind.
func (u *Uploads) MaxBytes(kind MediaKind) int64 {
	if kind == MediaVideo {
		return u.maxVideo
	}
	return u.maxImage
}

// Validate sniffs data and checks it against the limits for kind. The
// declared content type of a browser upload is not trusted.
func (u *Uploads) Validate(kind MediaKind, data []byte) (Media, error) {
	if len(data) == 0 {
		return Media{}, domain.NewValidationError(fmt.Sprintf("%s file is required", titleKind(kind)))
	}
	if limit := u.MaxBytes(kind); int64(len(data)) > limit {
		return Media{}, domain.NewValidationError(fmt.Sprintf("File too large. Maximum size is %s, got %s",
			humanize.IBytes(uint64(limit)), humanize.IBytes(uint64(len(data)))))
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), string(kind)+"/") {
		article := "a"
		if kind == MediaImage {
			article = "an"
		}
		return Media{}, domain.NewValidationError(fmt.Sprintf("Invalid file type %s. Please upload %s %s file", mt.String(), article, kind))
	}
	return Media{Data: data, ContentType: mt.String(), Extension: mt.Extension()}, nil
}

// Save validates and writes an upload, then records it in the cache under
// captured-image-<ms> or recorded-video-<ms>.
func (u *Uploads) Save(ctx context.Context, kind MediaKind, originalName string, data []byte) (Saved, error) {
	media, err := u.Validate(kind, data)
	if err != nil {
		return Saved{}, err
	}

	at := u.now()
	prefix, key := cache.PrefixCapturedImage, cache.CapturedImageKey(at)
	if kind == MediaVideo {
		prefix, key = cache.PrefixRecordedVideo, cache.RecordedVideoKey(at)
	}
	filename := fmt.Sprintf("%s%d%s", prefix, at.UnixMilli(), extensionFor(originalName, media.Extension, kind))

	stored, err := u.files.Write(ctx, filename, media.Data)
	if err != nil {
		return Saved{}, err
	}
	saved := Saved{
		URL:         u.baseURL + "/" + stored,
		Filename:    stored,
		Size:        int64(len(media.Data)),
		ContentType: media.ContentType,
		CacheKey:    key,
	}
	if u.cache != nil {
		u.cache.Set(ctx, key, saved.URL, map[string]any{
			"filename":  saved.Filename,
			"timestamp": at.UnixMilli(),
			"size":      saved.Size,
			"type":      saved.ContentType,
		})
	}
	u.logger.Info().
		Str("filename", saved.Filename).
		Str("type", saved.ContentType).
		Str("size", humanize.IBytes(uint64(saved.Size))).
		Msg("storage: saved upload")
	return saved, nil
}

// extensionFor prefers the sniffed extension and falls back to the client's
// filename, then to a per-kind default.
func extensionFor(originalName, sniffed string, kind MediaKind) string {
	if sniffed != "" {
		return sniffed
	}
	if ext := strings.ToLower(filepath.Ext(originalName)); ext != "" && len(ext) <= 6 {
		return ext
	}
	if kind == MediaVideo {
		return ".webm"
	}
	return ".jpg"
}

func titleKind(kind MediaKind) string {
	if kind == MediaVideo {
		return "Video"
	}
	return "Image"
}
