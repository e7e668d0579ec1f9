package handlers

import (
	"net/http"
	"strconv"

	"bethemayor/internal/domain"
	"bethemayor/internal/generation"
	"bethemayor/internal/storage"
)

func (a *App) SaveCapturedImage(w http.ResponseWriter, r *http.Request) {
	saved, ok := a.saveUpload(w, r, storage.MediaImage, "imageFile", "Image file is required")
	if !ok {
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"imageUrl": saved.URL,
		"filename": saved.Filename,
		"cached":   false,
	})
}

func (a *App) SaveRecordedVideo(w http.ResponseWriter, r *http.Request) {
	saved, ok := a.saveUpload(w, r, storage.MediaVideo, "videoFile", "Video file is required")
	if !ok {
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"videoUrl": saved.URL,
		"filename": saved.Filename,
		"cached":   false,
	})
}

func (a *App) saveUpload(w http.ResponseWriter, r *http.Request, kind storage.MediaKind, field, missing string) (storage.Saved, bool) {
	data, name, err := formFile(w, r, field, missing, a.Uploads.MaxBytes(kind))
	if err != nil {
		a.fail(w, r, err)
		return storage.Saved{}, false
	}
	saved, err := a.Uploads.Save(r.Context(), kind, name, data)
	if err != nil {
		a.fail(w, r, err)
		return storage.Saved{}, false
	}
	return saved, true
}

// UploadToReplicate hands a local image to the upstream file store so models
// can reference it by URL.
func (a *App) UploadToReplicate(w http.ResponseWriter, r *http.Request) {
	url, ok := a.uploadRemote(w, r, storage.MediaImage, "imageFile", "Image file is required")
	if !ok {
		return
	}
	a.json(w, http.StatusOK, map[string]any{"replicateUrl": url})
}

func (a *App) uploadRemote(w http.ResponseWriter, r *http.Request, kind storage.MediaKind, field, missing string) (string, bool) {
	if a.Files == nil {
		a.fail(w, r, domain.NewConfigurationError("File uploads are not configured", domain.ErrMissingAPIToken))
		return "", false
	}
	data, name, err := formFile(w, r, field, missing, a.Uploads.MaxBytes(kind))
	if err != nil {
		a.fail(w, r, err)
		return "", false
	}
	media, err := a.Uploads.Validate(kind, data)
	if err != nil {
		a.fail(w, r, err)
		return "", false
	}
	if name == "" {
		name = string(kind) + media.Extension
	}
	url, err := a.Files.UploadFile(r.Context(), name, media.ContentType, media.Data)
	if err != nil {
		a.fail(w, r, err)
		return "", false
	}
	return url, true
}

// CaptionVideo uploads the recording and asks the vision model to describe it.
func (a *App) CaptionVideo(w http.ResponseWriter, r *http.Request) {
	media, ok := a.uploadRemote(w, r, storage.MediaVideo, "videoFile", "Video file is required")
	if !ok {
		return
	}
	prompt := formValue(r, "prompt")
	if prompt == "" {
		prompt = a.Catalog.CaptionPrompt
	}
	var maxTokens int
	if raw := formValue(r, "maxNewTokens"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			a.fail(w, r, domain.NewValidationError("maxNewTokens must be a number"))
			return
		}
		maxTokens = n
	}
	res := a.Gen.Caption.Generate(r.Context(), generation.CaptionRequest{
		Media:        media,
		Prompt:       prompt,
		MaxNewTokens: maxTokens,
	})
	if !res.Succeeded() {
		a.fail(w, r, res.Err())
		return
	}
	a.json(w, http.StatusOK, map[string]any{"caption": res.Text})
}

// ComposeVideo would mux audio into the generated clip server-side. The
// player overlays the track instead.
func (a *App) ComposeVideo(w http.ResponseWriter, r *http.Request) {
	a.fail(w, r, &domain.Error{
		Kind:    domain.KindInternal,
		Message: "Video composition is not available; play the audio alongside the video",
		Err:     domain.ErrNotImplemented,
	})
}
