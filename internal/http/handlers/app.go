package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"

	"bethemayor/internal/cache"
	"bethemayor/internal/catalog"
	"bethemayor/internal/domain"
	"bethemayor/internal/generation"
	"bethemayor/internal/infra"
	"bethemayor/internal/middleware"
	"bethemayor/internal/pipeline"
	"bethemayor/internal/storage"
)

// maxJSONBody bounds JSON request bodies; media goes through multipart forms.
const maxJSONBody = 1 << 20

// FileUploader turns local bytes into a URL the upstream can fetch.
// *replicate.Client implements it.
type FileUploader interface {
	UploadFile(ctx context.Context, filename, contentType string, data []byte) (string, error)
}

// App carries the handler dependencies.
type App struct {
	Gen      *generation.Service
	Catalog  *catalog.Catalog
	Cache    cache.Store
	Uploads  *storage.Uploads
	Files    FileUploader
	Pipeline *pipeline.Orchestrator
	Gatherer prometheus.Gatherer
	Logger   *infra.Logger
}

// NewApp validates the required dependencies.
func NewApp(app App) (*App, error) {
	switch {
	case app.Gen == nil:
		return nil, errors.New("handlers: generation service is required")
	case app.Catalog == nil:
		return nil, errors.New("handlers: catalog is required")
	case app.Cache == nil:
		return nil, errors.New("handlers: cache store is required")
	case app.Uploads == nil:
		return nil, errors.New("handlers: uploads are required")
	case app.Pipeline == nil:
		return nil, errors.New("handlers: pipeline is required")
	}
	app.Logger = infra.LoggerOrDiscard(app.Logger)
	if app.Gatherer == nil {
		app.Gatherer = prometheus.NewRegistry()
	}
	return &app, nil
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]string{"error": message, "code": kind})
}

// fail writes err with the status its kind maps to.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	kind := string(domain.KindOf(err))
	switch {
	case errors.Is(err, domain.ErrNotImplemented):
		kind = "not_implemented"
	case errors.Is(err, domain.ErrNotFound):
		kind = "not_found"
	}
	event := a.Logger.Warn()
	if status >= http.StatusInternalServerError {
		event = a.Logger.Error()
	}
	event.Err(err).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg("http: request failed")
	a.error(w, status, kind, domain.PublicMessage(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindTransientUpstream:
		return http.StatusServiceUnavailable
	case domain.KindUpstreamFailure:
		return http.StatusBadGateway
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return domain.NewValidationError("invalid payload")
	}
	return nil
}

// formFile reads one multipart file part, bounded by limit bytes. A missing
// part is a validation error named after the field's purpose.
func formFile(w http.ResponseWriter, r *http.Request, field, missing string, limit int64) ([]byte, string, error) {
	// Leave room for the other parts on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, limit+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", domain.NewValidationError(fmt.Sprintf("File too large. Maximum size is %s", humanize.IBytes(uint64(limit))))
		}
		return nil, "", domain.NewValidationError("invalid multipart form")
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", domain.NewValidationError(missing)
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", field, err)
	}
	return data, header.Filename, nil
}

// formValue returns a form value, or "" when the request is not a form.
func formValue(r *http.Request, name string) string {
	return strings.TrimSpace(r.FormValue(name))
}
