package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bethemayor/internal/http/handlers"
	"bethemayor/internal/middleware"
)

// Options configures the router's middleware and static file serving.
type Options struct {
	AllowedOrigins     []string
	RateLimitPerMinute int
	// UploadDir is served under /uploads/. Empty disables it.
	UploadDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(*app.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/docs", app.OpenAPIDocs)
	r.Handle("/metrics", promhttp.HandlerFor(app.Gatherer, promhttp.HandlerOpts{}))

	if opts.UploadDir != "" {
		fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(opts.UploadDir)))
		r.Get("/uploads/*", fs.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateLimitPerMinute, time.Minute))

		r.Get("/cache", app.CacheList)
		r.Post("/cache", app.CacheSave)
		r.Delete("/cache", app.CacheClear)
		r.Delete("/cache/{key}", app.CacheDelete)

		r.Post("/generate-text", app.GenerateText)
		r.Post("/generate-music", app.GenerateMusic)
		r.Post("/generate-image", app.GenerateImage)
		r.Post("/generate-avatar", app.GenerateAvatar)
		r.Post("/generate-campaign-poster", app.GenerateCampaignPoster)
		r.Post("/generate-campaign-video", app.GenerateCampaignVideo)
		r.Post("/get-character-image", app.GetCharacterImage)
		r.Post("/generate-combined-image", app.GenerateCombinedImage)
		r.Post("/generate-video", app.GenerateVideo)
		r.Post("/caption-video", app.CaptionVideo)

		r.Post("/save-captured-image", app.SaveCapturedImage)
		r.Post("/save-recorded-video", app.SaveRecordedVideo)
		r.Post("/upload-to-replicate", app.UploadToReplicate)
		r.Post("/compose-video", app.ComposeVideo)

		r.Post("/pipeline", app.RunPipeline)
	})

	return r
}
