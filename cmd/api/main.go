package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"bethemayor/internal/cache"
	"bethemayor/internal/catalog"
	"bethemayor/internal/generation"
	"bethemayor/internal/http/handlers"
	httpapi "bethemayor/internal/http/httpapi"
	"bethemayor/internal/infra"
	"bethemayor/internal/pipeline"
	"bethemayor/internal/providers/replicate"
	"bethemayor/internal/retry"
	"bethemayor/internal/storage"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	if !cfg.HasReplicateCredentials() {
		logger.Warn().Msg("REPLICATE_API_KEY is not set; generation endpoints will fail")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := pipeline.NewPrometheusObserver("bethemayor", registry)

	store, err := cache.NewFileStore(cache.FileOptions{
		Path:     cfg.CacheFile,
		TTL:      cfg.CacheTTL,
		Logger:   &logger,
		OnLookup: metrics.ObserveCacheLookup,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open cache")
	}

	executor := retry.New(retry.Options{
		Policy: retry.Policy{
			MaxAttempts: cfg.RetryMaxAttempts,
			Backoff:     retry.ExponentialBackoff{BaseDelay: cfg.RetryBaseDelay},
		},
		Logger:  &logger,
		OnRetry: metrics.ObserveRetry,
	})
	client, err := replicate.NewClient(replicate.Options{
		APIToken:       cfg.ReplicateAPIKey,
		BaseURL:        cfg.ReplicateBaseURL,
		RequestTimeout: cfg.UpstreamTimeout,
		Logger:         &logger,
		Retry:          executor,
		PollInterval:   cfg.PollInterval,
		MaxPolls:       cfg.PollMaxAttempts,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build replicate client")
	}

	gen := generation.NewService(generation.ServiceOptions{
		Client: client,
		Cache:  store,
		Logger: &logger,
		Models: generation.ModelsFromConfig(cfg),
	})

	cat, err := catalog.Default()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load catalog")
	}

	files, err := storage.NewFileStore(cfg.UploadDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare upload directory")
	}
	uploads, err := storage.NewUploads(storage.UploadOptions{
		Files:         files,
		BaseURL:       cfg.StorageBaseURL,
		MaxImageBytes: cfg.UploadMaxImageBytes,
		MaxVideoBytes: cfg.UploadMaxVideoBytes,
		Cache:         store,
		Logger:        &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure uploads")
	}

	orch, err := pipeline.New(pipeline.Options{
		Generators: pipeline.GeneratorsFrom(gen),
		Catalog:    cat,
		Cache:      store,
		Observer:   pipeline.MultiObserver{metrics, pipeline.NewLogObserver(&logger)},
		Logger:     &logger,
		StepDelay:  cfg.PipelineStepDelay,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build pipeline")
	}

	app, err := handlers.NewApp(handlers.App{
		Gen:      gen,
		Catalog:  cat,
		Cache:    store,
		Uploads:  uploads,
		Files:    client,
		Pipeline: orch,
		Gatherer: registry,
		Logger:   &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build handlers")
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMin,
		UploadDir:          files.BasePath(),
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	// In-flight pipeline streams get a bounded window to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
