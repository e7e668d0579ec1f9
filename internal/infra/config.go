package infra

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"development"`
	Port   string `env:"PORT" envDefault:"8080"`

	ReplicateAPIKey  string        `env:"REPLICATE_API_KEY"`
	ReplicateBaseURL string        `env:"REPLICATE_BASE_URL" envDefault:"https://api.replicate.com/v1"`
	UpstreamTimeout  time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"120s"`

	TextModel          string `env:"TEXT_MODEL" envDefault:"openai/gpt-5-nano"`
	MusicModel         string `env:"MUSIC_MODEL" envDefault:"minimax/music-01"`
	ImageModel         string `env:"IMAGE_MODEL" envDefault:"black-forest-labs/flux-kontext-pro"`
	VideoModel         string `env:"VIDEO_MODEL" envDefault:"minimax/hailuo-02-fast"`
	CampaignVideoModel string `env:"CAMPAIGN_VIDEO_MODEL" envDefault:"bytedance/seedance-1-lite"`
	CaptionModel       string `env:"CAPTION_MODEL" envDefault:"lucataco/qwen2-vl-7b-instruct"`

	CacheFile string        `env:"CACHE_FILE" envDefault:"cache/generated-content.json"`
	CacheTTL  time.Duration `env:"CACHE_TTL" envDefault:"24h"`

	UploadDir           string `env:"UPLOAD_DIR" envDefault:"uploads"`
	StorageBaseURL      string `env:"STORAGE_BASE_URL"`
	UploadMaxImageBytes int64  `env:"UPLOAD_MAX_IMAGE_BYTES" envDefault:"10485760"`
	UploadMaxVideoBytes int64  `env:"UPLOAD_MAX_VIDEO_BYTES" envDefault:"52428800"`

	RetryMaxAttempts  int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryBaseDelay    time.Duration `env:"RETRY_BASE_DELAY" envDefault:"1s"`
	PollInterval      time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
	PollMaxAttempts   int           `env:"POLL_MAX_ATTEMPTS" envDefault:"60"`
	PipelineStepDelay time.Duration `env:"PIPELINE_STEP_DELAY" envDefault:"2s"`

	AllowedOrigins   []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	HTTPReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	// HTTPWriteTimeout bounds the generate endpoints. The pipeline stream
	// clears it and runs until the pipeline or the client finishes.
	HTTPWriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"10m"`
	HTTPIdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	RateLimitPerMin  int           `env:"RATE_LIMIT_PER_MINUTE" envDefault:"30"`
}

// LoadConfig parses configuration from the environment and applies derived defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ReplicateAPIKey = strings.TrimSpace(cfg.ReplicateAPIKey)
	cfg.ReplicateBaseURL = strings.TrimRight(strings.TrimSpace(cfg.ReplicateBaseURL), "/")
	if strings.TrimSpace(cfg.StorageBaseURL) == "" {
		cfg.StorageBaseURL = fmt.Sprintf("http://localhost:%s/uploads", cfg.Port)
	}
	cfg.StorageBaseURL = strings.TrimRight(cfg.StorageBaseURL, "/")
	if _, err := url.ParseRequestURI(cfg.StorageBaseURL); err != nil {
		return nil, fmt.Errorf("STORAGE_BASE_URL is invalid: %w", err)
	}

	if cfg.RetryMaxAttempts < 1 {
		return nil, fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.PollMaxAttempts < 1 {
		return nil, fmt.Errorf("POLL_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("CACHE_TTL must be positive")
	}

	origins := cfg.AllowedOrigins[:0]
	for _, origin := range cfg.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	cfg.AllowedOrigins = origins

	return cfg, nil
}

// HasReplicateCredentials reports whether generation calls can be made.
func (c *Config) HasReplicateCredentials() bool {
	return c != nil && c.ReplicateAPIKey != ""
}
