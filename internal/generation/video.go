package generation

import (
	"strings"

	"bethemayor/internal/domain"
	"bethemayor/internal/infra"
	"bethemayor/internal/providers/replicate"
)

const (
	DefaultVideoModel         = "minimax/hailuo-02-fast"
	DefaultCampaignVideoModel = "bytedance/seedance-1-lite"

	DefaultVideoDurationS = 6
)

// VideoRequest animates a reference image. AudioURL is not sent upstream; the
// model has no audio input, so it is carried into the result for the player
// to mux client-side.
type VideoRequest struct {
	Prompt          string `json:"prompt"`
	Image           string `json:"image"`
	DurationSeconds int    `json:"duration,omitempty"`
	AudioURL        string `json:"audio,omitempty"`
}

// VideoCapability drives the image-to-video model. It always goes through
// the retry executor for queue-full responses and polls until completion.
func VideoCapability(model string) Capability[VideoRequest] {
	if model == "" {
		model = DefaultVideoModel
	}
	return Capability[VideoRequest]{
		Name:  "video",
		Label: "Video",
		Model: model,
		Validate: func(req VideoRequest) error {
			if strings.TrimSpace(req.Prompt) == "" {
				return domain.NewValidationError("Prompt and image are required for video generation")
			}
			if err := requireMediaURL(req.Image, "image"); err != nil {
				return err
			}
			if req.DurationSeconds != 0 && !oneOf(req.DurationSeconds, 6, 10) {
				return domain.NewValidationError("duration must be 6 or 10 seconds")
			}
			return nil
		},
		BuildInput: func(req VideoRequest, _ *infra.Logger) map[string]any {
			duration := req.DurationSeconds
			if duration == 0 {
				duration = DefaultVideoDurationS
			}
			return map[string]any{
				"prompt":            strings.TrimSpace(req.Prompt),
				"first_frame_image": strings.TrimSpace(req.Image),
				"duration":          duration,
				"go_fast":           true,
				"prompt_optimizer":  false,
			}
		},
		Normalize: func(req VideoRequest, pred *replicate.Prediction) (domain.Result, error) {
			url := pred.FirstOutput()
			if url == "" {
				return domain.Result{}, noOutput("video")
			}
			meta := map[string]any{"prompt": req.Prompt, "image": req.Image}
			if req.AudioURL != "" {
				meta["audio"] = req.AudioURL
			}
			return domain.Success(url, meta), nil
		},
	}
}

// CampaignVideoRequest renders a short rally clip. Zero values take the
// defaults; pointer fields distinguish "unset" from false/zero.
type CampaignVideoRequest struct {
	Prompt      string `json:"prompt"`
	FPS         int    `json:"fps,omitempty"`
	Duration    int    `json:"duration,omitempty"`
	Resolution  string `json:"resolution,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	CameraFixed *bool  `json:"camera_fixed,omitempty"`
	Seed        *int   `json:"seed,omitempty"`
	Image       string `json:"image,omitempty"`
}

// CampaignVideoCapability merges the caller's settings over the defaults.
func CampaignVideoCapability(model string) Capability[CampaignVideoRequest] {
	if model == "" {
		model = DefaultCampaignVideoModel
	}
	return Capability[CampaignVideoRequest]{
		Name:  "campaign_video",
		Label: "Campaign video",
		Model: model,
		Validate: func(req CampaignVideoRequest) error {
			if strings.TrimSpace(req.Prompt) == "" {
				return domain.NewValidationError("Prompt is required")
			}
			if req.Resolution != "" && !oneOf(req.Resolution, "480p", "720p", "1080p") {
				return domain.NewValidationError("resolution must be 480p, 720p or 1080p")
			}
			if req.AspectRatio != "" && !oneOf(req.AspectRatio, Aspect16x9, Aspect9x16, Aspect1x1, Aspect4x3, Aspect3x4) {
				return domain.NewValidationError("unsupported aspect_ratio")
			}
			if req.Duration < 0 || req.Duration > 12 {
				return domain.NewValidationError("duration must be between 1 and 12 seconds")
			}
			if req.FPS < 0 {
				return domain.NewValidationError("fps must not be negative")
			}
			if req.Image != "" {
				return requireMediaURL(req.Image, "image")
			}
			return nil
		},
		BuildInput: func(req CampaignVideoRequest, _ *infra.Logger) map[string]any {
			input := map[string]any{
				"prompt":       strings.TrimSpace(req.Prompt),
				"fps":          24,
				"duration":     5,
				"resolution":   "720p",
				"aspect_ratio": Aspect16x9,
				"camera_fixed": false,
			}
			if req.FPS > 0 {
				input["fps"] = req.FPS
			}
			if req.Duration > 0 {
				input["duration"] = req.Duration
			}
			if req.Resolution != "" {
				input["resolution"] = req.Resolution
			}
			if req.AspectRatio != "" {
				input["aspect_ratio"] = req.AspectRatio
			}
			if req.CameraFixed != nil {
				input["camera_fixed"] = *req.CameraFixed
			}
			if req.Seed != nil {
				input["seed"] = *req.Seed
			}
			if req.Image != "" {
				input["image"] = strings.TrimSpace(req.Image)
			}
			return input
		},
		Normalize: func(req CampaignVideoRequest, pred *replicate.Prediction) (domain.Result, error) {
			url := pred.FirstOutput()
			if url == "" {
				return domain.Result{}, noOutput("campaign video")
			}
			return domain.Success(url, map[string]any{"prompt": req.Prompt}), nil
		},
	}
}

const (
	DefaultCaptionModel     = "lucataco/qwen2-vl-7b-instruct"
	DefaultCaptionPrompt    = "Describe this video in detail."
	DefaultCaptionMaxTokens = 128
)

// CaptionRequest asks the vision model to describe a video.
type CaptionRequest struct {
	Media        string `json:"media"`
	Prompt       string `json:"prompt,omitempty"`
	MaxNewTokens int    `json:"max_new_tokens,omitempty"`
}

// CaptionCapability describes an uploaded video in prose.
func CaptionCapability(model string) Capability[CaptionRequest] {
	if model == "" {
		model = DefaultCaptionModel
	}
	return Capability[CaptionRequest]{
		Name:  "caption",
		Label: "Caption",
		Model: model,
		Validate: func(req CaptionRequest) error {
			if err := requireMediaURL(req.Media, "media"); err != nil {
				return err
			}
			if req.MaxNewTokens < 0 {
				return domain.NewValidationError("max_new_tokens must not be negative")
			}
			return nil
		},
		BuildInput: func(req CaptionRequest, _ *infra.Logger) map[string]any {
			prompt := strings.TrimSpace(req.Prompt)
			if prompt == "" {
				prompt = DefaultCaptionPrompt
			}
			maxTokens := req.MaxNewTokens
			if maxTokens == 0 {
				maxTokens = DefaultCaptionMaxTokens
			}
			return map[string]any{
				"media":          strings.TrimSpace(req.Media),
				"prompt":         prompt,
				"max_new_tokens": maxTokens,
			}
		},
		Normalize: func(req CaptionRequest, pred *replicate.Prediction) (domain.Result, error) {
			caption := strings.TrimSpace(strings.Join(pred.Outputs(), ""))
			if caption == "" {
				return domain.Result{}, noOutput("caption")
			}
			return domain.TextSuccess(caption, map[string]any{"media": req.Media}), nil
		},
	}
}
