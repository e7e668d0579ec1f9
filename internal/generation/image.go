package generation

import (
	"fmt"
	"strings"

	"bethemayor/internal/cache"
	"bethemayor/internal/domain"
	"bethemayor/internal/infra"
	"bethemayor/internal/providers/replicate"
)

const DefaultImageModel = "black-forest-labs/flux-kontext-pro"

// Aspect ratios and output formats accepted by the image model.
const (
	AspectMatchInput = "match_input_image"
	Aspect1x1        = "1:1"
	Aspect16x9       = "16:9"
	Aspect9x16       = "9:16"
	Aspect4x3        = "4:3"
	Aspect3x4        = "3:4"

	FormatJPG  = "jpg"
	FormatPNG  = "png"
	FormatWEBP = "webp"

	DefaultSafetyTolerance = 2
	maxSafetyTolerance     = 6
)

var aspectRatios = []string{AspectMatchInput, Aspect1x1, Aspect16x9, Aspect9x16, Aspect4x3, Aspect3x4}

// ImageRequest asks the image model for one picture, optionally editing a
// reference image.
type ImageRequest struct {
	Prompt           string `json:"prompt"`
	InputImage       string `json:"input_image,omitempty"`
	AspectRatio      string `json:"aspect_ratio,omitempty"`
	OutputFormat     string `json:"output_format,omitempty"`
	SafetyTolerance  *int   `json:"safety_tolerance,omitempty"`
	PromptUpsampling bool   `json:"prompt_upsampling,omitempty"`
}

func validateImage(req ImageRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return domain.NewValidationError("Prompt is required")
	}
	if req.AspectRatio != "" && !oneOf(req.AspectRatio, aspectRatios...) {
		return domain.NewValidationError(fmt.Sprintf("aspect_ratio must be one of %s", strings.Join(aspectRatios, ", ")))
	}
	if req.OutputFormat != "" && !oneOf(req.OutputFormat, FormatJPG, FormatPNG, FormatWEBP) {
		return domain.NewValidationError("output_format must be one of jpg, png, webp")
	}
	if req.SafetyTolerance != nil && (*req.SafetyTolerance < 0 || *req.SafetyTolerance > maxSafetyTolerance) {
		return domain.NewValidationError("safety_tolerance must be between 0 and 6")
	}
	return nil
}

// buildImageInput drops a malformed reference image instead of failing, and
// falls back to a square frame when the ratio was meant to follow that image.
func buildImageInput(req ImageRequest, logger *infra.Logger) map[string]any {
	inputImage := optionalMediaURL(req.InputImage, "input_image", logger)
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = AspectMatchInput
	}
	if aspect == AspectMatchInput && inputImage == "" {
		aspect = Aspect1x1
	}
	format := req.OutputFormat
	if format == "" {
		format = FormatJPG
	}
	tolerance := DefaultSafetyTolerance
	if req.SafetyTolerance != nil {
		tolerance = *req.SafetyTolerance
	}
	input := map[string]any{
		"prompt":            strings.TrimSpace(req.Prompt),
		"aspect_ratio":      aspect,
		"output_format":     format,
		"safety_tolerance":  tolerance,
		"prompt_upsampling": req.PromptUpsampling,
	}
	if inputImage != "" {
		input["input_image"] = inputImage
	}
	return input
}

func normalizeImage(label string) func(ImageRequest, *replicate.Prediction) (domain.Result, error) {
	return func(req ImageRequest, pred *replicate.Prediction) (domain.Result, error) {
		url := pred.FirstOutput()
		if url == "" {
			return domain.Result{}, noOutput(label)
		}
		return domain.Success(url, map[string]any{"prompt": req.Prompt}), nil
	}
}

// ImageCapability generates or edits a single image.
func ImageCapability(model string) Capability[ImageRequest] {
	if model == "" {
		model = DefaultImageModel
	}
	return Capability[ImageRequest]{
		Name:       "image",
		Label:      "Image",
		Model:      model,
		Validate:   validateImage,
		BuildInput: buildImageInput,
		Normalize:  normalizeImage("image"),
	}
}

// CharacterImageRequest asks for a widescreen portrait of a named character.
type CharacterImageRequest struct {
	CharacterName string `json:"characterName"`
	Prompt        string `json:"characterPrompt"`
}

func (r CharacterImageRequest) image() ImageRequest {
	return ImageRequest{Prompt: r.Prompt, AspectRatio: Aspect16x9, OutputFormat: FormatJPG}
}

// CharacterImageCapability renders a character portrait at 16:9, cached per
// character name.
func CharacterImageCapability(model string) Capability[CharacterImageRequest] {
	if model == "" {
		model = DefaultImageModel
	}
	return Capability[CharacterImageRequest]{
		Name:  "character_image",
		Label: "Character image",
		Model: model,
		Validate: func(req CharacterImageRequest) error {
			if strings.TrimSpace(req.CharacterName) == "" {
				return domain.NewValidationError("Character name is required")
			}
			return validateImage(req.image())
		},
		CacheKey: func(req CharacterImageRequest) string {
			return cache.CharacterImageKey(req.CharacterName)
		},
		BuildInput: func(req CharacterImageRequest, logger *infra.Logger) map[string]any {
			return buildImageInput(req.image(), logger)
		},
		Normalize: func(req CharacterImageRequest, pred *replicate.Prediction) (domain.Result, error) {
			url := pred.FirstOutput()
			if url == "" {
				return domain.Result{}, noOutput("character image")
			}
			return domain.Success(url, map[string]any{
				"characterName":   req.CharacterName,
				"characterPrompt": req.Prompt,
			}), nil
		},
	}
}
