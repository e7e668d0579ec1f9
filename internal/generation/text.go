package generation

import (
	"fmt"
	"strings"

	"bethemayor/internal/domain"
	"bethemayor/internal/infra"
	"bethemayor/internal/providers/replicate"
)

// DefaultTextModel is the chat model used for lyrics.
const DefaultTextModel = "openai/gpt-5-nano"

// Message is one prior chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TextRequest asks the text model for a completion.
type TextRequest struct {
	Prompt              string    `json:"prompt"`
	SystemPrompt        string    `json:"system_prompt,omitempty"`
	Messages            []Message `json:"messages,omitempty"`
	Verbosity           string    `json:"verbosity,omitempty"`
	ImageInput          []string  `json:"image_input,omitempty"`
	ReasoningEffort     string    `json:"reasoning_effort,omitempty"`
	MaxCompletionTokens int       `json:"max_completion_tokens,omitempty"`
}

// TextCapability joins the model's token stream into one string.
func TextCapability(model string) Capability[TextRequest] {
	if model == "" {
		model = DefaultTextModel
	}
	return Capability[TextRequest]{
		Name:  "text",
		Label: "Text",
		Model: model,
		Validate: func(req TextRequest) error {
			if strings.TrimSpace(req.Prompt) == "" {
				return domain.NewValidationError("Prompt is required")
			}
			if req.Verbosity != "" && !oneOf(req.Verbosity, "low", "medium", "high") {
				return domain.NewValidationError(fmt.Sprintf("unsupported verbosity %q", req.Verbosity))
			}
			if req.ReasoningEffort != "" && !oneOf(req.ReasoningEffort, "minimal", "low", "medium", "high") {
				return domain.NewValidationError(fmt.Sprintf("unsupported reasoning_effort %q", req.ReasoningEffort))
			}
			if req.MaxCompletionTokens < 0 {
				return domain.NewValidationError("max_completion_tokens must not be negative")
			}
			return nil
		},
		BuildInput: func(req TextRequest, logger *infra.Logger) map[string]any {
			verbosity := req.Verbosity
			if verbosity == "" {
				verbosity = "medium"
			}
			effort := req.ReasoningEffort
			if effort == "" {
				effort = "minimal"
			}
			maxTokens := req.MaxCompletionTokens
			if maxTokens == 0 {
				maxTokens = 4096
			}
			messages := req.Messages
			if messages == nil {
				messages = []Message{}
			}
			images := make([]string, 0, len(req.ImageInput))
			for _, img := range req.ImageInput {
				if u := optionalMediaURL(img, "image_input", logger); u != "" {
					images = append(images, u)
				}
			}
			input := map[string]any{
				"prompt":                strings.TrimSpace(req.Prompt),
				"messages":              messages,
				"verbosity":             verbosity,
				"image_input":           images,
				"reasoning_effort":      effort,
				"max_completion_tokens": maxTokens,
			}
			if sp := strings.TrimSpace(req.SystemPrompt); sp != "" {
				input["system_prompt"] = sp
			}
			return input
		},
		Normalize: func(req TextRequest, pred *replicate.Prediction) (domain.Result, error) {
			text := strings.TrimSpace(strings.Join(pred.Outputs(), ""))
			if text == "" {
				return domain.Result{}, noOutput("text")
			}
			return domain.TextSuccess(text, map[string]any{"model": pred.Model}), nil
		},
	}
}
