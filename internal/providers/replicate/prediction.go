package replicate

import (
	"encoding/json"
	"strings"
	"time"
)

// Status is the lifecycle state of a prediction.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// Terminal reports whether no further polling can change the status.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Prediction mirrors the subset of the predictions resource the service reads.
type Prediction struct {
	ID        string          `json:"id"`
	Model     string          `json:"model"`
	Version   string          `json:"version"`
	Status    Status          `json:"status"`
	Output    json.RawMessage `json:"output"`
	Error     json.RawMessage `json:"error"`
	Logs      string          `json:"logs"`
	CreatedAt *time.Time      `json:"created_at"`
	URLs      struct {
		Get    string `json:"get"`
		Cancel string `json:"cancel"`
		Stream string `json:"stream"`
	} `json:"urls"`
	Metrics struct {
		PredictTime float64 `json:"predict_time"`
	} `json:"metrics"`
}

// Outputs flattens the output field. Models return either a single string or
// an array of strings (file URLs or text tokens).
func (p *Prediction) Outputs() []string {
	if p == nil || len(p.Output) == 0 {
		return nil
	}
	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil {
		if single == "" {
			return nil
		}
		return []string{single}
	}
	var many []any
	if err := json.Unmarshal(p.Output, &many); err != nil {
		return nil
	}
	out := make([]string, 0, len(many))
	for _, item := range many {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// FirstOutput returns the first output entry, or "".
func (p *Prediction) FirstOutput() string {
	outputs := p.Outputs()
	if len(outputs) == 0 {
		return ""
	}
	return outputs[0]
}

// ErrorMessage returns the error field as text. Replicate reports errors as a
// plain string but some models return an object with a detail field.
func (p *Prediction) ErrorMessage() string {
	if p == nil || len(p.Error) == 0 || string(p.Error) == "null" {
		return ""
	}
	var msg string
	if err := json.Unmarshal(p.Error, &msg); err == nil {
		return strings.TrimSpace(msg)
	}
	var obj struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(p.Error, &obj); err == nil {
		if obj.Detail != "" {
			return obj.Detail
		}
		return obj.Message
	}
	return strings.TrimSpace(string(p.Error))
}

// queueFull detects the in-body queue-full signal that Replicate sends with a
// successful HTTP status.
func queueFull(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "queue is full")
}
