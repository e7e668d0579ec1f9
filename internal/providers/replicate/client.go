// Package replicate talks to the Replicate predictions API. Calls are routed
// through a retry.Executor and errors are classified into the domain taxonomy
// so adapters never inspect HTTP details themselves.
package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"bethemayor/internal/domain"
	"bethemayor/internal/infra"
	"bethemayor/internal/retry"
)

const defaultBaseURL = "https://api.replicate.com/v1"

var (
	// ErrPredictionFailed marks predictions that ended failed or canceled.
	ErrPredictionFailed = errors.New("replicate: prediction failed")
	// ErrPollLimit marks predictions still running after the poll bound.
	ErrPollLimit = errors.New("replicate: poll limit reached")
)

// Options configures the Replicate client.
type Options struct {
	APIToken       string
	BaseURL        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Logger         *infra.Logger
	Retry          *retry.Executor
	PollInterval   time.Duration
	MaxPolls       int
	// Sleep waits between polls. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client performs HTTP calls against the Replicate API.
type Client struct {
	apiToken     string
	baseURL      string
	httpClient   *http.Client
	logger       *infra.Logger
	retry        *retry.Executor
	pollInterval time.Duration
	maxPolls     int
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewClient constructs a client with defaults for every unset option.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	logger := infra.LoggerOrDiscard(opts.Logger)
	executor := opts.Retry
	if executor == nil {
		executor = retry.New(retry.Options{Logger: logger})
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	maxPolls := opts.MaxPolls
	if maxPolls <= 0 {
		maxPolls = 60
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = retry.Sleep
	}
	return &Client{
		apiToken:     strings.TrimSpace(opts.APIToken),
		baseURL:      baseURL,
		httpClient:   httpClient,
		logger:       logger,
		retry:        executor,
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
		sleep:        sleep,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiToken != ""
}

// PollBudget is the longest a prediction is awaited.
func (c *Client) PollBudget() time.Duration {
	return c.pollInterval * time.Duration(c.maxPolls)
}

type createRequest struct {
	Version string         `json:"version,omitempty"`
	Input   map[string]any `json:"input"`
}

// CreatePrediction starts a prediction for model, which is either
// "owner/name" or "owner/name:version". The Prefer: wait header lets fast
// models finish within the create call.
func (c *Client) CreatePrediction(ctx context.Context, model string, input map[string]any) (*Prediction, error) {
	if !c.HasCredentials() {
		return nil, domain.NewConfigurationError(domain.ErrMissingAPIToken.Error(), domain.ErrMissingAPIToken)
	}
	endpoint, body, err := c.createTarget(model, input)
	if err != nil {
		return nil, err
	}

	return retry.Do(ctx, c.retry, "replicate.create "+model, func(ctx context.Context, attempt int) (*Prediction, error) {
		c.logger.Debug().Str("model", model).Int("attempt", attempt).Msg("replicate: creating prediction")
		pred, err := c.doPrediction(ctx, http.MethodPost, endpoint, body, true)
		if err != nil {
			return nil, err
		}
		if msg := pred.ErrorMessage(); queueFull(msg) {
			return nil, domain.NewTransientError(msg, http.StatusOK, 0, nil)
		}
		c.logger.Debug().
			Str("model", model).
			Str("prediction_id", pred.ID).
			Str("status", string(pred.Status)).
			Msg("replicate: prediction created")
		return pred, nil
	})
}

func (c *Client) createTarget(model string, input map[string]any) (string, []byte, error) {
	model = strings.TrimSpace(model)
	name, version, _ := strings.Cut(model, ":")
	owner, modelName, ok := strings.Cut(name, "/")
	if !ok || owner == "" || modelName == "" {
		return "", nil, domain.NewConfigurationError(fmt.Sprintf("invalid model identifier %q", model), nil)
	}
	payload := createRequest{Input: input}
	endpoint := fmt.Sprintf("%s/models/%s/%s/predictions", c.baseURL, owner, modelName)
	if version != "" {
		payload.Version = version
		endpoint = c.baseURL + "/predictions"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("replicate: encode request: %w", err)
	}
	return endpoint, body, nil
}

// GetPrediction fetches the prediction at its urls.get location.
func (c *Client) GetPrediction(ctx context.Context, getURL string) (*Prediction, error) {
	if !c.HasCredentials() {
		return nil, domain.NewConfigurationError(domain.ErrMissingAPIToken.Error(), domain.ErrMissingAPIToken)
	}
	if strings.TrimSpace(getURL) == "" {
		return nil, domain.NewUpstreamFailure("prediction has no polling url", 0, nil)
	}
	return retry.Do(ctx, c.retry, "replicate.get", func(ctx context.Context, _ int) (*Prediction, error) {
		return c.doPrediction(ctx, http.MethodGet, getURL, nil, false)
	})
}

// Await polls pred until it reaches a terminal status. A failed or canceled
// prediction yields an UpstreamFailure wrapping ErrPredictionFailed; running
// past the poll bound yields a Timeout wrapping ErrPollLimit.
func (c *Client) Await(ctx context.Context, pred *Prediction) (*Prediction, error) {
	if pred == nil {
		return nil, domain.NewUpstreamFailure("empty prediction", 0, nil)
	}
	for poll := 0; !pred.Status.Terminal(); poll++ {
		if poll >= c.maxPolls {
			c.logger.Warn().
				Str("prediction_id", pred.ID).
				Int("polls", poll).
				Msg("replicate: poll limit reached")
			return pred, domain.NewTimeoutError(fmt.Sprintf("timed out after %s", pollBudgetText(c.PollBudget())), ErrPollLimit)
		}
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return pred, err
		}
		next, err := c.GetPrediction(ctx, pred.URLs.Get)
		if err != nil {
			return pred, err
		}
		c.logger.Debug().
			Str("prediction_id", next.ID).
			Str("status", string(next.Status)).
			Int("poll", poll+1).
			Int("max_polls", c.maxPolls).
			Msg("replicate: polled prediction")
		if next.URLs.Get == "" {
			next.URLs.Get = pred.URLs.Get
		}
		pred = next
	}

	if pred.Status != StatusSucceeded {
		msg := pred.ErrorMessage()
		if msg == "" {
			msg = "Unknown error"
		}
		return pred, &domain.Error{Kind: domain.KindUpstreamFailure, Message: msg, Err: ErrPredictionFailed}
	}
	return pred, nil
}

// Run creates a prediction and awaits its completion.
func (c *Client) Run(ctx context.Context, model string, input map[string]any) (*Prediction, error) {
	pred, err := c.CreatePrediction(ctx, model, input)
	if err != nil {
		return nil, err
	}
	return c.Await(ctx, pred)
}

type fileResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URLs        struct {
		Get string `json:"get"`
	} `json:"urls"`
}

// UploadFile stores data with the files API and returns a URL that models
// accept as media input.
func (c *Client) UploadFile(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	if !c.HasCredentials() {
		return "", domain.NewConfigurationError(domain.ErrMissingAPIToken.Error(), domain.ErrMissingAPIToken)
	}
	if len(data) == 0 {
		return "", domain.NewValidationError("file is empty")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	body, boundary, err := multipartFile(filename, contentType, data)
	if err != nil {
		return "", err
	}

	return retry.Do(ctx, c.retry, "replicate.upload", func(ctx context.Context, _ int) (string, error) {
		raw, err := c.do(ctx, http.MethodPost, c.baseURL+"/files", body, "multipart/form-data; boundary="+boundary, false)
		if err != nil {
			return "", err
		}
		var file fileResponse
		if err := json.Unmarshal(raw, &file); err != nil {
			return "", domain.NewUpstreamFailure("invalid upload response", 0, err)
		}
		if file.URLs.Get == "" {
			return "", domain.NewUpstreamFailure("upload response missing url", 0, nil)
		}
		c.logger.Info().Str("file_id", file.ID).Int64("size", file.Size).Msg("replicate: file uploaded")
		return file.URLs.Get, nil
	})
}

func multipartFile(filename, contentType string, data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if filename == "" {
		filename = "upload"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="content"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("replicate: build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("replicate: build upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("replicate: build upload: %w", err)
	}
	return buf.Bytes(), writer.Boundary(), nil
}

func (c *Client) doPrediction(ctx context.Context, method, endpoint string, body []byte, wait bool) (*Prediction, error) {
	contentType := ""
	if body != nil {
		contentType = "application/json"
	}
	raw, err := c.do(ctx, method, endpoint, body, contentType, wait)
	if err != nil {
		return nil, err
	}
	var pred Prediction
	if err := json.Unmarshal(raw, &pred); err != nil {
		return nil, domain.NewUpstreamFailure("invalid prediction response", 0, err)
	}
	return &pred, nil
}

type errorResponse struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

// do sends one request and classifies the outcome. Transport failures and 429s
// are transient; other non-2xx responses are upstream failures unless their
// body carries the queue-full signal.
func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, contentType string, wait bool) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("replicate: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if wait {
		req.Header.Set("Prefer", "wait")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, domain.NewTransientError("network error contacting replicate", 0, 0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewTransientError("network error reading replicate response", resp.StatusCode, 0, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.logger.Warn().
			Str("url", endpoint).
			Dur("retry_after", retryAfter).
			Msg("replicate: rate limited")
		return nil, domain.NewTransientError(upstreamMessage(raw, "rate limited by replicate"), resp.StatusCode, retryAfter, nil)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		msg := upstreamMessage(raw, fmt.Sprintf("replicate returned status %d", resp.StatusCode))
		c.logger.Error().
			Int("status", resp.StatusCode).
			Str("url", endpoint).
			Str("message", msg).
			Msg("replicate: request failed")
		if queueFull(msg) {
			return nil, domain.NewTransientError(msg, resp.StatusCode, 0, nil)
		}
		return nil, domain.NewUpstreamFailure(msg, resp.StatusCode, nil)
	}
	return raw, nil
}

func upstreamMessage(raw []byte, fallback string) string {
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err == nil {
		for _, candidate := range []string{er.Detail, er.Error, er.Title} {
			if s := strings.TrimSpace(candidate); s != "" {
				return s
			}
		}
	}
	if s := strings.TrimSpace(string(raw)); s != "" && len(s) < 300 && !strings.HasPrefix(s, "<") {
		return s
	}
	return fallback
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func pollBudgetText(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		minutes := int(d / time.Minute)
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	return d.String()
}
