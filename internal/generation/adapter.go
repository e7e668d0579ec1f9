// Package generation maps internal requests onto upstream model calls. Every
// capability (text, music, image, video, caption) is a Capability value run by
// the same generic Adapter, which handles validation, caching, retries,
// polling and result normalization.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bethemayor/internal/cache"
	"bethemayor/internal/domain"
	"bethemayor/internal/infra"
	"bethemayor/internal/providers/replicate"
)

// Predictor is the upstream transport. *replicate.Client implements it.
type Predictor interface {
	HasCredentials() bool
	CreatePrediction(ctx context.Context, model string, input map[string]any) (*replicate.Prediction, error)
	Await(ctx context.Context, pred *replicate.Prediction) (*replicate.Prediction, error)
}

// Capability configures the generic adapter for one upstream model.
type Capability[Req any] struct {
	// Name identifies the capability in logs and metrics.
	Name string
	// Label prefixes user-facing failure messages ("Video generation failed: ...").
	Label string
	Model string
	// Validate rejects a request before any network call.
	Validate func(req Req) error
	// BuildInput maps the request onto the upstream input object.
	BuildInput func(req Req, logger *infra.Logger) map[string]any
	// CacheKey fingerprints the request. Nil or "" disables caching.
	CacheKey func(req Req) string
	// Normalize turns a succeeded prediction into a result.
	Normalize func(req Req, pred *replicate.Prediction) (domain.Result, error)
}

// AdapterOptions carries the adapter's collaborators.
type AdapterOptions struct {
	Cache  cache.Store
	Logger *infra.Logger
}

// Adapter runs a Capability against a Predictor.
type Adapter[Req any] struct {
	capability Capability[Req]
	client     Predictor
	cache      cache.Store
	logger     *infra.Logger
}

// NewAdapter binds capability to client.
func NewAdapter[Req any](capability Capability[Req], client Predictor, opts AdapterOptions) *Adapter[Req] {
	if capability.Label == "" {
		capability.Label = capability.Name
	}
	logger := infra.LoggerOrDiscard(opts.Logger).With().Str("capability", capability.Name).Logger()
	return &Adapter[Req]{
		capability: capability,
		client:     client,
		cache:      opts.Cache,
		logger:     &logger,
	}
}

// Name returns the capability name.
func (a *Adapter[Req]) Name() string {
	return a.capability.Name
}

// Model returns the upstream model identifier.
func (a *Adapter[Req]) Model() string {
	return a.capability.Model
}

// Generate runs req to completion: it serves a cache hit when one exists,
// otherwise submits the prediction and polls it until it resolves.
func (a *Adapter[Req]) Generate(ctx context.Context, req Req) domain.Result {
	res := a.Submit(ctx, req)
	if res.Status != domain.ResultPending {
		return res
	}
	return a.Resume(ctx, req, res.PollURL)
}

// Submit validates req and creates the prediction. It returns a Pending result
// carrying the poll URL when the upstream has not finished within the create
// call.
func (a *Adapter[Req]) Submit(ctx context.Context, req Req) domain.Result {
	if a.capability.Validate != nil {
		if err := a.capability.Validate(req); err != nil {
			a.logger.Info().Err(err).Msg("generation: request rejected")
			return domain.Failure(err)
		}
	}

	key := a.cacheKey(req)
	if key != "" {
		if entry, ok := a.cache.Get(ctx, key); ok {
			a.logger.Info().Str("cache_key", key).Msg("generation: cache hit")
			res := domain.Success(entry.URL, entry.Metadata)
			res.Cached = true
			return res
		}
	}

	if a.client == nil || !a.client.HasCredentials() {
		return domain.Failure(domain.NewConfigurationError(domain.ErrMissingAPIToken.Error(), domain.ErrMissingAPIToken))
	}

	input := a.capability.BuildInput(req, a.logger)
	a.logger.Debug().Str("model", a.capability.Model).Interface("input", input).Msg("generation: submitting")

	pred, err := a.client.CreatePrediction(ctx, a.capability.Model, input)
	if err != nil {
		return a.fail(err)
	}
	if !pred.Status.Terminal() && pred.Status != "" {
		a.logger.Info().
			Str("prediction_id", pred.ID).
			Str("status", string(pred.Status)).
			Msg("generation: prediction pending")
		return domain.Pending(pred.URLs.Get)
	}
	if pred.Status == replicate.StatusFailed || pred.Status == replicate.StatusCanceled {
		_, err := a.client.Await(ctx, pred)
		return a.fail(err)
	}
	return a.complete(ctx, req, key, pred)
}

// Resume polls a pending prediction until it resolves.
func (a *Adapter[Req]) Resume(ctx context.Context, req Req, pollURL string) domain.Result {
	if strings.TrimSpace(pollURL) == "" {
		return domain.Failure(domain.NewUpstreamFailure(a.capability.Label+" generation returned no polling url", 0, nil))
	}
	pending := &replicate.Prediction{Status: replicate.StatusStarting}
	pending.URLs.Get = pollURL
	pred, err := a.client.Await(ctx, pending)
	if err != nil {
		return a.fail(err)
	}
	return a.complete(ctx, req, a.cacheKey(req), pred)
}

func (a *Adapter[Req]) complete(ctx context.Context, req Req, key string, pred *replicate.Prediction) domain.Result {
	res, err := a.capability.Normalize(req, pred)
	if err != nil {
		return a.fail(err)
	}
	a.logger.Info().
		Str("prediction_id", pred.ID).
		Float64("predict_time", pred.Metrics.PredictTime).
		Msg("generation: succeeded")
	if key != "" && res.ArtifactURL != "" {
		a.cache.Set(ctx, key, res.ArtifactURL, res.Metadata)
	}
	return res
}

func (a *Adapter[Req]) cacheKey(req Req) string {
	if a.cache == nil || a.capability.CacheKey == nil {
		return ""
	}
	return a.capability.CacheKey(req)
}

// fail converts err into a failed result whose message names the capability.
func (a *Adapter[Req]) fail(err error) domain.Result {
	label := a.capability.Label
	var de *domain.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		a.logger.Warn().Err(err).Msg("generation: abandoned")
		return domain.Failure(&domain.Error{Kind: domain.KindInternal, Message: label + " generation was canceled", Err: err})
	case errors.Is(err, replicate.ErrPredictionFailed) && errors.As(err, &de):
		err = &domain.Error{Kind: de.Kind, Message: fmt.Sprintf("%s generation failed: %s", label, de.Message), Status: de.Status, Err: err}
	case errors.Is(err, replicate.ErrPollLimit) && errors.As(err, &de):
		err = domain.NewTimeoutError(fmt.Sprintf("%s generation %s", label, de.Message), err)
	case domain.IsTransient(err) && errors.As(err, &de) && strings.Contains(strings.ToLower(de.Message), "queue is full"):
		err = &domain.Error{Kind: de.Kind, Message: label + " generation queue is full. Please try again later.", Status: de.Status, Err: err}
	}
	a.logger.Error().Err(err).Str("kind", string(domain.KindOf(err))).Msg("generation: failed")
	return domain.Failure(err)
}

// noOutput is returned by Normalize when a prediction succeeded without
// producing anything usable.
func noOutput(label string) error {
	return domain.NewUpstreamFailure(fmt.Sprintf("No %s generated", strings.ToLower(label)), 0, nil)
}
