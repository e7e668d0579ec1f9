// Package retry runs outbound calls under a bounded exponential backoff. Every
// upstream request made by the generation adapters goes through an Executor.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"bethemayor/internal/domain"
	"bethemayor/internal/infra"
)

// ErrExhausted is joined into the error returned once all attempts failed.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Backoff determines the wait before the next attempt. attempt is 1 for the
// first retry, 2 for the second and so on.
type Backoff interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff waits BaseDelay * 2^attempt, capped at MaxDelay when set.
type ExponentialBackoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func (b ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := time.Duration(float64(b.BaseDelay) * math.Pow(2, float64(attempt)))
	if b.MaxDelay > 0 && delay > b.MaxDelay {
		return b.MaxDelay
	}
	return delay
}

// Policy bounds an Executor.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
	// IsRetryable reports whether err is worth another attempt. Defaults to
	// domain.IsTransient.
	IsRetryable func(error) bool
}

// DefaultPolicy retries transient upstream errors three times, waiting 2s and
// then 4s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     ExponentialBackoff{BaseDelay: time.Second},
		IsRetryable: domain.IsTransient,
	}
}

// Event describes a scheduled retry.
type Event struct {
	Operation string
	Attempt   int // the attempt that failed
	Err       error
	Delay     time.Duration
}

// Options configures an Executor.
type Options struct {
	Policy Policy
	Logger *infra.Logger
	// Sleep waits for d or until ctx is done. Tests replace it to skip real
	// waiting.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is invoked before each backoff sleep.
	OnRetry func(Event)
}

// Executor applies a Policy to operations.
type Executor struct {
	policy  Policy
	logger  *infra.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	onRetry func(Event)
}

// New builds an Executor, filling unset policy fields from DefaultPolicy.
func New(opts Options) *Executor {
	policy := opts.Policy
	def := DefaultPolicy()
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.Backoff == nil {
		policy.Backoff = def.Backoff
	}
	if policy.IsRetryable == nil {
		policy.IsRetryable = def.IsRetryable
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	return &Executor{
		policy:  policy,
		logger:  infra.LoggerOrDiscard(opts.Logger),
		sleep:   sleep,
		onRetry: opts.OnRetry,
	}
}

// Policy returns the effective policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Do invokes fn until it succeeds, returns a non-retryable error, or the
// policy's attempts run out. A retry-after hint carried by the error takes
// precedence over the backoff delay. Context cancellation stops the loop
// immediately and is returned as is.
func Do[T any](ctx context.Context, e *Executor, operation string, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		value, err := fn(ctx, attempt)
		if err == nil {
			return value, nil
		}
		lastErr = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		if !e.policy.IsRetryable(err) {
			return zero, err
		}
		if attempt == e.policy.MaxAttempts {
			break
		}

		delay := domain.RetryAfterOf(err)
		if delay <= 0 {
			delay = e.policy.Backoff.NextDelay(attempt)
		}
		e.logger.Warn().
			Err(err).
			Str("operation", operation).
			Int("attempt", attempt).
			Int("max_attempts", e.policy.MaxAttempts).
			Dur("delay", delay).
			Msg("retry: transient failure, backing off")
		if e.onRetry != nil {
			e.onRetry(Event{Operation: operation, Attempt: attempt, Err: err, Delay: delay})
		}
		if err := e.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	e.logger.Error().
		Err(lastErr).
		Str("operation", operation).
		Int("attempts", e.policy.MaxAttempts).
		Msg("retry: attempts exhausted")
	return zero, exhausted(lastErr)
}

// exhausted keeps the last error's classification and message while marking
// the chain with ErrExhausted.
func exhausted(last error) error {
	joined := errors.Join(ErrExhausted, last)
	var de *domain.Error
	if errors.As(last, &de) {
		return &domain.Error{
			Kind:       de.Kind,
			Message:    de.Message,
			Status:     de.Status,
			RetryAfter: de.RetryAfter,
			Err:        joined,
		}
	}
	return domain.NewTransientError(domain.PublicMessage(last), 0, 0, joined)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
