package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bethemayor/internal/domain"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func rateLimited(retryAfter time.Duration) error {
	return domain.NewTransientError("rate limited", http.StatusTooManyRequests, retryAfter, nil)
}

func TestDoRetriesRateLimitThenSucceeds(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	exec := New(Options{Sleep: rec.Sleep})

	calls := 0
	got, err := Do(context.Background(), exec, "create", func(context.Context, int) (string, error) {
		calls++
		if calls < 3 {
			return "", rateLimited(0)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.delays)
}

func TestDoPrefersRetryAfterHint(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	exec := New(Options{Sleep: rec.Sleep})

	calls := 0
	_, err := Do(context.Background(), exec, "create", func(context.Context, int) (int, error) {
		calls++
		if calls == 1 {
			return 0, rateLimited(7 * time.Second)
		}
		return 1, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{7 * time.Second}, rec.delays)
}

func TestDoExhaustsAttempts(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	var events []Event
	exec := New(Options{
		Sleep:   rec.Sleep,
		OnRetry: func(ev Event) { events = append(events, ev) },
	})

	calls := 0
	_, err := Do(context.Background(), exec, "create", func(context.Context, int) (string, error) {
		calls++
		return "", domain.NewTransientError("queue is full", http.StatusOK, 0, nil)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, domain.KindTransientUpstream, domain.KindOf(err))
	assert.Equal(t, "queue is full", domain.PublicMessage(err))
	assert.Len(t, events, 2)
	assert.Equal(t, 1, events[0].Attempt)
	assert.Len(t, rec.delays, 2)
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	t.Parallel()

	exec := New(Options{Sleep: (&sleepRecorder{}).Sleep})
	permanent := domain.NewUpstreamFailure("bad input", http.StatusUnprocessableEntity, nil)

	calls := 0
	_, err := Do(context.Background(), exec, "create", func(context.Context, int) (string, error) {
		calls++
		return "", permanent
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, permanent, err)
}

func TestDoStopsOnCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	exec := New(Options{Sleep: func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}})

	calls := 0
	_, err := Do(ctx, exec, "create", func(context.Context, int) (string, error) {
		calls++
		return "", rateLimited(0)
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestExponentialBackoffCapsAtMaxDelay(t *testing.T) {
	t.Parallel()

	b := ExponentialBackoff{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, 2*time.Second, b.NextDelay(1))
	assert.Equal(t, 4*time.Second, b.NextDelay(2))
	assert.Equal(t, 5*time.Second, b.NextDelay(3))
}

func TestSleepHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Sleep(ctx, time.Hour)
	assert.True(t, errors.Is(err, context.Canceled))
}
