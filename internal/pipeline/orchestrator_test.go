package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bethemayor/internal/cache"
	"bethemayor/internal/catalog"
	"bethemayor/internal/domain"
	"bethemayor/internal/generation"
	"bethemayor/internal/retry"
)

type genFunc[Req any] func(ctx context.Context, req Req) domain.Result

func (f genFunc[Req]) Generate(ctx context.Context, req Req) domain.Result { return f(ctx, req) }

// harness wires an orchestrator to scripted generators and records calls.
type harness struct {
	mu     sync.Mutex
	calls  map[StepName]int
	sleeps []time.Duration

	text  func(generation.TextRequest) domain.Result
	music func(generation.MusicRequest) domain.Result
	image func(generation.CharacterImageRequest) domain.Result
	video func(generation.VideoRequest) domain.Result

	store *cache.MemoryStore
}

func newHarness() *harness {
	return &harness{
		calls: make(map[StepName]int),
		text: func(generation.TextRequest) domain.Result {
			return domain.TextSuccess("Yo, it's Blue on the mic", nil)
		},
		music: func(generation.MusicRequest) domain.Result {
			return domain.Success("https://replicate.delivery/song.mp3", nil)
		},
		image: func(generation.CharacterImageRequest) domain.Result {
			return domain.Success("https://replicate.delivery/blue.jpg", nil)
		},
		video: func(generation.VideoRequest) domain.Result {
			return domain.Success("https://replicate.delivery/final.mp4", nil)
		},
		store: cache.NewMemoryStore(0),
	}
}

func record[Req any](h *harness, step StepName, fn *func(Req) domain.Result) genFunc[Req] {
	return func(_ context.Context, req Req) domain.Result {
		h.mu.Lock()
		h.calls[step]++
		h.mu.Unlock()
		return (*fn)(req)
	}
}

func (h *harness) orchestrator(t *testing.T, observer Observer) *Orchestrator {
	t.Helper()
	o, err := New(Options{
		Generators: Generators{
			Text:           record(h, StepLyrics, &h.text),
			Music:          record(h, StepMusic, &h.music),
			CharacterImage: record(h, StepCharacterImage, &h.image),
			Video:          record(h, StepVideo, &h.video),
		},
		Catalog:   catalog.MustDefault(),
		Cache:     h.store,
		Observer:  observer,
		StepDelay: DefaultStepDelay,
		Sleep: func(ctx context.Context, d time.Duration) error {
			h.mu.Lock()
			h.sleeps = append(h.sleeps, d)
			h.mu.Unlock()
			return ctx.Err()
		},
		NewRunID: func() string { return "run-1" },
	})
	require.NoError(t, err)
	return o
}

func TestBlueRunCompletesEndToEnd(t *testing.T) {
	h := newHarness()
	var musicReq generation.MusicRequest
	var videoReq generation.VideoRequest
	h.music = func(req generation.MusicRequest) domain.Result {
		musicReq = req
		return domain.Success("https://replicate.delivery/song.mp3", nil)
	}
	h.video = func(req generation.VideoRequest) domain.Result {
		videoReq = req
		return domain.Success("https://replicate.delivery/final.mp4", nil)
	}

	state, err := h.orchestrator(t, nil).Run(context.Background(), Input{Lyrics: "", Character: "blue"}, nil)
	require.NoError(t, err)

	assert.Equal(t, PhaseComplete, state.Phase)
	assert.Equal(t, MilestoneComplete, state.Progress)
	require.NotNil(t, state.Final)
	assert.Equal(t, "https://replicate.delivery/final.mp4", state.Final.URL)
	assert.Equal(t, "https://replicate.delivery/song.mp3", state.Final.AudioURL)

	assert.Equal(t, "Yo, it's Blue on the mic", musicReq.Lyrics)
	assert.Equal(t, "https://replicate.delivery/blue.jpg", videoReq.Image)
	assert.Equal(t, "https://replicate.delivery/song.mp3", videoReq.AudioURL)
	assert.Contains(t, videoReq.Prompt, "blue humanoid character")

	for _, step := range state.Steps {
		assert.Equal(t, StatusSucceeded, step.Status, "step %s", step.Name)
		assert.NotEmpty(t, step.Output, "step %s", step.Name)
	}
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, h.sleeps)

	lyrics, ok := cache.Latest(h.store.GetAll(context.Background()), cache.PrefixLyrics)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(lyrics.Key, "lyrics-blue-character-"))
	assert.Equal(t, "Yo, it's Blue on the mic", lyrics.Metadata["text"])
}

func TestExistingLyricsSkipTextStep(t *testing.T) {
	h := newHarness()
	state, err := h.orchestrator(t, nil).Run(context.Background(), Input{Character: "blue", Lyrics: "cached verse"}, nil)
	require.NoError(t, err)

	assert.Zero(t, h.calls[StepLyrics])
	lyrics, _ := state.Step(StepLyrics)
	assert.True(t, lyrics.Skipped)
	assert.Equal(t, StatusSucceeded, lyrics.Status)
	assert.Equal(t, "cached verse", lyrics.Output)
	// No courtesy delay after a step that never reached the upstream.
	assert.Len(t, h.sleeps, 2)
}

func TestCachedResultKeepsStepDelay(t *testing.T) {
	h := newHarness()
	h.music = func(generation.MusicRequest) domain.Result {
		res := domain.Success("https://replicate.delivery/song.mp3", nil)
		res.Cached = true
		return res
	}
	state, err := h.orchestrator(t, nil).Run(context.Background(), Input{Character: "blue"}, nil)
	require.NoError(t, err)

	music, _ := state.Step(StepMusic)
	assert.True(t, music.Cached)
	assert.Equal(t, 1, h.calls[StepMusic])
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, h.sleeps)
}

func TestFailureAbortsAndKeepsEarlierOutputs(t *testing.T) {
	tests := []struct {
		name     string
		failAt   StepName
		message  string
		wantDone []StepName
		wantIdle []StepName
	}{
		{
			name:     "video",
			failAt:   StepVideo,
			message:  "Video generation failed: NSFW content detected",
			wantDone: []StepName{StepLyrics, StepMusic, StepCharacterImage},
		},
		{
			name:     "music",
			failAt:   StepMusic,
			message:  "Music generation queue is full. Please try again later.",
			wantDone: []StepName{StepLyrics},
			wantIdle: []StepName{StepCharacterImage, StepVideo},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			failure := domain.Failure(&domain.Error{Kind: domain.KindUpstreamFailure, Message: tt.message})
			switch tt.failAt {
			case StepVideo:
				h.video = func(generation.VideoRequest) domain.Result { return failure }
			case StepMusic:
				h.music = func(generation.MusicRequest) domain.Result { return failure }
			}

			state, err := h.orchestrator(t, nil).Run(context.Background(), Input{Character: "blue"}, nil)
			require.Error(t, err)
			assert.Equal(t, tt.message, domain.PublicMessage(err))

			assert.Equal(t, PhaseAborted, state.Phase)
			assert.Equal(t, tt.message, state.Error)
			assert.Nil(t, state.Final)

			failed, _ := state.Step(tt.failAt)
			assert.Equal(t, StatusFailed, failed.Status)
			assert.Equal(t, tt.message, failed.Error)
			for _, name := range tt.wantDone {
				step, _ := state.Step(name)
				assert.Equal(t, StatusSucceeded, step.Status, "step %s", name)
				assert.NotEmpty(t, step.Output, "step %s", name)
			}
			for _, name := range tt.wantIdle {
				step, _ := state.Step(name)
				assert.Equal(t, StatusNotStarted, step.Status, "step %s", name)
				assert.Zero(t, h.calls[name], "step %s must not run", name)
			}
		})
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	h := newHarness()
	o := h.orchestrator(t, nil)
	var events []Event
	o.OnProgress(func(ev Event) { events = append(events, ev) })

	_, err := o.Run(context.Background(), Input{Character: "bts-jimin"}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, events)

	last := 0
	for _, ev := range events {
		assert.GreaterOrEqual(t, ev.Percent, last)
		last = ev.Percent

		running := 0
		for _, step := range ev.State.Steps {
			if step.Status == StatusRunning {
				running++
			}
		}
		assert.LessOrEqual(t, running, 1)
	}
	final := events[len(events)-1]
	assert.Equal(t, EventComplete, final.Type)
	assert.Equal(t, 100, final.Percent)

	var milestones []int
	for _, ev := range events {
		if ev.Type == EventStepStarted {
			milestones = append(milestones, ev.Percent)
		}
	}
	assert.Equal(t, []int{25, 50, 75, 90}, milestones)
}

func TestUnknownCharacterIsRejected(t *testing.T) {
	h := newHarness()
	state, err := h.orchestrator(t, nil).Run(context.Background(), Input{Character: "nobody"}, nil)
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.Equal(t, PhaseAborted, state.Phase)
	assert.Empty(t, h.calls)
}

func TestCancellationAbortsBetweenSteps(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	h.text = func(generation.TextRequest) domain.Result {
		cancel()
		return domain.TextSuccess("verse", nil)
	}

	state, err := h.orchestrator(t, nil).Run(ctx, Input{Character: "blue"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, PhaseAborted, state.Phase)
	assert.Zero(t, h.calls[StepMusic])

	lyrics, _ := state.Step(StepLyrics)
	assert.Equal(t, StatusSucceeded, lyrics.Status)
}

func TestStartStreamsUntilTerminalEvent(t *testing.T) {
	h := newHarness()
	var got []Event
	for ev := range h.orchestrator(t, nil).Start(context.Background(), Input{Character: "blue"}) {
		got = append(got, ev)
	}
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.True(t, last.Terminal())
	assert.Equal(t, "run-1", last.RunID)
	assert.Equal(t, "https://replicate.delivery/final.mp4", last.State.Final.URL)
}

// runEndSignal closes done once a run has finished emitting.
type runEndSignal struct {
	NoOpObserver
	done chan struct{}
}

func (s runEndSignal) OnRunEnd(context.Context, *RunEndEvent) { close(s.done) }

func TestStartDeliversTerminalEventToLateReader(t *testing.T) {
	h := newHarness()
	ended := runEndSignal{done: make(chan struct{})}
	events := h.orchestrator(t, ended).Start(context.Background(), Input{Character: "blue"})

	select {
	case <-ended.done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish while the reader was idle")
	}

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	require.Len(t, got, len(steps)*2+1)
	last := got[len(got)-1]
	assert.Equal(t, EventComplete, last.Type)
	assert.Equal(t, "https://replicate.delivery/final.mp4", last.State.Final.URL)
}

func TestPrometheusObserverRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPrometheusObserver("test", reg)
	h := newHarness()
	o := h.orchestrator(t, MultiObserver{metrics, NewLogObserver(nil)})

	_, err := o.Run(context.Background(), Input{Character: "blue", Lyrics: "verse"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.stepOutcomes.WithLabelValues("lyrics", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.stepOutcomes.WithLabelValues("video", "succeeded")))

	metrics.ObserveCacheLookup("music-abc", true)
	metrics.ObserveCacheLookup("character-image-blue", false)
	metrics.ObserveRetry(retry.Event{Operation: "replicate.create_prediction", Attempt: 1, Err: domain.NewTransientError("queue is full", 200, 0, nil)})

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("music", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("character-image", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.retries.WithLabelValues("replicate.create_prediction", "transient_upstream")))
}
