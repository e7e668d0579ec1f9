package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bethemayor/internal/cache"
	"bethemayor/internal/catalog"
	"bethemayor/internal/domain"
	"bethemayor/internal/generation"
	"bethemayor/internal/infra"
	"bethemayor/internal/retry"
)

// DefaultStepDelay separates executed steps, cached or not.
const DefaultStepDelay = 2 * time.Second

// Generator runs one capability. *generation.Adapter satisfies it.
type Generator[Req any] interface {
	Generate(ctx context.Context, req Req) domain.Result
}

// Generators are the adapters the run calls, in order.
type Generators struct {
	Text           Generator[generation.TextRequest]
	Music          Generator[generation.MusicRequest]
	CharacterImage Generator[generation.CharacterImageRequest]
	Video          Generator[generation.VideoRequest]
}

// GeneratorsFrom takes the adapters out of a generation service.
func GeneratorsFrom(svc *generation.Service) Generators {
	return Generators{
		Text:           svc.Text,
		Music:          svc.Music,
		CharacterImage: svc.CharacterImage,
		Video:          svc.Video,
	}
}

// Input selects the character and carries outputs the caller already has.
// A non-empty Lyrics, MusicURL or CharacterImageURL skips its step.
type Input struct {
	Character         string `json:"character"`
	Lyrics            string `json:"lyrics,omitempty"`
	MusicURL          string `json:"musicUrl,omitempty"`
	CharacterImageURL string `json:"characterImageUrl,omitempty"`
}

// Options configures an Orchestrator.
type Options struct {
	Generators Generators
	Catalog    *catalog.Catalog
	// Cache receives the generated lyrics so a reload can pick them up.
	Cache     cache.Store
	Observer  Observer
	Logger    *infra.Logger
	StepDelay time.Duration
	Sleep     func(ctx context.Context, d time.Duration) error
	Now       func() time.Time
	NewRunID  func() string
}

// Orchestrator runs the rap video pipeline. Runs are independent and may
// execute concurrently; within a run, steps are strictly sequential.
type Orchestrator struct {
	gens      Generators
	catalog   *catalog.Catalog
	cache     cache.Store
	observer  Observer
	logger    *infra.Logger
	stepDelay time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
	newRunID  func() string

	mu        sync.RWMutex
	listeners []func(Event)
}

// New validates opts and builds an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	g := opts.Generators
	if g.Text == nil || g.Music == nil || g.CharacterImage == nil || g.Video == nil {
		return nil, errors.New("pipeline: all generators are required")
	}
	if opts.Catalog == nil {
		return nil, errors.New("pipeline: catalog is required")
	}
	if opts.Observer == nil {
		opts.Observer = NoOpObserver{}
	}
	if opts.StepDelay < 0 {
		opts.StepDelay = 0
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	return &Orchestrator{
		gens:      g,
		catalog:   opts.Catalog,
		cache:     opts.Cache,
		observer:  opts.Observer,
		logger:    infra.LoggerOrDiscard(opts.Logger),
		stepDelay: opts.StepDelay,
		sleep:     opts.Sleep,
		now:       opts.Now,
		newRunID:  opts.NewRunID,
	}, nil
}

// OnProgress registers fn to receive the events of every run.
func (o *Orchestrator) OnProgress(fn func(Event)) {
	if fn == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, fn)
}

// Start runs the pipeline in its own goroutine and streams its events. The
// channel is closed after the terminal event, which is always delivered.
// Cancelling ctx aborts the run; progress events the caller no longer reads
// are dropped.
func (o *Orchestrator) Start(ctx context.Context, in Input) <-chan Event {
	// Room for a started and an ended event per step plus the terminal one,
	// so a slow reader never blocks the run.
	events := make(chan Event, len(steps)*2+1)
	go func() {
		defer close(events)
		_, _ = o.Run(ctx, in, func(ev Event) {
			if ev.Terminal() {
				events <- ev
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})
	}()
	return events
}

// run holds the mutable state of one execution.
type run struct {
	o         *Orchestrator
	ctx       context.Context
	emit      func(Event)
	state     State
	character catalog.Character
	logger    infra.Logger

	lyrics   string
	musicURL string
	imageURL string
	videoURL string
}

// Run executes the pipeline synchronously. onProgress, when set, receives the
// events of this run in addition to the registered listeners. The returned
// state is Complete with a final artifact, or Aborted with the error that
// stopped it.
func (o *Orchestrator) Run(ctx context.Context, in Input, onProgress func(Event)) (State, error) {
	r := &run{
		o:        o,
		ctx:      ctx,
		state:    newState(o.newRunID(), strings.TrimSpace(in.Character)),
		lyrics:   strings.TrimSpace(in.Lyrics),
		musicURL: strings.TrimSpace(in.MusicURL),
		imageURL: strings.TrimSpace(in.CharacterImageURL),
	}
	r.logger = o.logger.With().Str("run_id", r.state.RunID).Logger()
	r.emit = o.emitter(onProgress)

	start := o.now()
	o.observer.OnRunStart(ctx, &RunStartEvent{RunID: r.state.RunID, Character: r.state.Character, StartTime: start})

	err := r.execute()
	if err != nil {
		r.state.abort(err)
		r.emit(r.event(EventAborted, "", err.Message))
	} else {
		r.state.Phase = PhaseComplete
		r.state.advance(MilestoneComplete)
		r.state.Final = &Artifact{URL: r.videoURL, AudioURL: r.musicURL, ImageURL: r.imageURL, Lyrics: r.lyrics}
		r.emit(r.event(EventComplete, "", "Complete! Your celebrity video is ready!"))
	}

	end := &RunEndEvent{
		RunID:     r.state.RunID,
		Character: r.state.Character,
		Duration:  o.now().Sub(start),
		Phase:     r.state.Phase,
	}
	if err != nil {
		end.Error = err
	}
	o.observer.OnRunEnd(ctx, end)

	if err != nil {
		return r.state.snapshot(), err
	}
	return r.state.snapshot(), nil
}

func (o *Orchestrator) emitter(onProgress func(Event)) func(Event) {
	o.mu.RLock()
	listeners := append([]func(Event){}, o.listeners...)
	o.mu.RUnlock()
	if onProgress != nil {
		listeners = append(listeners, onProgress)
	}
	return func(ev Event) {
		for _, fn := range listeners {
			fn(ev)
		}
	}
}

func (r *run) event(typ EventType, step StepName, message string) Event {
	ev := Event{
		Type:    typ,
		RunID:   r.state.RunID,
		Step:    step,
		Percent: r.state.Progress,
		Message: message,
		State:   r.state.snapshot(),
	}
	if typ == EventAborted {
		ev.Error = r.state.Error
	}
	return ev
}

// stepSpec describes one step of the run.
type stepSpec struct {
	name      StepName
	milestone int
	message   string
	// existing returns an output the caller already supplied.
	existing func(r *run) string
	exec     func(r *run) domain.Result
	// output extracts the step output from a successful result and records it
	// on the run.
	output func(r *run, res domain.Result) string
}

var steps = []stepSpec{
	{
		name:      StepLyrics,
		milestone: MilestoneLyrics,
		message:   "Creating personalized rap lyrics...",
		existing:  func(r *run) string { return r.lyrics },
		exec:      (*run).generateLyrics,
		output: func(r *run, res domain.Result) string {
			r.lyrics = res.Text
			r.saveLyrics()
			return r.lyrics
		},
	},
	{
		name:      StepMusic,
		milestone: MilestoneMusic,
		message:   "Generating music...",
		existing:  func(r *run) string { return r.musicURL },
		exec: func(r *run) domain.Result {
			return r.o.gens.Music.Generate(r.ctx, generation.MusicRequest{
				Lyrics:          r.lyrics,
				DurationSeconds: generation.DefaultMusicDurationS,
				Bitrate:         generation.DefaultBitrate,
				SampleRate:      generation.DefaultSampleRate,
			})
		},
		output: func(r *run, res domain.Result) string {
			r.musicURL = res.ArtifactURL
			return r.musicURL
		},
	},
	{
		name:      StepCharacterImage,
		milestone: MilestoneCharacterImage,
		message:   "Creating image with celebrity in background...",
		existing:  func(r *run) string { return r.imageURL },
		exec: func(r *run) domain.Result {
			return r.o.gens.CharacterImage.Generate(r.ctx, generation.CharacterImageRequest{
				CharacterName: r.character.Name,
				Prompt:        r.character.ImagePrompt,
			})
		},
		output: func(r *run, res domain.Result) string {
			r.imageURL = res.ArtifactURL
			return r.imageURL
		},
	},
	{
		name:      StepVideo,
		milestone: MilestoneVideo,
		message:   "Creating video with celebrity rapping...",
		existing:  func(*run) string { return "" },
		exec: func(r *run) domain.Result {
			return r.o.gens.Video.Generate(r.ctx, generation.VideoRequest{
				Prompt:   r.o.catalog.RapVideoPrompt(r.character),
				Image:    r.imageURL,
				AudioURL: r.musicURL,
			})
		},
		output: func(r *run, res domain.Result) string {
			r.videoURL = res.ArtifactURL
			return r.videoURL
		},
	},
}

func (r *run) execute() *domain.Error {
	ch, ok := r.o.catalog.Character(r.state.Character)
	if !ok {
		return domain.NewValidationError(fmt.Sprintf("Unknown character %q", r.state.Character))
	}
	r.character = ch
	r.state.Character = ch.ID
	r.state.Phase = PhaseRunning

	for i, spec := range steps {
		if err := r.ctx.Err(); err != nil {
			return canceled(err)
		}
		executed, err := r.runStep(spec)
		if err != nil {
			return err
		}
		if executed && i < len(steps)-1 && r.o.stepDelay > 0 {
			if err := r.o.sleep(r.ctx, r.o.stepDelay); err != nil {
				return canceled(err)
			}
		}
	}
	return nil
}

// runStep executes spec and reports whether a step delay should follow it.
// Only steps skipped in favor of caller input go without one.
func (r *run) runStep(spec stepSpec) (bool, *domain.Error) {
	st := r.state.step(spec.name)
	st.Status = StatusRunning
	st.Progress = spec.milestone
	r.state.advance(spec.milestone)

	start := r.o.now()
	r.o.observer.OnStepStart(r.ctx, &StepStartEvent{RunID: r.state.RunID, Step: spec.name, StartTime: start})

	if existing := spec.existing(r); existing != "" {
		st.Status = StatusSucceeded
		st.Skipped = true
		st.Output = existing
		r.o.observer.OnStepEnd(r.ctx, &StepEndEvent{RunID: r.state.RunID, Step: spec.name, Skipped: true})
		r.emit(r.event(EventStepEnded, spec.name, fmt.Sprintf("Using existing %s", strings.ReplaceAll(string(spec.name), "_", " "))))
		return false, nil
	}

	r.emit(r.event(EventStepStarted, spec.name, spec.message))
	res := spec.exec(r)
	end := &StepEndEvent{RunID: r.state.RunID, Step: spec.name, Duration: r.o.now().Sub(start), Cached: res.Cached}

	if !res.Succeeded() {
		failure := failureOf(res)
		st.Status = StatusFailed
		st.Error = failure.Message
		end.Error = failure
		r.o.observer.OnStepEnd(r.ctx, end)
		r.emit(r.event(EventStepEnded, spec.name, failure.Message))
		return true, failure
	}

	st.Output = spec.output(r, res)
	st.Cached = res.Cached
	st.Status = StatusSucceeded
	r.o.observer.OnStepEnd(r.ctx, end)
	r.emit(r.event(EventStepEnded, spec.name, ""))
	return true, nil
}

func (r *run) generateLyrics() domain.Result {
	return r.o.gens.Text.Generate(r.ctx, generation.TextRequest{
		Prompt:       r.o.catalog.RapPrompt(r.character),
		SystemPrompt: r.o.catalog.RapSystemPrompt,
	})
}

// saveLyrics records the lyrics under lyrics-<character>-<ms>. Cache failures
// never fail the run.
func (r *run) saveLyrics() {
	if r.o.cache == nil || r.lyrics == "" {
		return
	}
	at := r.o.now()
	key := cache.LyricsKey(r.character.Name, at)
	r.o.cache.Set(r.ctx, key, "", map[string]any{
		"text":      r.lyrics,
		"character": r.character.Name,
		"timestamp": at.UnixMilli(),
	})
	r.logger.Debug().Str("cache_key", key).Msg("pipeline: lyrics cached")
}

func failureOf(res domain.Result) *domain.Error {
	var de *domain.Error
	if errors.As(res.Err(), &de) {
		return de
	}
	return &domain.Error{Kind: domain.KindUpstreamFailure, Message: "Generation returned no result"}
}

func canceled(err error) *domain.Error {
	return &domain.Error{Kind: domain.KindInternal, Message: "Pipeline canceled", Err: err}
}
