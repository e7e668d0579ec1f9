package pipeline

import (
	"context"
	"time"

	"bethemayor/internal/infra"
)

// Observer receives run and step lifecycle events. Methods are called
// synchronously from the run goroutine and must not block.
type Observer interface {
	OnRunStart(ctx context.Context, event *RunStartEvent)
	OnStepStart(ctx context.Context, event *StepStartEvent)
	OnStepEnd(ctx context.Context, event *StepEndEvent)
	OnRunEnd(ctx context.Context, event *RunEndEvent)
}

type RunStartEvent struct {
	RunID     string
	Character string
	StartTime time.Time
}

type RunEndEvent struct {
	RunID     string
	Character string
	Duration  time.Duration
	Phase     Phase
	// Error is nil when the run completed.
	Error error
}

type StepStartEvent struct {
	RunID     string
	Step      StepName
	StartTime time.Time
}

type StepEndEvent struct {
	RunID    string
	Step     StepName
	Duration time.Duration
	Skipped  bool
	Cached   bool
	Error    error
}

// NoOpObserver ignores every event.
type NoOpObserver struct{}

func (NoOpObserver) OnRunStart(context.Context, *RunStartEvent)   {}
func (NoOpObserver) OnStepStart(context.Context, *StepStartEvent) {}
func (NoOpObserver) OnStepEnd(context.Context, *StepEndEvent)     {}
func (NoOpObserver) OnRunEnd(context.Context, *RunEndEvent)       {}

// MultiObserver fans events out to each observer in order.
type MultiObserver []Observer

func (m MultiObserver) OnRunStart(ctx context.Context, event *RunStartEvent) {
	for _, obs := range m {
		obs.OnRunStart(ctx, event)
	}
}

func (m MultiObserver) OnStepStart(ctx context.Context, event *StepStartEvent) {
	for _, obs := range m {
		obs.OnStepStart(ctx, event)
	}
}

func (m MultiObserver) OnStepEnd(ctx context.Context, event *StepEndEvent) {
	for _, obs := range m {
		obs.OnStepEnd(ctx, event)
	}
}

func (m MultiObserver) OnRunEnd(ctx context.Context, event *RunEndEvent) {
	for _, obs := range m {
		obs.OnRunEnd(ctx, event)
	}
}

// LogObserver writes lifecycle events to a zerolog logger.
type LogObserver struct {
	logger *infra.Logger
}

func NewLogObserver(logger *infra.Logger) *LogObserver {
	return &LogObserver{logger: infra.LoggerOrDiscard(logger)}
}

func (o *LogObserver) OnRunStart(_ context.Context, event *RunStartEvent) {
	o.logger.Info().
		Str("run_id", event.RunID).
		Str("character", event.Character).
		Msg("pipeline: run started")
}

func (o *LogObserver) OnStepStart(_ context.Context, event *StepStartEvent) {
	o.logger.Debug().
		Str("run_id", event.RunID).
		Str("step", string(event.Step)).
		Msg("pipeline: step started")
}

func (o *LogObserver) OnStepEnd(_ context.Context, event *StepEndEvent) {
	if event.Error != nil {
		o.logger.Warn().
			Err(event.Error).
			Str("run_id", event.RunID).
			Str("step", string(event.Step)).
			Dur("duration", event.Duration).
			Msg("pipeline: step failed")
		return
	}
	o.logger.Info().
		Str("run_id", event.RunID).
		Str("step", string(event.Step)).
		Bool("skipped", event.Skipped).
		Bool("cached", event.Cached).
		Dur("duration", event.Duration).
		Msg("pipeline: step succeeded")
}

func (o *LogObserver) OnRunEnd(_ context.Context, event *RunEndEvent) {
	if event.Error != nil {
		o.logger.Error().
			Err(event.Error).
			Str("run_id", event.RunID).
			Str("phase", string(event.Phase)).
			Dur("duration", event.Duration).
			Msg("pipeline: run aborted")
		return
	}
	o.logger.Info().
		Str("run_id", event.RunID).
		Dur("duration", event.Duration).
		Msg("pipeline: run complete")
}

var (
	_ Observer = NoOpObserver{}
	_ Observer = MultiObserver(nil)
	_ Observer = (*LogObserver)(nil)
)
