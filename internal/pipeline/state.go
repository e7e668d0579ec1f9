// Package pipeline sequences the generation adapters into the rap video flow:
// lyrics, music, character image, then the final video. Each step feeds the
// next, progress is reported at fixed milestones and the first failure aborts
// the run while keeping what earlier steps produced.
package pipeline

import (
	"slices"

	"bethemayor/internal/domain"
)

// StepName identifies a pipeline step.
type StepName string

const (
	StepLyrics         StepName = "lyrics"
	StepMusic          StepName = "music"
	StepCharacterImage StepName = "character_image"
	StepVideo          StepName = "video"
)

// StepStatus is the lifecycle of one step. A step only moves forward:
// NotStarted, Running, then Succeeded or Failed.
type StepStatus string

const (
	StatusNotStarted StepStatus = "not_started"
	StatusRunning    StepStatus = "running"
	StatusSucceeded  StepStatus = "succeeded"
	StatusFailed     StepStatus = "failed"
)

// Phase is the run-level state.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseRunning  Phase = "running"
	PhaseComplete Phase = "complete"
	PhaseAborted  Phase = "aborted"
)

// Progress milestones, reported when the step starts.
const (
	MilestoneLyrics         = 25
	MilestoneMusic          = 50
	MilestoneCharacterImage = 75
	MilestoneVideo          = 90
	MilestoneComplete       = 100
)

// Step is the reported state of one step.
type Step struct {
	Name   StepName   `json:"name"`
	Status StepStatus `json:"status"`
	// Output is the artifact URL, or the lyrics text for the lyrics step.
	Output   string `json:"output,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`
	Cached   bool   `json:"cached,omitempty"`
	Progress int    `json:"progressPercent"`
	Error    string `json:"error,omitempty"`
}

// Artifact is the product of a completed run.
type Artifact struct {
	URL      string `json:"url"`
	AudioURL string `json:"audioUrl,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
	Lyrics   string `json:"lyrics,omitempty"`
}

// State is a snapshot of a run. Snapshots handed to callers never alias the
// orchestrator's copy.
type State struct {
	RunID     string    `json:"runId"`
	Character string    `json:"character"`
	Phase     Phase     `json:"phase"`
	Progress  int       `json:"progressPercent"`
	Steps     []Step    `json:"steps"`
	Final     *Artifact `json:"finalArtifact,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind string    `json:"errorKind,omitempty"`
}

func newState(runID, character string) State {
	return State{
		RunID:     runID,
		Character: character,
		Phase:     PhaseIdle,
		Steps: []Step{
			{Name: StepLyrics, Status: StatusNotStarted},
			{Name: StepMusic, Status: StatusNotStarted},
			{Name: StepCharacterImage, Status: StatusNotStarted},
			{Name: StepVideo, Status: StatusNotStarted},
		},
	}
}

// Step returns the step called name.
func (s State) Step(name StepName) (Step, bool) {
	i := slices.IndexFunc(s.Steps, func(st Step) bool { return st.Name == name })
	if i < 0 {
		return Step{}, false
	}
	return s.Steps[i], true
}

func (s *State) step(name StepName) *Step {
	for i := range s.Steps {
		if s.Steps[i].Name == name {
			return &s.Steps[i]
		}
	}
	return nil
}

// advance raises the run progress, never lowering it.
func (s *State) advance(percent int) {
	if percent > s.Progress {
		s.Progress = percent
	}
}

func (s *State) abort(err *domain.Error) {
	s.Phase = PhaseAborted
	s.Error = err.Message
	s.ErrorKind = string(err.Kind)
}

func (s State) snapshot() State {
	out := s
	out.Steps = slices.Clone(s.Steps)
	if s.Final != nil {
		final := *s.Final
		out.Final = &final
	}
	return out
}

// EventType tags a streamed event.
type EventType string

const (
	EventStepStarted EventType = "step_started"
	EventStepEnded   EventType = "step_ended"
	EventComplete    EventType = "complete"
	EventAborted     EventType = "aborted"
)

// Event is one entry in a run's progress stream.
type Event struct {
	Type    EventType `json:"type"`
	RunID   string    `json:"runId"`
	Step    StepName  `json:"step,omitempty"`
	Percent int       `json:"percent"`
	Message string    `json:"message,omitempty"`
	Error   string    `json:"error,omitempty"`
	State   State     `json:"state"`
}

// Terminal reports whether ev ends its run.
func (ev Event) Terminal() bool {
	return ev.Type == EventComplete || ev.Type == EventAborted
}
