package pipeline

import "time"

// Stage identifies a step of a pipeline run.
type Stage string

const (
	StageReceived     Stage = "received"
	StageUploading    Stage = "uploading"
	StageUploaded     Stage = "uploaded"
	StageAnalyzing    Stage = "analyzing"
	StageAnalyzed     Stage = "analyzed"
	StageSynthesizing Stage = "synthesizing"
	StageQueued       Stage = "queued"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// Event is a progress notification for one pipeline run. Events are
// published in stage order for a given run; runs may interleave.
type Event struct {
	RunID   string    `json:"run_id"`
	Stage   Stage     `json:"stage"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// Notifier receives pipeline events for fan-out to observers. Publish must
// not block; slow observers are the notifier's problem.
type Notifier interface {
	Publish(ev Event)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) Publish(Event) {}
