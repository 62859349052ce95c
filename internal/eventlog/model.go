package eventlog

import (
	"encoding/json"
	"time"
)

// Phase identifies which pipeline wave an event belongs to.
const (
	PhaseTranscript = "transcript"
	PhaseStage1     = "stage1"
	PhaseStage2     = "stage2"
)

// Event types.
const (
	TypeStart           = "start"
	TypeSessionComplete = "session_complete"
	TypePhaseComplete   = "phase_complete"
	TypeError           = "error"
)

// Statuses carried on events. Terminal job outcomes ride on a
// phase_complete event rather than a dedicated event type.
const (
	StatusRunning  = "running"
	StatusDone     = "done"
	StatusFailed   = "failed"
	StatusComplete = "complete"
	StatusStopped  = "stopped"
)

// Event is one immutable progress record in a subject's ordered log.
// Seq is assigned by the log on append and is strictly increasing,
// gap-free per subject.
type Event struct {
	Seq         int64           `json:"seq"`
	SubjectID   string          `json:"subjectId"`
	Phase       string          `json:"phase"`
	Type        string          `json:"type"`
	SessionID   string          `json:"sessionId,omitempty"`
	SessionDate *time.Time      `json:"sessionDate,omitempty"`
	Status      string          `json:"status,omitempty"`
	Details     json.RawMessage `json:"details,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Terminal reports whether the event ends a subject's stream: the job
// finished, was stopped by cancellation, or failed outright. Observers
// must always see an explicit end rather than a silent hang.
func (e Event) Terminal() bool {
	if e.Type != TypePhaseComplete {
		return false
	}
	return e.Status == StatusComplete || e.Status == StatusStopped || e.Status == StatusFailed
}
