package jobs

import "time"

// Job statuses. A job is terminal once complete, stopped, or failed;
// a new run always creates a new job.
const (
	StatusInitializing = "initializing"
	StatusRunning      = "running"
	StatusComplete     = "complete"
	StatusStopped      = "stopped"
	StatusFailed       = "failed"
)

// AnalysisJob represents one analysis run over a subject's sessions.
type AnalysisJob struct {
	ID              string     `json:"id"`
	SubjectID       string     `json:"subjectId"`
	Status          string     `json:"status"`
	AnalysisVersion string     `json:"analysisVersion"`
	Provider        string     `json:"provider"`
	Model           string     `json:"model"`
	StopRequested   bool       `json:"stopRequested,omitempty"`
	ErrorCode       string     `json:"errorCode,omitempty"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// Terminal reports whether the job can no longer change state.
func (j AnalysisJob) Terminal() bool {
	return j.Status == StatusComplete || j.Status == StatusStopped || j.Status == StatusFailed
}
