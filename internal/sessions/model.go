package sessions

import (
	"encoding/json"
	"time"
)

// Per-stage analysis statuses.
const (
	StagePending = "pending"
	StageRunning = "running"
	StageDone    = "done"
	StageFailed  = "failed"
)

// Session is one recorded therapy session for a subject, along with the
// analysis results each pipeline stage has produced for it so far.
type Session struct {
	ID           string          `json:"id"`
	SubjectID    string          `json:"subjectId"`
	SessionDate  time.Time       `json:"sessionDate"`
	Transcript   string          `json:"-"`
	Stage1Status string          `json:"stage1Status"`
	Stage2Status string          `json:"stage2Status"`
	Stage1Result json.RawMessage `json:"stage1Result,omitempty"`
	Stage2Result json.RawMessage `json:"stage2Result,omitempty"`
	ContextRef   *int            `json:"-"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}
