package jobs

import (
	"context"
	"time"
)

// Repo defines persistence operations for analysis jobs.
//
// RequestStop only flips the stop flag on a non-terminal job; the
// orchestrator observes it at stage boundaries via StopRequested. The
// flag lives in storage so the API process can signal a job the worker
// process owns.
type Repo interface {
	Create(ctx context.Context, job AnalysisJob) error
	GetByID(ctx context.Context, jobID string) (AnalysisJob, error)
	MarkRunning(ctx context.Context, jobID string, startedAt time.Time) error
	MarkTerminal(ctx context.Context, jobID, status string, completedAt time.Time) error
	Fail(ctx context.Context, jobID, code, message string, completedAt time.Time) error
	RequestStop(ctx context.Context, jobID string) error
	StopRequested(ctx context.Context, jobID string) (bool, error)
	LatestBySubject(ctx context.Context, subjectID string) (AnalysisJob, error)
}
