package jobs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"insights-backend/internal/queue"
	"insights-backend/internal/shared/telemetry"
	"insights-backend/internal/subjects"
)

// Service owns the job control surface: start a run for a subject,
// query its status, request cancellation. Execution happens in the
// worker process via the queue; in dev mode, without a queue, the
// orchestrator runs inline in a goroutine.
type Service struct {
	Repo            Repo
	Subjects        subjects.Repo
	Queue           queue.Client
	Runner          *Orchestrator
	Provider        string
	Model           string
	AnalysisVersion string
}

// Start creates a job for the subject and hands it to the worker.
func (s *Service) Start(ctx context.Context, subjectID string) (AnalysisJob, error) {
	if strings.TrimSpace(subjectID) == "" {
		return AnalysisJob{}, errors.New("subjectID is required")
	}
	if _, err := s.Subjects.GetByID(ctx, subjectID); err != nil {
		return AnalysisJob{}, err
	}

	job := AnalysisJob{
		ID:              uuid.NewString(),
		SubjectID:       subjectID,
		Status:          StatusInitializing,
		AnalysisVersion: s.AnalysisVersion,
		Provider:        s.Provider,
		Model:           s.Model,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, job); err != nil {
		return AnalysisJob{}, err
	}

	requestID := requestIDFromContext(ctx)
	switch {
	case s.Queue != nil:
		msg := queue.Message{
			JobID:      job.ID,
			SubjectID:  subjectID,
			RequestID:  requestID,
			EnqueuedAt: job.CreatedAt.Format(time.RFC3339),
			Version:    1,
		}
		if err := s.Queue.Send(ctx, msg); err != nil {
			completedAt := time.Now().UTC()
			if failErr := s.Repo.Fail(ctx, job.ID, ErrorCodeInternal, "enqueue failed", completedAt); failErr != nil {
				telemetry.Error("job.enqueue_fail_update", map[string]any{
					"job_id": job.ID,
					"error":  sanitizeError(failErr),
				})
			}
			return AnalysisJob{}, err
		}
	case s.Runner != nil:
		go func(runCtx context.Context, jobID string) {
			if err := s.Runner.Run(runCtx, jobID); err != nil {
				telemetry.Error("job.inline_run", map[string]any{
					"request_id": requestID,
					"job_id":     jobID,
					"error":      sanitizeError(err),
				})
			}
		}(backgroundWithRequestID(ctx), job.ID)
	default:
		return AnalysisJob{}, ErrJobQueueNotConfigured
	}

	telemetry.Info("job.started", map[string]any{
		"request_id": requestID,
		"subject_id": subjectID,
		"job_id":     job.ID,
	})
	return job, nil
}

// Get returns a job by ID.
func (s *Service) Get(ctx context.Context, jobID string) (AnalysisJob, error) {
	if strings.TrimSpace(jobID) == "" {
		return AnalysisJob{}, errors.New("jobID is required")
	}
	return s.Repo.GetByID(ctx, jobID)
}

// Stop flags the job for cooperative cancellation. The orchestrator
// honors the flag at the next stage boundary; in-flight calls finish.
func (s *Service) Stop(ctx context.Context, jobID string) error {
	if strings.TrimSpace(jobID) == "" {
		return errors.New("jobID is required")
	}
	if err := s.Repo.RequestStop(ctx, jobID); err != nil {
		return err
	}
	telemetry.Info("job.stop_requested", map[string]any{
		"request_id": requestIDFromContext(ctx),
		"job_id":     jobID,
	})
	return nil
}

// LatestForSubject returns the most recent job for the subject.
func (s *Service) LatestForSubject(ctx context.Context, subjectID string) (AnalysisJob, error) {
	if strings.TrimSpace(subjectID) == "" {
		return AnalysisJob{}, errors.New("subjectID is required")
	}
	return s.Repo.LatestBySubject(ctx, subjectID)
}
