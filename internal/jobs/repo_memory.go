package jobs

import (
	"context"
	"sync"
	"time"
)

type MemoryRepo struct {
	mu   sync.RWMutex
	jobs map[string]AnalysisJob
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{jobs: make(map[string]AnalysisJob)}
}

func (r *MemoryRepo) Create(ctx context.Context, job AnalysisJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = StatusInitializing
	}
	r.jobs[job.ID] = job
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, jobID string) (AnalysisJob, error) {
	if err := ctx.Err(); err != nil {
		return AnalysisJob{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return AnalysisJob{}, ErrNotFound
	}
	return job, nil
}

func (r *MemoryRepo) MarkRunning(ctx context.Context, jobID string, startedAt time.Time) error {
	return r.update(ctx, jobID, func(j *AnalysisJob) error {
		j.Status = StatusRunning
		j.StartedAt = &startedAt
		return nil
	})
}

func (r *MemoryRepo) MarkTerminal(ctx context.Context, jobID, status string, completedAt time.Time) error {
	return r.update(ctx, jobID, func(j *AnalysisJob) error {
		j.Status = status
		j.CompletedAt = &completedAt
		return nil
	})
}

func (r *MemoryRepo) Fail(ctx context.Context, jobID, code, message string, completedAt time.Time) error {
	return r.update(ctx, jobID, func(j *AnalysisJob) error {
		j.Status = StatusFailed
		j.ErrorCode = code
		j.ErrorMessage = message
		j.CompletedAt = &completedAt
		return nil
	})
}

func (r *MemoryRepo) RequestStop(ctx context.Context, jobID string) error {
	return r.update(ctx, jobID, func(j *AnalysisJob) error {
		if j.Terminal() {
			return ErrJobTerminal
		}
		j.StopRequested = true
		return nil
	})
}

func (r *MemoryRepo) StopRequested(ctx context.Context, jobID string) (bool, error) {
	job, err := r.GetByID(ctx, jobID)
	if err != nil {
		return false, err
	}
	return job.StopRequested, nil
}

func (r *MemoryRepo) LatestBySubject(ctx context.Context, subjectID string) (AnalysisJob, error) {
	if err := ctx.Err(); err != nil {
		return AnalysisJob{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest AnalysisJob
	found := false
	for _, job := range r.jobs {
		if job.SubjectID != subjectID {
			continue
		}
		if !found || job.CreatedAt.After(latest.CreatedAt) {
			latest = job
			found = true
		}
	}
	if !found {
		return AnalysisJob{}, ErrNotFound
	}
	return latest, nil
}

func (r *MemoryRepo) update(ctx context.Context, jobID string, apply func(*AnalysisJob) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if err := apply(&job); err != nil {
		return err
	}
	r.jobs[jobID] = job
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
