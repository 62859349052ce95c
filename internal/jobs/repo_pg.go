package jobs

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Create(ctx context.Context, job AnalysisJob) error {
	const query = `
INSERT INTO analysis_jobs (id, subject_id, status, analysis_version, provider, model, created_at)
VALUES ($1, $2, COALESCE(NULLIF($3, ''), 'initializing'), $4, $5, $6, $7)`
	createdAt := job.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.DB.ExecContext(ctx, query,
		job.ID,
		job.SubjectID,
		job.Status,
		job.AnalysisVersion,
		job.Provider,
		job.Model,
		createdAt,
	)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, jobID string) (AnalysisJob, error) {
	const query = selectJobColumns + `
WHERE id = $1
LIMIT 1`
	job, err := scanJob(r.DB.QueryRowContext(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AnalysisJob{}, ErrNotFound
		}
		return AnalysisJob{}, err
	}
	return job, nil
}

func (r *PGRepo) MarkRunning(ctx context.Context, jobID string, startedAt time.Time) error {
	return r.exec(ctx, `UPDATE analysis_jobs SET status = 'running', started_at = $2 WHERE id = $1`, jobID, startedAt)
}

func (r *PGRepo) MarkTerminal(ctx context.Context, jobID, status string, completedAt time.Time) error {
	return r.exec(ctx, `UPDATE analysis_jobs SET status = $2, completed_at = $3 WHERE id = $1`, jobID, status, completedAt)
}

func (r *PGRepo) Fail(ctx context.Context, jobID, code, message string, completedAt time.Time) error {
	return r.exec(ctx, `
UPDATE analysis_jobs
SET status = 'failed', error_code = $2, error_message = $3, completed_at = $4
WHERE id = $1`, jobID, code, message, completedAt)
}

func (r *PGRepo) RequestStop(ctx context.Context, jobID string) error {
	res, err := r.DB.ExecContext(ctx, `
UPDATE analysis_jobs
SET stop_requested = TRUE
WHERE id = $1 AND status IN ('initializing', 'running')`, jobID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Distinguish a missing job from one already terminal.
		if _, getErr := r.GetByID(ctx, jobID); getErr != nil {
			return getErr
		}
		return ErrJobTerminal
	}
	return nil
}

func (r *PGRepo) StopRequested(ctx context.Context, jobID string) (bool, error) {
	var stop bool
	err := r.DB.QueryRowContext(ctx, `SELECT stop_requested FROM analysis_jobs WHERE id = $1`, jobID).Scan(&stop)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	return stop, nil
}

func (r *PGRepo) LatestBySubject(ctx context.Context, subjectID string) (AnalysisJob, error) {
	const query = selectJobColumns + `
WHERE subject_id = $1
ORDER BY created_at DESC
LIMIT 1`
	job, err := scanJob(r.DB.QueryRowContext(ctx, query, subjectID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AnalysisJob{}, ErrNotFound
		}
		return AnalysisJob{}, err
	}
	return job, nil
}

func (r *PGRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

const selectJobColumns = `
SELECT id, subject_id, status, analysis_version, provider, model, stop_requested, error_code, error_message, created_at, started_at, completed_at
FROM analysis_jobs`

func scanJob(row interface{ Scan(...any) error }) (AnalysisJob, error) {
	var (
		job          AnalysisJob
		errorCode    sql.NullString
		errorMessage sql.NullString
		startedAt    sql.NullTime
		completedAt  sql.NullTime
	)
	err := row.Scan(
		&job.ID,
		&job.SubjectID,
		&job.Status,
		&job.AnalysisVersion,
		&job.Provider,
		&job.Model,
		&job.StopRequested,
		&errorCode,
		&errorMessage,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return AnalysisJob{}, err
	}
	if errorCode.Valid {
		job.ErrorCode = errorCode.String
	}
	if errorMessage.Valid {
		job.ErrorMessage = errorMessage.String
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return job, nil
}

var _ Repo = (*PGRepo)(nil)
