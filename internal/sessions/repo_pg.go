package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Create(ctx context.Context, session Session) error {
	const query = `
INSERT INTO sessions (id, subject_id, session_date, transcript, stage1_status, stage2_status, created_at, updated_at)
VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5, ''), 'pending'), COALESCE(NULLIF($6, ''), 'pending'), now(), now())`
	_, err := r.DB.ExecContext(ctx, query,
		session.ID,
		session.SubjectID,
		session.SessionDate,
		session.Transcript,
		session.Stage1Status,
		session.Stage2Status,
	)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, sessionID string) (Session, error) {
	const query = selectColumns + `
WHERE id = $1
LIMIT 1`
	row := r.DB.QueryRowContext(ctx, query, sessionID)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	return session, nil
}

func (r *PGRepo) ListBySubject(ctx context.Context, subjectID string) ([]Session, error) {
	const query = selectColumns + `
WHERE subject_id = $1
ORDER BY session_date ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

func (r *PGRepo) SetStage1Status(ctx context.Context, sessionID, status string) error {
	return r.exec(ctx, `UPDATE sessions SET stage1_status = $2, updated_at = now() WHERE id = $1`, sessionID, status)
}

func (r *PGRepo) SetStage2Status(ctx context.Context, sessionID, status string) error {
	return r.exec(ctx, `UPDATE sessions SET stage2_status = $2, updated_at = now() WHERE id = $1`, sessionID, status)
}

func (r *PGRepo) SaveStage1Result(ctx context.Context, sessionID string, result json.RawMessage) error {
	return r.exec(ctx, `UPDATE sessions SET stage1_result = $2, stage1_status = 'done', updated_at = now() WHERE id = $1`, sessionID, []byte(result))
}

func (r *PGRepo) SaveStage2Result(ctx context.Context, sessionID string, result json.RawMessage, contextRef int) error {
	return r.exec(ctx, `UPDATE sessions SET stage2_result = $2, stage2_status = 'done', context_ref = $3, updated_at = now() WHERE id = $1`,
		sessionID, []byte(result), contextRef)
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

const selectColumns = `
SELECT id, subject_id, session_date, transcript, stage1_status, stage2_status, stage1_result, stage2_result, context_ref, created_at, updated_at
FROM sessions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		session      Session
		stage1Result []byte
		stage2Result []byte
		contextRef   sql.NullInt64
	)
	err := row.Scan(
		&session.ID,
		&session.SubjectID,
		&session.SessionDate,
		&session.Transcript,
		&session.Stage1Status,
		&session.Stage2Status,
		&stage1Result,
		&stage2Result,
		&contextRef,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return Session{}, err
	}
	if len(stage1Result) > 0 {
		session.Stage1Result = stage1Result
	}
	if len(stage2Result) > 0 {
		session.Stage2Result = stage2Result
	}
	if contextRef.Valid {
		ref := int(contextRef.Int64)
		session.ContextRef = &ref
	}
	return session, nil
}

var _ Repo = (*PGRepo)(nil)
