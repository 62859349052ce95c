package subjects

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Upsert(ctx context.Context, subject Subject) error {
	const query = `
INSERT INTO subjects (id, display_name, status, created_at, updated_at)
VALUES ($1, $2, COALESCE(NULLIF($3, ''), 'active'), now(), now())
ON CONFLICT (id) DO UPDATE SET
  display_name = EXCLUDED.display_name,
  status = EXCLUDED.status,
  updated_at = now()`
	_, err := r.DB.ExecContext(ctx, query, subject.ID, subject.DisplayName, subject.Status)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, subjectID string) (Subject, error) {
	const query = `
SELECT id, display_name, status, created_at, updated_at
FROM subjects
WHERE id = $1
LIMIT 1`
	var subject Subject
	var updatedAt sql.NullTime
	err := r.DB.QueryRowContext(ctx, query, subjectID).Scan(
		&subject.ID,
		&subject.DisplayName,
		&subject.Status,
		&subject.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Subject{}, ErrNotFound
		}
		return Subject{}, err
	}
	if updatedAt.Valid {
		subject.UpdatedAt = updatedAt.Time
	} else {
		subject.UpdatedAt = time.Now().UTC()
	}
	return subject, nil
}

func (r *PGRepo) ListActive(ctx context.Context) ([]Subject, error) {
	const query = `
SELECT id, display_name, status, created_at, updated_at
FROM subjects
WHERE status = 'active'
ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Subject{}
	for rows.Next() {
		var subject Subject
		var updatedAt sql.NullTime
		if err := rows.Scan(&subject.ID, &subject.DisplayName, &subject.Status, &subject.CreatedAt, &updatedAt); err != nil {
			return nil, err
		}
		if updatedAt.Valid {
			subject.UpdatedAt = updatedAt.Time
		}
		out = append(out, subject)
	}
	return out, rows.Err()
}

var _ Repo = (*PGRepo)(nil)
