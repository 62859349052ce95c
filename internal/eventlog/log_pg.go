package eventlog

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// PGLog implements Log using Postgres. The subject_events table is the
// durable boundary between the worker process (producer) and the API
// process (readers): progress is visible across processes because it is
// a row, never shared memory.
type PGLog struct {
	DB *sql.DB
}

// Append inserts the event with the subject's next seq and returns it.
// Seq comes from the subject_event_counters row, not MAX(seq) over the
// events themselves: retention purges delete event rows, and a counter
// derived from surviving rows would restart below cursors already
// handed to observers. The counter row outlives every purge, so seq
// stays strictly increasing for the subject's whole lifetime. The
// upsert takes a row lock, and the single-writer-per-subject discipline
// means it is never contended in practice.
func (l *PGLog) Append(ctx context.Context, subjectID string, event Event) (int64, error) {
	if strings.TrimSpace(subjectID) == "" {
		return 0, ErrEmptySubject
	}
	const query = `
WITH next AS (
	INSERT INTO subject_event_counters (subject_id, last_seq)
	VALUES ($1, 1)
	ON CONFLICT (subject_id) DO UPDATE SET last_seq = subject_event_counters.last_seq + 1
	RETURNING last_seq
)
INSERT INTO subject_events (subject_id, seq, phase, type, session_id, session_date, status, details, created_at)
SELECT $1, next.last_seq, $2, $3, $4, $5, $6, $7, $8 FROM next
RETURNING seq`
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var sessionID any
	if event.SessionID != "" {
		sessionID = event.SessionID
	}
	var details any
	if len(event.Details) > 0 {
		details = []byte(event.Details)
	}
	var seq int64
	err := l.DB.QueryRowContext(ctx, query,
		subjectID,
		event.Phase,
		event.Type,
		sessionID,
		event.SessionDate,
		event.Status,
		details,
		createdAt,
	).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// ReadFrom returns events with seq > cursor in seq order.
func (l *PGLog) ReadFrom(ctx context.Context, subjectID string, cursor int64) ([]Event, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, ErrEmptySubject
	}
	const query = `
SELECT seq, subject_id, phase, type, session_id, session_date, status, details, created_at
FROM subject_events
WHERE subject_id = $1 AND seq > $2
ORDER BY seq ASC`
	rows, err := l.DB.QueryContext(ctx, query, subjectID, cursor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			e           Event
			sessionID   sql.NullString
			sessionDate sql.NullTime
			details     []byte
		)
		if err := rows.Scan(&e.Seq, &e.SubjectID, &e.Phase, &e.Type, &sessionID, &sessionDate, &e.Status, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		if sessionID.Valid {
			e.SessionID = sessionID.String
		}
		if sessionDate.Valid {
			t := sessionDate.Time
			e.SessionDate = &t
		}
		if len(details) > 0 {
			e.Details = details
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// PurgeOlderThan deletes events created before cutoff and returns the
// count. It never touches subject_event_counters, so seq assignment
// survives the retention boundary.
func (l *PGLog) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.DB.ExecContext(ctx, `DELETE FROM subject_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ Log = (*PGLog)(nil)
