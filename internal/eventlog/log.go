package eventlog

import (
	"context"
	"errors"
	"time"
)

// ErrEmptySubject indicates an append or read without a subject ID.
var ErrEmptySubject = errors.New("subject id is required")

// Log is an append-only, per-subject ordered log of progress events.
//
// Append assigns and returns the event's seq. Callers must ensure a
// single active writer per subject; the log guarantees gap-free,
// strictly increasing seqs only under that discipline. ReadFrom returns
// a snapshot of events with seq > cursor in seq order; it never blocks
// waiting for new events.
type Log interface {
	Append(ctx context.Context, subjectID string, event Event) (int64, error)
	ReadFrom(ctx context.Context, subjectID string, cursor int64) ([]Event, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
