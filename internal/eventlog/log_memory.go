package eventlog

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryLog stores events in memory and is safe for concurrent use.
// It backs dev mode and tests; cross-process visibility requires PGLog.
type MemoryLog struct {
	mu        sync.RWMutex
	bySubject map[string][]Event
	lastSeq   map[string]int64
}

// NewMemoryLog constructs a MemoryLog.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		bySubject: make(map[string][]Event),
		lastSeq:   make(map[string]int64),
	}
}

// Append assigns the next seq for the subject and stores the event.
func (l *MemoryLog) Append(ctx context.Context, subjectID string, event Event) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(subjectID) == "" {
		return 0, ErrEmptySubject
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastSeq[subjectID]++
	event.Seq = l.lastSeq[subjectID]
	event.SubjectID = subjectID
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	l.bySubject[subjectID] = append(l.bySubject[subjectID], event)
	return event.Seq, nil
}

// ReadFrom returns events with seq > cursor in append order.
func (l *MemoryLog) ReadFrom(ctx context.Context, subjectID string, cursor int64) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(subjectID) == "" {
		return nil, ErrEmptySubject
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []Event{}
	for _, e := range l.bySubject[subjectID] {
		if e.Seq > cursor {
			out = append(out, e)
		}
	}
	return out, nil
}

// PurgeOlderThan drops events created before cutoff. Seqs of surviving
// events (and the per-subject counter) are preserved so cursors remain valid.
func (l *MemoryLog) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var purged int64
	for subjectID, events := range l.bySubject {
		kept := events[:0:0]
		for _, e := range events {
			if e.CreatedAt.Before(cutoff) {
				purged++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(l.bySubject, subjectID)
			continue
		}
		l.bySubject[subjectID] = kept
	}
	return purged, nil
}

var _ Log = (*MemoryLog)(nil)
