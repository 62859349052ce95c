package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"insights-backend/internal/eventlog"
	"insights-backend/internal/shared/metrics"
	"insights-backend/internal/shared/telemetry"
	"insights-backend/internal/subjects"
)

// ErrSubjectNotFound is permanent: the caller must not retry the open.
var ErrSubjectNotFound = errors.New("subject not found")

const defaultPollInterval = 500 * time.Millisecond

// Envelope is one record delivered on a stream. The first envelope is
// always the synthetic connected acknowledgment, so observers can tell
// "reachable but nothing happened yet" from "not reachable".
type Envelope struct {
	Connected bool
	Event     eventlog.Event
}

// Service tails the event log for a subject and forwards new events to
// an observer. It polls rather than subscribing: reads are snapshot
// cursor reads, so a crash or reconnect loses nothing, at the cost of a
// small delivery latency.
type Service struct {
	Log          eventlog.Log
	Subjects     subjects.Repo
	PollInterval time.Duration
}

// Open starts a stream of envelopes for the subject, beginning after
// cursor (0 means from the start of the retained log). The channel
// closes after a terminal event is forwarded or ctx is canceled. Within
// one stream no event is delivered twice; a new stream after reconnect
// may redeliver, and observers deduplicate.
func (s *Service) Open(ctx context.Context, subjectID string, cursor int64) (<-chan Envelope, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject id is required")
	}
	if _, err := s.Subjects.GetByID(ctx, subjectID); err != nil {
		if errors.Is(err, subjects.ErrNotFound) {
			return nil, ErrSubjectNotFound
		}
		return nil, err
	}

	interval := s.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	metrics.IncStreamOpened()
	out := make(chan Envelope)
	go s.tail(ctx, subjectID, cursor, interval, out)
	return out, nil
}

func (s *Service) tail(ctx context.Context, subjectID string, cursor int64, interval time.Duration, out chan<- Envelope) {
	defer close(out)

	select {
	case out <- Envelope{Connected: true}:
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		events, err := s.Log.ReadFrom(ctx, subjectID, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Transient: keep the stream open and retry next tick.
			telemetry.Warn("stream.read", map[string]any{
				"subject_id": subjectID,
				"cursor":     cursor,
				"error":      err.Error(),
			})
		}
		for _, event := range events {
			select {
			case out <- Envelope{Event: event}:
			case <-ctx.Done():
				return
			}
			cursor = event.Seq
			if event.Terminal() {
				return
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
