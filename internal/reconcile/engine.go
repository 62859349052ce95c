package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"insights-backend/internal/eventlog"
	"insights-backend/internal/shared/telemetry"
	"insights-backend/internal/stream"
)

// Observer connection states.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
)

const (
	defaultIdentityPollInterval = 1 * time.Second
	defaultDebounceWindow       = 200 * time.Millisecond
	defaultSettleDelay          = 250 * time.Millisecond
)

// IdentityStore reports which subject the observer is currently bound
// to. An empty id means no identity. The engine polls it because the
// identity can be invalidated by an external actor between reads.
// Initializing reports whether an identity is still being set up; the
// engine holds off opening a stream for it until setup finishes.
type IdentityStore interface {
	CurrentSubject(ctx context.Context) (string, error)
	Initializing(ctx context.Context) (bool, error)
}

// StreamOpener opens an event stream for a subject.
type StreamOpener interface {
	Open(ctx context.Context, subjectID string, cursor int64) (<-chan stream.Envelope, error)
}

// Refresher re-fetches fresh session state after a progress
// notification; events never carry payloads.
type Refresher interface {
	Refresh(ctx context.Context, subjectID string, sessionIDs []string) error
}

// Engine keeps an observer's view reconciled with the identity store
// and the event stream. It tears down a stream the moment its identity
// disappears so no callback ever acts on a stale identity, deduplicates
// redelivered events, and debounces refresh calls.
type Engine struct {
	Identity  IdentityStore
	Streams   StreamOpener
	Refresher Refresher

	IdentityPollInterval time.Duration
	DebounceWindow       time.Duration
	SettleDelay          time.Duration

	mu             sync.Mutex
	state          State
	subjectID      string
	invalidSubject string
	cursor         int64
	streamCancel   context.CancelFunc
	streamActive   bool
	seen           map[string]struct{}
	refreshing     map[string]bool
	pending        []string
	debounce       *time.Timer
}

// Run polls the identity store and reconciles until ctx is canceled.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.IdentityPollInterval
	if interval <= 0 {
		interval = defaultIdentityPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		e.Reconcile(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			e.teardown()
			return ctx.Err()
		}
	}
}

// Reconcile performs one identity check and any resulting transition.
func (e *Engine) Reconcile(ctx context.Context) {
	subjectID, err := e.Identity.CurrentSubject(ctx)
	if err != nil {
		telemetry.Warn("reconcile.identity", map[string]any{"error": err.Error()})
		return
	}

	e.mu.Lock()
	bound := e.subjectID
	active := e.streamActive
	invalid := e.invalidSubject
	e.mu.Unlock()

	switch {
	case subjectID == "" && bound == "":
		return
	case subjectID == "":
		// Identity disappeared: the stream is bound to an identity
		// that no longer exists, tear it down before anything acts
		// on it.
		e.teardown()
	case subjectID == invalid:
		return
	case subjectID != bound:
		if initializing, err := e.Identity.Initializing(ctx); err != nil || initializing {
			// Not usable yet; a later tick picks it up once setup
			// finishes.
			return
		}
		e.teardown()
		e.openStream(ctx, subjectID, 0)
	case !active:
		// Same identity, stream lost to a transient error: reconnect
		// from the last delivered cursor; dedupe absorbs redelivery.
		e.mu.Lock()
		cursor := e.cursor
		e.mu.Unlock()
		e.openStream(ctx, subjectID, cursor)
	}
}

func (e *Engine) openStream(ctx context.Context, subjectID string, cursor int64) {
	e.mu.Lock()
	e.subjectID = subjectID
	e.state = StateConnecting
	e.mu.Unlock()

	streamCtx, cancel := context.WithCancel(ctx)
	ch, err := e.Streams.Open(streamCtx, subjectID, cursor)
	if err != nil {
		cancel()
		if errors.Is(err, stream.ErrSubjectNotFound) {
			// Permanent: do not retry until the identity changes.
			e.mu.Lock()
			e.invalidSubject = subjectID
			e.subjectID = ""
			e.state = StateIdle
			e.mu.Unlock()
			telemetry.Warn("reconcile.open_permanent", map[string]any{"subject_id": subjectID})
			return
		}
		// Transient: identity stays bound, next tick reconnects.
		e.mu.Lock()
		e.state = StateConnecting
		e.mu.Unlock()
		telemetry.Warn("reconcile.open_transient", map[string]any{
			"subject_id": subjectID,
			"error":      err.Error(),
		})
		return
	}

	e.mu.Lock()
	e.streamCancel = cancel
	e.streamActive = true
	e.mu.Unlock()

	go e.consume(ctx, subjectID, ch)
}

func (e *Engine) consume(ctx context.Context, subjectID string, ch <-chan stream.Envelope) {
	for envelope := range ch {
		if envelope.Connected {
			e.mu.Lock()
			if e.subjectID == subjectID {
				e.state = StateConnected
			}
			e.mu.Unlock()
			continue
		}
		e.handleEvent(ctx, subjectID, envelope.Event)
	}

	e.mu.Lock()
	if e.subjectID == subjectID {
		e.state = StateIdle
		e.streamActive = false
	}
	e.mu.Unlock()
}

// handleEvent deduplicates by sessionId+phase and batches a refresh.
// Redelivery after reconnect is expected; acting on it twice is not.
func (e *Engine) handleEvent(ctx context.Context, subjectID string, event eventlog.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.subjectID != subjectID {
		// Stale stream: identity changed while the event was in flight.
		return
	}
	if event.Seq > e.cursor {
		e.cursor = event.Seq
	}

	if event.Type != eventlog.TypeSessionComplete && event.Type != eventlog.TypePhaseComplete {
		return
	}
	if event.SessionID == "" {
		return
	}

	key := event.SessionID + "|" + event.Phase
	if e.seen == nil {
		e.seen = make(map[string]struct{})
	}
	if _, dup := e.seen[key]; dup {
		return
	}
	e.seen[key] = struct{}{}

	if e.refreshing == nil {
		e.refreshing = make(map[string]bool)
	}
	e.refreshing[event.SessionID] = true
	e.pending = append(e.pending, event.SessionID)

	// Debounce: a burst of events collapses into one refresh, fired
	// after a settle delay to tolerate read-after-write lag.
	window := e.DebounceWindow
	if window <= 0 {
		window = defaultDebounceWindow
	}
	if e.debounce != nil {
		e.debounce.Stop()
	}
	e.debounce = time.AfterFunc(window, func() { e.flush(ctx, subjectID) })
}

func (e *Engine) flush(ctx context.Context, subjectID string) {
	settle := e.SettleDelay
	if settle <= 0 {
		settle = defaultSettleDelay
	}
	select {
	case <-time.After(settle):
	case <-ctx.Done():
		return
	}

	e.mu.Lock()
	if e.subjectID != subjectID || len(e.pending) == 0 {
		e.mu.Unlock()
		return
	}
	batch := make([]string, 0, len(e.pending))
	dedup := map[string]struct{}{}
	for _, sessionID := range e.pending {
		if _, ok := dedup[sessionID]; ok {
			continue
		}
		dedup[sessionID] = struct{}{}
		batch = append(batch, sessionID)
	}
	e.pending = nil
	e.mu.Unlock()

	err := e.Refresher.Refresh(ctx, subjectID, batch)
	if err != nil {
		telemetry.Warn("reconcile.refresh", map[string]any{
			"subject_id": subjectID,
			"sessions":   len(batch),
			"error":      err.Error(),
		})
	}

	// Flags clear only after the refresh resolves, so the UI keeps
	// its loading indicator up for the whole round trip.
	e.mu.Lock()
	for _, sessionID := range batch {
		delete(e.refreshing, sessionID)
	}
	e.mu.Unlock()
}

func (e *Engine) teardown() {
	e.mu.Lock()
	cancel := e.streamCancel
	e.streamCancel = nil
	e.streamActive = false
	e.subjectID = ""
	e.state = StateIdle
	e.pending = nil
	e.seen = nil
	e.refreshing = nil
	if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// State returns the engine's connection state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == "" {
		return StateIdle
	}
	return e.state
}

// Refreshing reports whether a session has a refresh in flight; the UI
// layer renders it as a loading indicator.
func (e *Engine) Refreshing(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refreshing[sessionID]
}
