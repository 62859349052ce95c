package llm

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Task identifies which analysis a generation request performs.
type Task string

const (
	// Stage 1 sub-analyses, independent per session.
	TaskMoodScore    Task = "mood_score"
	TaskTopicActions Task = "topic_actions"
	TaskBreakthrough Task = "breakthrough"
	// Stage 2, depends on the accumulated context of prior sessions.
	TaskSessionSynthesis Task = "session_synthesis"
)

// Client abstracts LLM providers for session analysis.
type Client interface {
	Generate(ctx context.Context, req Request) (json.RawMessage, error)
}

// Request captures the inputs for one analysis call.
type Request struct {
	Task        Task
	SessionID   string
	SessionDate time.Time
	Transcript  string
	// PriorContext is the rendered accumulated context from earlier
	// sessions; empty for Stage 1 tasks and for the first session.
	PriorContext string
}

type fixJSONKey struct{}

// WithFixJSON returns a context signaling a fix-JSON retry with the given raw output.
func WithFixJSON(ctx context.Context, raw string) context.Context {
	return context.WithValue(ctx, fixJSONKey{}, raw)
}

// FixJSONFromContext returns the raw JSON to repair, if any.
func FixJSONFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(fixJSONKey{})
	raw, ok := val.(string)
	return raw, ok
}

type promptHashSinkKey struct{}

// WithPromptHashCapture returns a context whose provider writes the prompt hash into sink.
func WithPromptHashCapture(ctx context.Context, sink *string) context.Context {
	if sink == nil {
		return ctx
	}
	return context.WithValue(ctx, promptHashSinkKey{}, sink)
}

// PromptHashSinkFromContext returns the prompt hash sink, if any.
func PromptHashSinkFromContext(ctx context.Context) (*string, bool) {
	sink, ok := ctx.Value(promptHashSinkKey{}).(*string)
	return sink, ok
}

// ErrNotImplemented is returned by the placeholder client.
var ErrNotImplemented = errors.New("LLM not implemented")

// PlaceholderClient is a stub implementation until provider wiring is added.
type PlaceholderClient struct{}

// Generate returns ErrNotImplemented.
func (PlaceholderClient) Generate(ctx context.Context, req Request) (json.RawMessage, error) {
	_ = ctx
	_ = req
	return nil, ErrNotImplemented
}
