package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insights-backend/internal/eventlog"
	"insights-backend/internal/llm"
	"insights-backend/internal/sessions"
)

type fakeLLM struct {
	mu         sync.Mutex
	calls      []llm.Request
	onGenerate func(req llm.Request) (json.RawMessage, error)
}

func (f *fakeLLM) Generate(ctx context.Context, req llm.Request) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.onGenerate != nil {
		if raw, err := f.onGenerate(req); raw != nil || err != nil {
			return raw, err
		}
	}
	return defaultResponse(req.Task), nil
}

func (f *fakeLLM) callsFor(task llm.Task) []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []llm.Request{}
	for _, call := range f.calls {
		if call.Task == task {
			out = append(out, call)
		}
	}
	return out
}

func defaultResponse(task llm.Task) json.RawMessage {
	switch task {
	case llm.TaskMoodScore:
		return json.RawMessage(`{"moodScore":6,"valence":"neutral","indicators":["calm"],"confidence":0.8}`)
	case llm.TaskTopicActions:
		return json.RawMessage(`{"topics":[{"name":"work stress","salience":0.7}],"actionItems":[{"description":"journal daily","owner":"client"}]}`)
	case llm.TaskBreakthrough:
		return json.RawMessage(`{"breakthroughs":[],"none":true}`)
	default:
		return json.RawMessage(`{"narrative":"steady progress","progressAssessment":"improving","themes":[{"name":"work stress","trajectory":"recurring"}],"recommendedFocus":["boundaries"]}`)
	}
}

type fixture struct {
	jobs     *MemoryRepo
	sessions *sessions.MemoryRepo
	log      *eventlog.MemoryLog
	llm      *fakeLLM
	job      AnalysisJob
}

func newFixture(t *testing.T, sessionCount int) *fixture {
	t.Helper()
	f := &fixture{
		jobs:     NewMemoryRepo(),
		sessions: sessions.NewMemoryRepo(),
		log:      eventlog.NewMemoryLog(),
		llm:      &fakeLLM{},
	}
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= sessionCount; i++ {
		require.NoError(t, f.sessions.Create(ctx, sessions.Session{
			ID:          fmt.Sprintf("sess-%d", i),
			SubjectID:   "subj-1",
			SessionDate: base.AddDate(0, 0, 7*i),
			Transcript:  fmt.Sprintf("transcript %d", i),
		}))
	}
	f.job = AnalysisJob{ID: "job-1", SubjectID: "subj-1", Status: StatusInitializing}
	require.NoError(t, f.jobs.Create(ctx, f.job))
	return f
}

func (f *fixture) orchestrator(workers int) *Orchestrator {
	return &Orchestrator{
		Jobs:          f.jobs,
		Sessions:      f.sessions,
		Log:           f.log,
		LLM:           f.llm,
		Stage1Workers: workers,
	}
}

func TestRunCompletesBothStages(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	require.NoError(t, f.orchestrator(3).Run(ctx, "job-1"))

	job, err := f.jobs.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, job.Status)
	require.NotNil(t, job.CompletedAt)

	for i := 1; i <= 3; i++ {
		session, err := f.sessions.GetByID(ctx, fmt.Sprintf("sess-%d", i))
		require.NoError(t, err)
		assert.Equal(t, sessions.StageDone, session.Stage1Status)
		assert.Equal(t, sessions.StageDone, session.Stage2Status)
		assert.NotEmpty(t, session.Stage1Result)
		assert.NotEmpty(t, session.Stage2Result)
	}

	events, err := f.log.ReadFrom(ctx, "subj-1", 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.True(t, last.Terminal())
	assert.Equal(t, eventlog.StatusComplete, last.Status)

	// Seqs are strictly increasing and gap-free.
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Seq)
	}
}

func TestStage2RunsSequentiallyWithAccumulatedContext(t *testing.T) {
	f := newFixture(t, 3)
	require.NoError(t, f.orchestrator(3).Run(context.Background(), "job-1"))

	calls := f.llm.callsFor(llm.TaskSessionSynthesis)
	require.Len(t, calls, 3)
	assert.Equal(t, "sess-1", calls[0].SessionID)
	assert.Equal(t, "sess-2", calls[1].SessionID)
	assert.Equal(t, "sess-3", calls[2].SessionID)

	assert.Empty(t, calls[0].PriorContext, "first session has no prior context")
	assert.Contains(t, calls[1].PriorContext, "sess-1")
	assert.Contains(t, calls[2].PriorContext, "sess-1")
	assert.Contains(t, calls[2].PriorContext, "sess-2")
}

func TestStage2DegradedContinuationSkipsFailedLink(t *testing.T) {
	f := newFixture(t, 3)
	f.llm.onGenerate = func(req llm.Request) (json.RawMessage, error) {
		if req.Task == llm.TaskSessionSynthesis && req.SessionID == "sess-2" {
			return nil, errors.New("llm server_error: http status 500")
		}
		return nil, nil
	}
	ctx := context.Background()
	require.NoError(t, f.orchestrator(3).Run(ctx, "job-1"))

	job, err := f.jobs.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, job.Status, "one session's failure does not halt the job")

	session2, err := f.sessions.GetByID(ctx, "sess-2")
	require.NoError(t, err)
	assert.Equal(t, sessions.StageFailed, session2.Stage2Status)

	// The 500 is transient, so sess-2 gets one bounded retry before the
	// link is skipped; session 3 then continues from session 1's
	// context, not session 2's.
	calls := f.llm.callsFor(llm.TaskSessionSynthesis)
	require.Len(t, calls, 4)
	assert.Equal(t, "sess-2", calls[2].SessionID, "transient failure retried once")
	assert.Equal(t, "sess-3", calls[3].SessionID)
	assert.Contains(t, calls[3].PriorContext, "sess-1")
	assert.NotContains(t, calls[3].PriorContext, "sess-2")

	events, err := f.log.ReadFrom(ctx, "subj-1", 0)
	require.NoError(t, err)
	errorEvents := 0
	for _, e := range events {
		if e.Type == eventlog.TypeError {
			errorEvents++
			assert.Equal(t, "sess-2", e.SessionID)
		}
	}
	assert.Equal(t, 1, errorEvents)
}

func TestStage1FailureMarksSessionAndContinues(t *testing.T) {
	f := newFixture(t, 2)
	f.llm.onGenerate = func(req llm.Request) (json.RawMessage, error) {
		if req.Task == llm.TaskMoodScore && req.SessionID == "sess-1" {
			return nil, errors.New("llm output invalid: not json at all")
		}
		return nil, nil
	}
	ctx := context.Background()
	require.NoError(t, f.orchestrator(1).Run(ctx, "job-1"))

	session1, err := f.sessions.GetByID(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, sessions.StageFailed, session1.Stage1Status)

	session2, err := f.sessions.GetByID(ctx, "sess-2")
	require.NoError(t, err)
	assert.Equal(t, sessions.StageDone, session2.Stage1Status)

	job, err := f.jobs.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, job.Status)
}

func TestStopMidStage1LeavesRemainingSessionsPending(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	// The stop lands while session 4 is in flight: 1-3 done, 4 allowed
	// to finish, 5-10 never dispatched.
	f.llm.onGenerate = func(req llm.Request) (json.RawMessage, error) {
		if req.Task == llm.TaskMoodScore && req.SessionID == "sess-4" {
			require.NoError(t, f.jobs.RequestStop(ctx, "job-1"))
		}
		return nil, nil
	}
	require.NoError(t, f.orchestrator(1).Run(ctx, "job-1"))

	job, err := f.jobs.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, job.Status)

	for i := 1; i <= 4; i++ {
		session, err := f.sessions.GetByID(ctx, fmt.Sprintf("sess-%d", i))
		require.NoError(t, err)
		assert.Equal(t, sessions.StageDone, session.Stage1Status, "session %d finished in flight", i)
	}
	for i := 5; i <= 10; i++ {
		session, err := f.sessions.GetByID(ctx, fmt.Sprintf("sess-%d", i))
		require.NoError(t, err)
		assert.Equal(t, sessions.StagePending, session.Stage1Status, "session %d never dispatched", i)
		assert.Equal(t, sessions.StagePending, session.Stage2Status)
	}

	events, err := f.log.ReadFrom(ctx, "subj-1", 0)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.True(t, last.Terminal())
	assert.Equal(t, eventlog.StatusStopped, last.Status)
}

type failingLog struct {
	*eventlog.MemoryLog
	failAfter int
	appends   int
}

func (l *failingLog) Append(ctx context.Context, subjectID string, event eventlog.Event) (int64, error) {
	l.appends++
	if l.appends > l.failAfter {
		return 0, errors.New("disk full")
	}
	return l.MemoryLog.Append(ctx, subjectID, event)
}

func TestEventAppendFailureIsFatal(t *testing.T) {
	f := newFixture(t, 2)
	log := &failingLog{MemoryLog: f.log, failAfter: 1}
	orch := f.orchestrator(1)
	orch.Log = log

	ctx := context.Background()
	require.NoError(t, orch.Run(ctx, "job-1"))

	job, err := f.jobs.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, ErrorCodeEventLog, job.ErrorCode)
}

func TestRedeliveredTerminalJobIsIgnored(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	completedAt := time.Now().UTC()
	require.NoError(t, f.jobs.MarkTerminal(ctx, "job-1", StatusComplete, completedAt))

	require.NoError(t, f.orchestrator(1).Run(ctx, "job-1"))
	assert.Empty(t, f.llm.calls, "terminal job must not re-run")
}

func TestGenerateValidRepairsMalformedJSON(t *testing.T) {
	f := newFixture(t, 1)
	broken := true
	client := llmFunc(func(ctx context.Context, req llm.Request) (json.RawMessage, error) {
		if _, ok := llm.FixJSONFromContext(ctx); ok {
			return defaultResponse(req.Task), nil
		}
		if broken {
			broken = false
			return json.RawMessage(`{"moodScore":6,`), nil
		}
		return defaultResponse(req.Task), nil
	})
	orch := f.orchestrator(1)
	raw, err := orch.generateValid(context.Background(), client, llm.Request{Task: llm.TaskMoodScore})
	require.NoError(t, err)
	assert.True(t, json.Valid(raw))
}

type llmFunc func(ctx context.Context, req llm.Request) (json.RawMessage, error)

func (f llmFunc) Generate(ctx context.Context, req llm.Request) (json.RawMessage, error) {
	return f(ctx, req)
}
