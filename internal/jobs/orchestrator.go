package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"insights-backend/internal/eventlog"
	"insights-backend/internal/llm"
	"insights-backend/internal/sessions"
	"insights-backend/internal/shared/metrics"
	"insights-backend/internal/shared/telemetry"
)

// Orchestrator drives one analysis job through its two waves. Stage 1
// fans out per-session sub-analyses across a bounded worker pool.
// Stage 2 runs strictly sequentially in session-date order because each
// call depends on the accumulated context of every session before it.
//
// All progress is reported through the event log, never shared memory,
// so observers in other processes see it. A log append failure is fatal
// to the job: continuing would produce results no observer is told about.
type Orchestrator struct {
	Jobs          Repo
	Sessions      sessions.Repo
	Log           eventlog.Log
	LLM           llm.Client
	Stage1Workers int
}

// errFatalAppend marks an event log append failure inside a stage worker.
type errFatalAppend struct{ err error }

func (e errFatalAppend) Error() string { return fmt.Sprintf("event append: %v", e.err) }
func (e errFatalAppend) Unwrap() error { return e.err }

// Run executes the job to a terminal status. Redelivered messages for
// an already-terminal job are ignored.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	job, err := o.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("job lookup id=%s: %w", jobID, err)
	}
	if job.Terminal() {
		telemetry.Info("job.skip_terminal", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"job_id":     jobID,
			"status":     job.Status,
		})
		return nil
	}

	startedAt := time.Now().UTC()
	if err := o.Jobs.MarkRunning(ctx, jobID, startedAt); err != nil {
		o.failJob(ctx, job, fmt.Errorf("set running failed: %w", err), &startedAt)
		return nil
	}
	metrics.IncJobStarted()
	telemetry.Info("job.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"subject_id":        job.SubjectID,
		"job_id":            job.ID,
		"status":            StatusRunning,
		"status_transition": "initializing->running",
	})

	list, err := o.Sessions.ListBySubject(ctx, job.SubjectID)
	if err != nil {
		o.failJob(ctx, job, fmt.Errorf("session storage list: %w", err), &startedAt)
		return nil
	}
	if len(list) == 0 {
		o.failJob(ctx, job, fmt.Errorf("validation: subject %s has no sessions", job.SubjectID), &startedAt)
		return nil
	}

	llmClient := newRetryingLLM(o.LLM, job.ID, requestIDFromContext(ctx))

	terminalPhase := eventlog.PhaseStage1
	stopped, err := o.runStage1(ctx, job, llmClient, list)
	if err != nil {
		o.failJob(ctx, job, err, &startedAt)
		return nil
	}
	if !stopped {
		terminalPhase = eventlog.PhaseStage2
		stopped, err = o.runStage2(ctx, job, llmClient, list)
		if err != nil {
			o.failJob(ctx, job, err, &startedAt)
			return nil
		}
	}

	completedAt := time.Now().UTC()
	status := StatusComplete
	eventStatus := eventlog.StatusComplete
	if stopped {
		status = StatusStopped
		eventStatus = eventlog.StatusStopped
	}

	// The terminal event closes every open stream for the subject; it
	// must land in the log before the job is marked done.
	if err := o.append(ctx, job.SubjectID, eventlog.Event{
		Phase:  terminalPhase,
		Type:   eventlog.TypePhaseComplete,
		Status: eventStatus,
	}); err != nil {
		o.failJob(ctx, job, errFatalAppend{err}, &startedAt)
		return nil
	}
	if err := o.Jobs.MarkTerminal(ctx, job.ID, status, completedAt); err != nil {
		o.failJob(ctx, job, fmt.Errorf("set terminal failed: %w", err), &startedAt)
		return nil
	}
	if stopped {
		metrics.IncJobStopped()
	} else {
		metrics.IncJobCompleted()
	}
	metrics.ObserveJobDurationMs(durationMs(&startedAt, &completedAt))
	telemetry.Info("job.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"subject_id":        job.SubjectID,
		"job_id":            job.ID,
		"status":            status,
		"status_transition": "running->" + status,
		"duration_ms":       durationMs(&startedAt, &completedAt),
	})
	return nil
}

// runStage1 fans the three sub-analyses out per session, bounded across
// sessions by the worker pool. A sub-analysis failure marks that session
// failed and the job moves on; only event log failures abort. Returns
// whether a stop was honored before every session was dispatched.
func (o *Orchestrator) runStage1(ctx context.Context, job AnalysisJob, llmClient llm.Client, list []sessions.Session) (bool, error) {
	if err := o.append(ctx, job.SubjectID, eventlog.Event{
		Phase:   eventlog.PhaseStage1,
		Type:    eventlog.TypeStart,
		Status:  eventlog.StatusRunning,
		Details: mustDetails(map[string]any{"sessionCount": len(list)}),
	}); err != nil {
		return false, errFatalAppend{err}
	}

	workers := o.Stage1Workers
	if workers <= 0 {
		workers = 3
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	// Stop is cooperative: a session already started finishes its
	// in-flight calls, the rest stay pending. Each worker checks the
	// flag as it picks up its session.
	var stopped atomic.Bool
	for _, session := range list {
		session := session
		group.Go(func() error {
			if stopped.Load() {
				return nil
			}
			if stop, err := o.Jobs.StopRequested(groupCtx, job.ID); err == nil && stop {
				stopped.Store(true)
				return nil
			}
			if groupCtx.Err() != nil {
				return nil
			}
			return o.analyzeSession(groupCtx, job, llmClient, session)
		})
	}
	if err := group.Wait(); err != nil {
		return false, err
	}
	if stopped.Load() {
		return true, nil
	}

	if err := o.append(ctx, job.SubjectID, eventlog.Event{
		Phase:  eventlog.PhaseStage1,
		Type:   eventlog.TypePhaseComplete,
		Status: eventlog.StatusDone,
	}); err != nil {
		return false, errFatalAppend{err}
	}
	return false, nil
}

// analyzeSession runs the three independent Stage 1 sub-analyses for
// one session concurrently and persists the combined result.
func (o *Orchestrator) analyzeSession(ctx context.Context, job AnalysisJob, llmClient llm.Client, session sessions.Session) error {
	if err := o.Sessions.SetStage1Status(ctx, session.ID, sessions.StageRunning); err != nil {
		return fmt.Errorf("session storage set stage1 running id=%s: %w", session.ID, err)
	}

	base := llm.Request{
		SessionID:   session.ID,
		SessionDate: session.SessionDate,
		Transcript:  session.Transcript,
	}

	var (
		mood         MoodResult
		topicActions topicActionsResult
		breaks       breakthroughResult
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		raw, err := o.generateValid(groupCtx, llmClient, withTask(base, llm.TaskMoodScore))
		if err != nil {
			return fmt.Errorf("llm mood score: %w", err)
		}
		mood, err = parseMoodResult(raw)
		return err
	})
	group.Go(func() error {
		raw, err := o.generateValid(groupCtx, llmClient, withTask(base, llm.TaskTopicActions))
		if err != nil {
			return fmt.Errorf("llm topic actions: %w", err)
		}
		topicActions, err = parseTopicActions(raw)
		return err
	})
	group.Go(func() error {
		raw, err := o.generateValid(groupCtx, llmClient, withTask(base, llm.TaskBreakthrough))
		if err != nil {
			return fmt.Errorf("llm breakthrough: %w", err)
		}
		breaks, err = parseBreakthroughs(raw)
		return err
	})

	if err := group.Wait(); err != nil {
		return o.markSessionStageFailed(ctx, job, session, eventlog.PhaseStage1, err)
	}

	result := Stage1Result{
		Mood:          mood,
		Topics:        topicActions.Topics,
		ActionItems:   topicActions.ActionItems,
		Breakthroughs: breaks.Breakthroughs,
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return o.markSessionStageFailed(ctx, job, session, eventlog.PhaseStage1, fmt.Errorf("encode stage1 result: %w", err))
	}
	if err := o.Sessions.SaveStage1Result(ctx, session.ID, payload); err != nil {
		return fmt.Errorf("session storage save stage1 id=%s: %w", session.ID, err)
	}

	// Notifications never carry payloads; observers re-fetch the
	// session from storage after seeing this.
	if err := o.append(ctx, job.SubjectID, eventlog.Event{
		Phase:       eventlog.PhaseStage1,
		Type:        eventlog.TypeSessionComplete,
		SessionID:   session.ID,
		SessionDate: &session.SessionDate,
		Status:      eventlog.StatusDone,
	}); err != nil {
		return errFatalAppend{err}
	}
	return nil
}

// runStage2 walks the sessions in date order, each synthesis consuming
// the context chain built by the ones before it. A failed synthesis is
// flagged and skipped; the chain continues from the last good snapshot.
func (o *Orchestrator) runStage2(ctx context.Context, job AnalysisJob, llmClient llm.Client, list []sessions.Session) (bool, error) {
	if err := o.append(ctx, job.SubjectID, eventlog.Event{
		Phase:  eventlog.PhaseStage2,
		Type:   eventlog.TypeStart,
		Status: eventlog.StatusRunning,
	}); err != nil {
		return false, errFatalAppend{err}
	}

	chain := newContextChain()
	for _, session := range list {
		if stop, err := o.Jobs.StopRequested(ctx, job.ID); err == nil && stop {
			return true, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}

		if err := o.Sessions.SetStage2Status(ctx, session.ID, sessions.StageRunning); err != nil {
			return false, fmt.Errorf("session storage set stage2 running id=%s: %w", session.ID, err)
		}

		prior := chain.Render(chain.Head())
		req := llm.Request{
			Task:         llm.TaskSessionSynthesis,
			SessionID:    session.ID,
			SessionDate:  session.SessionDate,
			Transcript:   session.Transcript,
			PriorContext: prior,
		}
		raw, err := o.generateValid(ctx, llmClient, req)
		if err == nil {
			_, err = parseStage2Result(raw)
		}
		if err != nil {
			if appendErr := o.markSessionStageFailed(ctx, job, session, eventlog.PhaseStage2, fmt.Errorf("llm synthesis: %w", err)); appendErr != nil {
				return false, appendErr
			}
			// Degraded continuation: the chain keeps the last good
			// snapshot instead of halting the remaining sessions.
			continue
		}

		current, err := o.Sessions.GetByID(ctx, session.ID)
		if err != nil {
			return false, fmt.Errorf("session storage reload id=%s: %w", session.ID, err)
		}
		ref := chain.Extend(chain.Head(), contextSnapshot{
			SessionID:   session.ID,
			SessionDate: session.SessionDate,
			Stage1:      current.Stage1Result,
			Stage2:      raw,
		})
		if err := o.Sessions.SaveStage2Result(ctx, session.ID, raw, ref); err != nil {
			return false, fmt.Errorf("session storage save stage2 id=%s: %w", session.ID, err)
		}

		if err := o.append(ctx, job.SubjectID, eventlog.Event{
			Phase:       eventlog.PhaseStage2,
			Type:        eventlog.TypeSessionComplete,
			SessionID:   session.ID,
			SessionDate: &session.SessionDate,
			Status:      eventlog.StatusDone,
		}); err != nil {
			return false, errFatalAppend{err}
		}
	}
	return false, nil
}

// generateValid calls the LLM, measures the call, and repairs malformed
// JSON with a single fix pass before treating it as a failure.
func (o *Orchestrator) generateValid(ctx context.Context, llmClient llm.Client, req llm.Request) (json.RawMessage, error) {
	callStart := time.Now()
	raw, err := llmClient.Generate(ctx, req)
	metrics.ObserveLLMCallDurationMs(float64(time.Since(callStart).Microseconds()) / 1000.0)
	if err != nil {
		return nil, err
	}
	if json.Valid(raw) {
		return raw, nil
	}
	raw, err = llmClient.Generate(llm.WithFixJSON(ctx, string(raw)), req)
	if err != nil {
		return nil, fmt.Errorf("fix retry: %w", err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("llm output invalid after fix retry")
	}
	return raw, nil
}

// markSessionStageFailed records the failure in session storage, emits
// a non-fatal Error event, and lets the job continue.
func (o *Orchestrator) markSessionStageFailed(ctx context.Context, job AnalysisJob, session sessions.Session, phase string, cause error) error {
	setStatus := o.Sessions.SetStage1Status
	if phase == eventlog.PhaseStage2 {
		setStatus = o.Sessions.SetStage2Status
	}
	if err := setStatus(ctx, session.ID, sessions.StageFailed); err != nil {
		return fmt.Errorf("session storage set %s failed id=%s: %w", phase, session.ID, err)
	}

	code, _ := classifyFailure(cause)
	telemetry.Error("job.session_failed", map[string]any{
		"request_id": requestIDFromContext(ctx),
		"subject_id": job.SubjectID,
		"job_id":     job.ID,
		"session_id": session.ID,
		"phase":      phase,
		"error_code": code,
		"error":      sanitizeError(cause),
	})
	if err := o.append(ctx, job.SubjectID, eventlog.Event{
		Phase:       phase,
		Type:        eventlog.TypeError,
		SessionID:   session.ID,
		SessionDate: &session.SessionDate,
		Status:      eventlog.StatusFailed,
		Details:     mustDetails(map[string]any{"errorCode": code}),
	}); err != nil {
		return errFatalAppend{err}
	}
	return nil
}

func (o *Orchestrator) append(ctx context.Context, subjectID string, event eventlog.Event) error {
	if _, err := o.Log.Append(ctx, subjectID, event); err != nil {
		return err
	}
	metrics.IncEventAppended()
	return nil
}

func (o *Orchestrator) failJob(ctx context.Context, job AnalysisJob, cause error, startedAt *time.Time) {
	code, _ := classifyFailure(cause)
	msg := sanitizeError(cause)
	completedAt := time.Now().UTC()
	if err := o.Jobs.Fail(context.Background(), job.ID, code, msg, completedAt); err != nil {
		telemetry.Error("job.fail_update", map[string]any{
			"job_id": job.ID,
			"error":  sanitizeError(err),
			"cause":  msg,
		})
	}
	metrics.IncJobFailed()
	telemetry.Error("job.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"subject_id":        job.SubjectID,
		"job_id":            job.ID,
		"status":            StatusFailed,
		"status_transition": "running->failed",
		"error_code":        code,
		"error":             msg,
		"duration_ms":       durationMs(startedAt, &completedAt),
	})

	// Best effort: give open streams an explicit terminal error
	// instead of a silent hang. Pointless when the log itself failed.
	var fatal errFatalAppend
	if errors.As(cause, &fatal) {
		return
	}
	_ = o.append(context.Background(), job.SubjectID, eventlog.Event{
		Phase:   eventlog.PhaseStage2,
		Type:    eventlog.TypePhaseComplete,
		Status:  eventlog.StatusFailed,
		Details: mustDetails(map[string]any{"errorCode": code}),
	})
}

func withTask(req llm.Request, task llm.Task) llm.Request {
	req.Task = task
	return req
}

func mustDetails(fields map[string]any) json.RawMessage {
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return payload
}

func durationMs(startedAt, completedAt *time.Time) float64 {
	if startedAt == nil || completedAt == nil {
		return 0
	}
	return float64(completedAt.Sub(*startedAt).Microseconds()) / 1000.0
}

func classifyFailure(err error) (string, bool) {
	if err == nil {
		return ErrorCodeInternal, false
	}
	var fatal errFatalAppend
	if errors.As(err, &fatal) {
		return ErrorCodeEventLog, false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCodeLLMTimeout, true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "openai request timeout") {
		return ErrorCodeLLMTimeout, true
	}
	if strings.Contains(msg, "timeout") && strings.Contains(msg, "llm") {
		return ErrorCodeLLMTimeout, true
	}
	if strings.Contains(msg, "schema") || strings.Contains(msg, "llm output invalid") || strings.Contains(msg, "llm output parse") {
		return ErrorCodeLLMSchema, false
	}
	if strings.Contains(msg, "validation") && !strings.Contains(msg, "llm") {
		return ErrorCodeValidation, false
	}
	if strings.Contains(msg, "session storage") || strings.Contains(msg, "storage") || strings.Contains(msg, "set running") || strings.Contains(msg, "set terminal") {
		return ErrorCodeStorage, true
	}
	return ErrorCodeInternal, false
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
