package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"

	"insights-backend/internal/llm"
	"insights-backend/internal/shared/telemetry"
)

const llmRetryBaseDelay = 300 * time.Millisecond

// retryingLLM retries transient generation failures once before giving
// up. Persistent failures surface to the caller, which marks the
// session and moves on rather than aborting the job.
type retryingLLM struct {
	base      llm.Client
	requestID string
	jobID     string
}

func newRetryingLLM(base llm.Client, jobID, requestID string) llm.Client {
	if base == nil {
		return nil
	}
	return retryingLLM{
		base:      base,
		requestID: requestID,
		jobID:     jobID,
	}
}

func (r retryingLLM) Generate(ctx context.Context, req llm.Request) (json.RawMessage, error) {
	resp, err := r.base.Generate(ctx, req)
	if err == nil || !shouldRetryLLM(err) {
		return resp, err
	}

	telemetry.Warn("llm.retry", map[string]any{
		"request_id": r.requestID,
		"job_id":     r.jobID,
		"task":       string(req.Task),
		"session_id": req.SessionID,
		"attempt":    1,
		"error":      sanitizeError(err),
	})
	select {
	case <-time.After(llmRetryBaseDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return r.base.Generate(ctx, req)
}

func shouldRetryLLM(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "http status 5") || strings.Contains(msg, "server_error") {
		return true
	}
	if strings.Contains(msg, "timeout") && (strings.Contains(msg, "openai") || strings.Contains(msg, "llm") || strings.Contains(msg, "client.timeout")) {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "eof") {
		return true
	}

	return false
}
