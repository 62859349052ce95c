package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insights-backend/internal/eventlog"
)

func newStreamRouter(t *testing.T) (*gin.Engine, *eventlog.MemoryLog) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, log := newStreamFixture(t)
	handler := NewHandler(svc)

	router := gin.New()
	group := router.Group("/api/v1")
	handler.RegisterRoutes(group)
	return router, log
}

func TestStreamEventsDeliversSSEUntilTerminal(t *testing.T) {
	router, log := newStreamRouter(t)
	appendEvents(t, log,
		eventlog.Event{Phase: eventlog.PhaseStage1, Type: eventlog.TypeStart, Status: eventlog.StatusRunning},
		eventlog.Event{Phase: eventlog.PhaseStage2, Type: eventlog.TypePhaseComplete, Status: eventlog.StatusComplete},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/subjects/subj-1/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event:connected")
	assert.Contains(t, body, "event:start")
	assert.Contains(t, body, "event:phase_complete")
	assert.Contains(t, body, "id:2")
}

func TestStreamEventsResumesFromLastEventID(t *testing.T) {
	router, log := newStreamRouter(t)
	appendEvents(t, log,
		eventlog.Event{Phase: eventlog.PhaseStage1, Type: eventlog.TypeStart, Status: eventlog.StatusRunning},
		eventlog.Event{Phase: eventlog.PhaseStage1, Type: eventlog.TypeSessionComplete, SessionID: "sess-1", Status: eventlog.StatusDone},
		eventlog.Event{Phase: eventlog.PhaseStage2, Type: eventlog.TypePhaseComplete, Status: eventlog.StatusComplete},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/subjects/subj-1/events", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "2")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, "id:2\nevent:connected",
		"connected frame carries the request cursor so an early reconnect resumes from it")
	assert.NotContains(t, body, "id:1\n")
	assert.NotContains(t, body, "sess-1")
	assert.Contains(t, body, "id:3")
}

func TestStreamEventsUnknownSubjectReturns404(t *testing.T) {
	router, _ := newStreamRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subjects/missing/events", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, strings.Contains(rec.Header().Get("Content-Type"), "text/event-stream"))
}
