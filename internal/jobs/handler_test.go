package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Service, *MemoryRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, repo, _ := newServiceFixture(t)
	handler := NewHandler(svc)

	router := gin.New()
	group := router.Group("/api/v1")
	handler.RegisterRoutes(group)
	return router, svc, repo
}

func doRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestStartJobReturnsAccepted(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodPost, "/api/v1/subjects/subj-1/analyses")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["jobId"])
	assert.Equal(t, "subj-1", body["subjectId"])
	assert.Equal(t, StatusInitializing, body["status"])
}

func TestStartJobUnknownSubjectReturns404(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodPost, "/api/v1/subjects/nope/analyses")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJobReturnsStatus(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	job, err := svc.Start(context.Background(), "subj-1")
	require.NoError(t, err)

	rec := doRequest(router, http.MethodGet, "/api/v1/analyses/"+job.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, job.ID, body["jobId"])
	assert.Equal(t, StatusInitializing, body["status"])
}

func TestGetJobIncludesErrorFieldsWhenFailed(t *testing.T) {
	router, svc, repo := newTestRouter(t)
	job, err := svc.Start(context.Background(), "subj-1")
	require.NoError(t, err)
	require.NoError(t, repo.Fail(context.Background(), job.ID, ErrorCodeLLMTimeout, "llm timed out", time.Now().UTC()))

	rec := doRequest(router, http.MethodGet, "/api/v1/analyses/"+job.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusFailed, body["status"])
	assert.Equal(t, ErrorCodeLLMTimeout, body["errorCode"])
	assert.Equal(t, "llm timed out", body["errorMessage"])
}

func TestGetJobUnknownReturns404(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/api/v1/analyses/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJobPollLimiterReturns429(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	job, err := svc.Start(context.Background(), "subj-1")
	require.NoError(t, err)

	first := doRequest(router, http.MethodGet, "/api/v1/analyses/"+job.ID)
	require.Equal(t, http.StatusOK, first.Code)

	second := doRequest(router, http.MethodGet, "/api/v1/analyses/"+job.ID)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
}

func TestStopJobReturnsAccepted(t *testing.T) {
	router, svc, repo := newTestRouter(t)
	job, err := svc.Start(context.Background(), "subj-1")
	require.NoError(t, err)

	rec := doRequest(router, http.MethodPost, "/api/v1/analyses/"+job.ID+"/stop")
	require.Equal(t, http.StatusAccepted, rec.Code)

	stop, err := repo.StopRequested(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, stop)
}

func TestStopTerminalJobReturns409(t *testing.T) {
	router, svc, repo := newTestRouter(t)
	job, err := svc.Start(context.Background(), "subj-1")
	require.NoError(t, err)
	require.NoError(t, repo.MarkTerminal(context.Background(), job.ID, StatusStopped, time.Now().UTC()))

	rec := doRequest(router, http.MethodPost, "/api/v1/analyses/"+job.ID+"/stop")
	assert.Equal(t, http.StatusConflict, rec.Code)
}
