package sessions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insights-backend/internal/subjects"
)

func newSessionsRouter(t *testing.T) (*gin.Engine, *MemoryRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := NewMemoryRepo()
	subjectRepo := subjects.NewMemoryRepo()
	require.NoError(t, subjectRepo.Upsert(context.Background(), subjects.Subject{ID: "subj-1", DisplayName: "Subject One"}))
	handler := NewHandler(repo, subjectRepo)
	r := gin.New()
	handler.RegisterRoutes(r.Group("/api/v1"))
	return r, repo
}

func TestCreateSession(t *testing.T) {
	r, repo := newSessionsRouter(t)

	body := strings.NewReader(`{"sessionDate":"2026-03-10","transcript":"Today we talked about sleep."}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/subjects/subj-1/sessions", body)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	require.NotEmpty(t, out["id"])

	stored, err := repo.GetByID(req.Context(), out["id"])
	require.NoError(t, err)
	assert.Equal(t, "subj-1", stored.SubjectID)
	assert.Equal(t, StagePending, stored.Stage1Status)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), stored.SessionDate)
}

func TestCreateSessionUnknownSubject(t *testing.T) {
	r, _ := newSessionsRouter(t)

	body := strings.NewReader(`{"sessionDate":"2026-03-10","transcript":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/subjects/ghost/sessions", body)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestCreateSessionRejectsBadDate(t *testing.T) {
	r, _ := newSessionsRouter(t)

	body := strings.NewReader(`{"sessionDate":"10/03/2026","transcript":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/subjects/subj-1/sessions", body)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCreateSessionRequiresTranscript(t *testing.T) {
	r, _ := newSessionsRouter(t)

	body := strings.NewReader(`{"sessionDate":"2026-03-10"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/subjects/subj-1/sessions", body)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestListSessionsOrderedByDate(t *testing.T) {
	r, repo := newSessionsRouter(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, Session{ID: "s-late", SubjectID: "subj-1", SessionDate: time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC), Transcript: "b"}))
	require.NoError(t, repo.Create(ctx, Session{ID: "s-early", SubjectID: "subj-1", SessionDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), Transcript: "a"}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subjects/subj-1/sessions", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var list []Session
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "s-early", list[0].ID)
	assert.Equal(t, "s-late", list[1].ID)
}

func TestListSessionsOmitsTranscript(t *testing.T) {
	r, repo := newSessionsRouter(t)
	require.NoError(t, repo.Create(context.Background(), Session{ID: "s-1", SubjectID: "subj-1", SessionDate: time.Now().UTC(), Transcript: "private content"}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subjects/subj-1/sessions", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.NotContains(t, resp.Body.String(), "private content")
}

func TestGetSessionNotFound(t *testing.T) {
	r, _ := newSessionsRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/ghost", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusNotFound, resp.Code)
}
