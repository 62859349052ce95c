package sessions

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"insights-backend/internal/shared/server/respond"
	"insights-backend/internal/subjects"
)

// Handler wires HTTP handlers for session ingestion and retrieval.
type Handler struct {
	Repo     Repo
	Subjects subjects.Repo
}

// NewHandler constructs a Handler.
func NewHandler(repo Repo, subjectRepo subjects.Repo) *Handler {
	return &Handler{Repo: repo, Subjects: subjectRepo}
}

// RegisterRoutes attaches session routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/subjects/:id/sessions", h.createSession)
	rg.GET("/subjects/:id/sessions", h.listSessions)
	rg.GET("/sessions/:id", h.getSession)
}

type createSessionRequest struct {
	SessionDate string `json:"sessionDate"`
	Transcript  string `json:"transcript"`
}

func (h *Handler) createSession(c *gin.Context) {
	subjectID := c.Param("id")
	if subjectID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "subject id is required", nil)
		return
	}
	if _, err := h.Subjects.GetByID(c.Request.Context(), subjectID); err != nil {
		switch {
		case errors.Is(err, subjects.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "subject not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to save session", nil)
		}
		return
	}

	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if strings.TrimSpace(req.Transcript) == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "transcript is required", nil)
		return
	}
	sessionDate, err := time.Parse("2006-01-02", req.SessionDate)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "sessionDate must be YYYY-MM-DD", nil)
		return
	}

	session := Session{
		ID:          uuid.NewString(),
		SubjectID:   subjectID,
		SessionDate: sessionDate,
		Transcript:  req.Transcript,
	}
	if err := h.Repo.Create(c.Request.Context(), session); err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to save session", nil)
		return
	}

	respond.JSON(c, http.StatusCreated, gin.H{
		"id":          session.ID,
		"subjectId":   subjectID,
		"sessionDate": req.SessionDate,
	})
}

func (h *Handler) listSessions(c *gin.Context) {
	subjectID := c.Param("id")
	if subjectID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "subject id is required", nil)
		return
	}

	list, err := h.Repo.ListBySubject(c.Request.Context(), subjectID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list sessions", nil)
		return
	}

	respond.JSON(c, http.StatusOK, list)
}

func (h *Handler) getSession(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "session id is required", nil)
		return
	}

	session, err := h.Repo.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "session not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch session", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, session)
}
