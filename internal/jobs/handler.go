package jobs

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"insights-backend/internal/shared/server/middleware"
	"insights-backend/internal/shared/server/respond"
	"insights-backend/internal/subjects"
)

// Handler wires HTTP handlers to the jobs service.
type Handler struct {
	Svc     *Service
	limiter *pollLimiter
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc, limiter: newPollLimiter(pollLimitWindow, nil)}
}

// RegisterRoutes attaches job routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/subjects/:id/analyses", h.startJob)
	rg.GET("/analyses/:id", h.getJob)
	rg.POST("/analyses/:id/stop", h.stopJob)
}

func (h *Handler) startJob(c *gin.Context) {
	subjectID := c.Param("id")
	if subjectID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "subject id is required", nil)
		return
	}

	job, err := h.Svc.Start(WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c)), subjectID)
	if err != nil {
		switch {
		case errors.Is(err, subjects.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "subject not found", nil)
		case errors.Is(err, ErrJobQueueNotConfigured):
			respond.Error(c, http.StatusServiceUnavailable, "not_configured", "analysis backend not configured", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start analysis", nil)
		}
		return
	}

	respond.JSON(c, http.StatusAccepted, gin.H{
		"jobId":     job.ID,
		"subjectId": job.SubjectID,
		"status":    job.Status,
	})
}

func (h *Handler) getJob(c *gin.Context) {
	jobID := c.Param("id")
	if jobID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "job id is required", nil)
		return
	}

	observerID := middleware.ObserverIDFromContext(c)
	if !h.limiter.Allow(observerID, jobID) {
		c.Header("Retry-After", "1")
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "polling too frequently", nil)
		return
	}

	job, err := h.Svc.Get(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch analysis", nil)
		}
		return
	}

	resp := gin.H{
		"jobId":     job.ID,
		"subjectId": job.SubjectID,
		"status":    job.Status,
		"createdAt": job.CreatedAt,
	}
	if job.StartedAt != nil {
		resp["startedAt"] = job.StartedAt
	}
	if job.CompletedAt != nil {
		resp["completedAt"] = job.CompletedAt
	}
	if job.Status == StatusFailed {
		resp["errorCode"] = job.ErrorCode
		resp["errorMessage"] = job.ErrorMessage
	}

	respond.JSON(c, http.StatusOK, resp)
}

func (h *Handler) stopJob(c *gin.Context) {
	jobID := c.Param("id")
	if jobID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "job id is required", nil)
		return
	}

	err := h.Svc.Stop(WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c)), jobID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		case errors.Is(err, ErrJobTerminal):
			respond.Error(c, http.StatusConflict, "already_terminal", "analysis already finished", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to stop analysis", nil)
		}
		return
	}

	respond.Accepted(c, gin.H{"jobId": jobID, "stopRequested": true})
}
