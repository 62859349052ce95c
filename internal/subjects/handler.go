package subjects

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"insights-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the subjects service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches subject routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/subjects", h.createSubject)
	rg.GET("/subjects", h.listSubjects)
	rg.GET("/subjects/:id", h.getSubject)
}

type createSubjectRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

func (h *Handler) createSubject(c *gin.Context) {
	var req createSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "displayName is required", nil)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		req.ID = uuid.NewString()
	}

	subject := Subject{ID: req.ID, DisplayName: req.DisplayName, Status: StatusActive}
	if err := h.Svc.Upsert(c.Request.Context(), subject); err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to save subject", nil)
		return
	}

	respond.JSON(c, http.StatusCreated, gin.H{"id": subject.ID, "displayName": subject.DisplayName})
}

func (h *Handler) listSubjects(c *gin.Context) {
	list, err := h.Svc.ListActive(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list subjects", nil)
		return
	}
	if list == nil {
		list = []Subject{}
	}
	respond.JSON(c, http.StatusOK, gin.H{"subjects": list})
}

func (h *Handler) getSubject(c *gin.Context) {
	subjectID := c.Param("id")
	if subjectID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "subject id is required", nil)
		return
	}

	subject, err := h.Svc.GetByID(c.Request.Context(), subjectID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "subject not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch subject", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, subject)
}
