package stream

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"insights-backend/internal/shared/server/respond"
	"insights-backend/internal/shared/telemetry"
)

// Handler exposes the event stream over server-sent events.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches the stream route to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/subjects/:id/events", h.streamEvents)
}

// streamEvents opens an SSE stream of the subject's events. The cursor
// resumes from the Last-Event-ID header (standard SSE reconnect) or a
// cursor query parameter; each event's SSE id carries its seq so the
// browser's automatic reconnect resumes without gaps.
func (h *Handler) streamEvents(c *gin.Context) {
	subjectID := c.Param("id")
	if subjectID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "subject id is required", nil)
		return
	}

	cursor := parseCursor(c)
	envelopes, err := h.Svc.Open(c.Request.Context(), subjectID, cursor)
	if err != nil {
		switch {
		case errors.Is(err, ErrSubjectNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "subject not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to open stream", nil)
		}
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	for envelope := range envelopes {
		var event sse.Event
		if envelope.Connected {
			// The id makes a reconnect before the first real event
			// resume from this cursor rather than a stale one.
			event = sse.Event{
				Id:    strconv.FormatInt(cursor, 10),
				Event: "connected",
				Data:  gin.H{"subjectId": subjectID, "cursor": cursor},
			}
		} else {
			event = sse.Event{
				Id:    strconv.FormatInt(envelope.Event.Seq, 10),
				Event: envelope.Event.Type,
				Data:  envelope.Event,
			}
		}
		if err := sse.Encode(c.Writer, event); err != nil {
			telemetry.Warn("stream.write", map[string]any{
				"subject_id": subjectID,
				"error":      err.Error(),
			})
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func parseCursor(c *gin.Context) int64 {
	raw := c.GetHeader("Last-Event-ID")
	if raw == "" {
		raw = c.Query("cursor")
	}
	if raw == "" {
		return 0
	}
	cursor, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || cursor < 0 {
		return 0
	}
	return cursor
}
