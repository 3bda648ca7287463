package recovery

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"interview-backend/internal/interviews"
	"interview-backend/internal/shared/requestid"
	"interview-backend/internal/shared/server/respond"
)

// Handler exposes the recovery operator surface over HTTP.
type Handler struct {
	Engine  *Engine
	Trigger *Trigger
}

// NewHandler constructs a Handler.
func NewHandler(engine *Engine, trigger *Trigger) *Handler {
	return &Handler{Engine: engine, Trigger: trigger}
}

// RegisterRoutes attaches recovery routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/recovery")
	g.POST("/run", h.run)
	g.GET("/status", h.status)
	g.GET("/orphaned", h.orphaned)
	g.POST("/interviews/:id/retry", h.forceRetry)
	g.POST("/cleanup", h.cleanup)
}

func (h *Handler) run(c *gin.Context) {
	ctx := c.Request.Context()
	wait, _ := strconv.ParseBool(c.Query("wait"))
	if wait {
		res, err := h.Trigger.RunNow(ctx, "api")
		if err != nil {
			respond.Error(c, http.StatusInternalServerError, "recovery_failed", "recovery cycle finished with errors", gin.H{"result": res})
			return
		}
		respond.OK(c, gin.H{"result": res})
		return
	}

	started := h.Trigger.RunInBackground(ctx, "api")
	respond.JSON(c, http.StatusAccepted, gin.H{
		"started":   started,
		"requestId": requestid.From(ctx),
		"message":   backgroundMessage(started),
	})
}

func backgroundMessage(started bool) string {
	if started {
		return "recovery cycle started in background"
	}
	return "a background recovery cycle is already running"
}

func (h *Handler) status(c *gin.Context) {
	report, err := h.Engine.Status(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to build status report", nil)
		return
	}
	body := gin.H{"report": report}
	if last, ok := h.Trigger.Last(); ok {
		body["lastRun"] = last
	}
	respond.OK(c, body)
}

func (h *Handler) orphaned(c *gin.Context) {
	list, err := h.Engine.ListOrphaned(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list orphaned interviews", nil)
		return
	}
	respond.OK(c, gin.H{"count": len(list), "interviews": list})
}

func (h *Handler) forceRetry(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "interview id is required", nil)
		return
	}
	outcome, err := h.Engine.ForceRetry(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, interviews.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "interview not found", nil)
		case errors.Is(err, ErrNotRetryable):
			respond.Error(c, http.StatusConflict, "not_retryable", err.Error(), nil)
		case errors.Is(err, ErrConflict):
			respond.Error(c, http.StatusConflict, "conflict", "interview changed concurrently, try again", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to retry interview", nil)
		}
		return
	}
	respond.OK(c, gin.H{"interviewId": id, "outcome": outcome})
}

type cleanupRequest struct {
	Days int `json:"days" binding:"required"`
}

func (h *Handler) cleanup(c *gin.Context) {
	var req cleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "days is required", nil)
		return
	}
	deleted, err := h.Engine.Cleanup(c.Request.Context(), req.Days)
	if err != nil {
		if errors.Is(err, ErrCleanupTooRecent) {
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), []map[string]string{
				{"field": "days", "issue": "below_floor"},
			})
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "cleanup failed", nil)
		return
	}
	respond.OK(c, gin.H{"deleted": deleted, "days": req.Days})
}
