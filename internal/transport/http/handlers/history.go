package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/deadline-jail/internal/usecase"
)

// HistoryHandler exposes the read-only timeline, dashboard counters and execution log.
type HistoryHandler struct {
	history      *usecase.HistoryService
	consequences *usecase.ConsequenceService
	now          func() time.Time
}

// NewHistoryHandler constructs HistoryHandler.
func NewHistoryHandler(history *usecase.HistoryService, consequences *usecase.ConsequenceService) *HistoryHandler {
	return &HistoryHandler{
		history:      history,
		consequences: consequences,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes binds the history routes. The group is expected to require authentication.
func (h *HistoryHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.timeline)
	r.GET("/stats", h.stats)
	r.GET("/executions", h.executions)
}

func (h *HistoryHandler) timeline(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	events, err := h.history.Timeline(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	now := h.now()
	out := make([]TimelineEntry, 0, len(events))
	for _, event := range events {
		out = append(out, newTimelineEntry(event, now))
	}
	c.JSON(http.StatusOK, out)
}

func (h *HistoryHandler) stats(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	stats, err := h.history.Stats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatsResponse{
		Active:     stats.Active,
		Completed:  stats.Completed,
		Failed:     stats.Failed,
		Overdue:    stats.Overdue,
		Executions: stats.Executions,
	})
}

func (h *HistoryHandler) executions(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	executions, err := h.consequences.ListExecutions(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]ExecutionResponse, 0, len(executions))
	for _, execution := range executions {
		out = append(out, newExecutionResponse(execution))
	}
	c.JSON(http.StatusOK, out)
}
