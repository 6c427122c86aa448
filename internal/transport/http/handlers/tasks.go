package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/deadline-jail/internal/core/domain"
	"github.com/arklim/deadline-jail/internal/transport/http/middleware"
	"github.com/arklim/deadline-jail/internal/usecase"
)

// TaskHandler exposes task CRUD and the lifecycle transitions.
type TaskHandler struct {
	tasks     *usecase.TaskService
	lifecycle *usecase.LifecycleController
	now       func() time.Time
}

// NewTaskHandler constructs TaskHandler.
func NewTaskHandler(tasks *usecase.TaskService, lifecycle *usecase.LifecycleController) *TaskHandler {
	return &TaskHandler{
		tasks:     tasks,
		lifecycle: lifecycle,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes binds the task routes. The group is expected to require authentication.
func (h *TaskHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.list)
	r.POST("", h.create)
	r.GET("/:id", h.get)
	r.PATCH("/:id", h.update)
	r.PUT("/:id", h.update)
	r.DELETE("/:id", h.delete)
	r.POST("/:id/complete", h.complete)
	r.POST("/:id/fail", h.fail)
}

func (h *TaskHandler) list(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var filter domain.TaskFilter
	if raw := c.Query("status"); raw != "" {
		status, err := domain.ParseTaskStatus(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		filter.Status = status
	}

	views, err := h.tasks.ListTasks(c.Request.Context(), userID, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]TaskResponse, 0, len(views))
	for _, view := range views {
		out = append(out, newTaskResponse(view))
	}
	c.JSON(http.StatusOK, out)
}

func (h *TaskHandler) create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req TaskCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidPayload(c)
		return
	}

	view, err := h.tasks.CreateTask(c.Request.Context(), userID, req.toInput())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newTaskResponse(view))
}

func (h *TaskHandler) get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	view, err := h.tasks.GetTask(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTaskResponse(view))
}

func (h *TaskHandler) update(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req TaskPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidPayload(c)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		respondError(c, err)
		return
	}

	view, err := h.tasks.UpdateTask(c.Request.Context(), userID, c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTaskResponse(view))
}

func (h *TaskHandler) delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	if err := h.tasks.DeleteTask(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TaskHandler) complete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	task, err := h.lifecycle.Complete(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTaskResponse(domain.NewTaskView(task, h.now())))
}

func (h *TaskHandler) fail(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	outcome, err := h.lifecycle.Fail(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, TaskFailureResponse{
		Task:        newTaskResponse(domain.NewTaskView(outcome.Task, h.now())),
		Consequence: newConsequencePtr(outcome.Consequence),
		Random:      outcome.Random,
	})
}

// requireUserID reads the authenticated user set by middleware.RequireAuth and writes a 401
// when it is missing.
func requireUserID(c *gin.Context) (string, bool) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || userID == "" {
		respondError(c, usecase.ErrUnauthenticated)
		return "", false
	}
	return userID, true
}
