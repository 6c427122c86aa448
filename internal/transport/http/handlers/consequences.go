package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arklim/deadline-jail/internal/core/domain"
	"github.com/arklim/deadline-jail/internal/usecase"
)

// ConsequenceHandler exposes the consequence registry.
type ConsequenceHandler struct {
	consequences *usecase.ConsequenceService
}

// NewConsequenceHandler constructs ConsequenceHandler.
func NewConsequenceHandler(consequences *usecase.ConsequenceService) *ConsequenceHandler {
	return &ConsequenceHandler{consequences: consequences}
}

// RegisterRoutes binds the consequence routes. The group is expected to require authentication.
func (h *ConsequenceHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.list)
	r.POST("", h.create)
	r.POST("/random", h.random)
	r.GET("/:id", h.get)
	r.PATCH("/:id", h.update)
	r.PUT("/:id", h.update)
	r.DELETE("/:id", h.delete)
}

func (h *ConsequenceHandler) list(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var filter domain.ConsequenceFilter
	if raw := c.Query("type"); raw != "" {
		kind, err := domain.ParseConsequenceType(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		filter.Type = kind
	}
	if raw := c.Query("enabled"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, domain.NewValidationError("enabled", "enabled must be a boolean"))
			return
		}
		filter.EnabledOnly = enabled
	}

	items, err := h.consequences.ListConsequences(c.Request.Context(), userID, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]ConsequenceResponse, 0, len(items))
	for _, item := range items {
		out = append(out, newConsequenceResponse(item))
	}
	c.JSON(http.StatusOK, out)
}

func (h *ConsequenceHandler) create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req ConsequenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidPayload(c)
		return
	}

	consequence, err := h.consequences.AddConsequence(c.Request.Context(), userID, req.toInput())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newConsequenceResponse(consequence))
}

func (h *ConsequenceHandler) get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	consequence, err := h.consequences.GetConsequence(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newConsequenceResponse(consequence))
}

func (h *ConsequenceHandler) update(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req ConsequencePatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidPayload(c)
		return
	}

	consequence, err := h.consequences.UpdateConsequence(c.Request.Context(), userID, c.Param("id"), req.toPatch())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newConsequenceResponse(consequence))
}

func (h *ConsequenceHandler) delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	if err := h.consequences.DeleteConsequence(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// random previews the pick a failure would make. Nothing is written to the execution log.
func (h *ConsequenceHandler) random(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	consequence, err := h.consequences.SelectRandom(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if consequence == nil {
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "no enabled consequences"))
		return
	}
	c.JSON(http.StatusOK, newConsequenceResponse(*consequence))
}
