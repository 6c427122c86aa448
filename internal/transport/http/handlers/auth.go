package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/deadline-jail/internal/usecase"
)

// AuthHandler exposes registration, login and the current-user endpoint.
type AuthHandler struct {
	credentials *usecase.CredentialService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(credentials *usecase.CredentialService) *AuthHandler {
	return &AuthHandler{credentials: credentials}
}

// CredentialMiddlewares run ahead of the register and login handlers (rate limiting).
type CredentialMiddlewares struct {
	Register []gin.HandlerFunc
	Login    []gin.HandlerFunc
}

// RegisterRoutes binds the public credential routes.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, mw CredentialMiddlewares) {
	r.POST("/register", withPrefix(mw.Register, h.register)...)
	r.POST("/login", withPrefix(mw.Login, h.login)...)
}

// RegisterUserRoutes binds the authenticated account routes.
func (h *AuthHandler) RegisterUserRoutes(r *gin.RouterGroup) {
	r.GET("", h.me)
}

func withPrefix(prefix []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	chain := make([]gin.HandlerFunc, 0, len(prefix)+1)
	chain = append(chain, prefix...)
	return append(chain, handler)
}

func (h *AuthHandler) register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidPayload(c)
		return
	}

	ctx := c.Request.Context()
	user, err := h.credentials.Register(ctx, req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	session, err := h.credentials.IssueSession(ctx, user)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newSessionResponse(session))
}

func (h *AuthHandler) login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidPayload(c)
		return
	}

	session, err := h.credentials.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newSessionResponse(session))
}

func (h *AuthHandler) me(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	user, err := h.credentials.CurrentUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newUserSummary(user))
}
