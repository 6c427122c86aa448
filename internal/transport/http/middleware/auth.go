package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/arklim/deadline-jail/internal/usecase"
)

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// newErrorResponse creates an error response with trace ID
func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// TokenVerifier resolves a bearer token to the user it was issued for.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// RequireAuth validates the Authorization header and stores the user id on the context.
// Every token failure answers with the same 401 body.
func RequireAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "authentication required"))
			return
		}

		userID, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, usecase.ErrUnauthenticated) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "authentication required"))
				return
			}
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, newErrorResponse(c, "authentication failed"))
			return
		}

		c.Set(UserIDKey, userID)
		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.UserID = userID
		}
		trace.SpanFromContext(c.Request.Context()).SetAttributes(attribute.String("enduser.id", userID))

		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetAuthenticatedUserID retrieves the user ID from context (helper for handlers)
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}

	if id, ok := userID.(string); ok {
		return id, true
	}

	return "", false
}
