package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arklim/deadline-jail/internal/infra/logger"
)

const (
	requestIDHeader   = "X-Request-ID"
	maxRequestIDBytes = 128
)

// RequestID injects a correlation identifier into the context and headers. Client supplied ids
// longer than maxRequestIDBytes are replaced.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if reqID == "" || len(reqID) > maxRequestIDBytes {
			reqID = uuid.NewString()
		}

		c.Writer.Header().Set(requestIDHeader, reqID)
		ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey{}, reqID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
