package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appLogger "github.com/arklim/deadline-jail/internal/infra/logger"
)

// Logger emits one access log line per request with correlation identifiers and a masked client IP.
// Server errors log at error level, client errors at warn.
func Logger(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("trace_id", GetTraceID(c)),
			zap.String("request_id", requestIDFromContext(c.Request.Context())),
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", appLogger.MaskIP(c.ClientIP())),
		}
		if userID, ok := GetAuthenticatedUserID(c); ok {
			fields = append(fields, zap.String("user_id", userID))
		}
		if ua := c.Request.UserAgent(); ua != "" {
			fields = append(fields, zap.String("user_agent", ua))
		}

		switch {
		case status >= 500 || len(c.Errors) > 0:
			log.Error("request failed", append(fields, zap.String("errors", c.Errors.String()))...)
		case status >= 400:
			log.Warn("request rejected", fields...)
		default:
			log.Info("request completed", fields...)
		}
	}
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(appLogger.RequestIDKey{}).(string); ok {
		return id
	}
	return ""
}
