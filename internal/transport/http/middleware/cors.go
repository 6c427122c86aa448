package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsAllowMethods  = "GET,POST,PUT,PATCH,DELETE,OPTIONS"
	corsAllowHeaders  = "Origin,Content-Type,Accept,Authorization,X-Request-ID,X-Trace-ID"
	corsExposeHeaders = "X-Request-ID,X-Trace-ID,X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset,Retry-After"
)

// CORS adds Cross-Origin Resource Sharing headers for the configured origins. Authentication is
// bearer-only, so credentials are never allowed.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	originsMap := make(map[string]bool, len(allowedOrigins))
	allowAll := false

	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			allowAll = true
			break
		}
		if origin != "" {
			originsMap[origin] = true
		}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		allowed := false

		switch {
		case origin == "":
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
			allowed = true
		case originsMap[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			allowed = true
		}

		if allowed {
			c.Header("Access-Control-Expose-Headers", corsExposeHeaders)
		}

		if c.Request.Method == http.MethodOptions && origin != "" {
			if allowed {
				c.Header("Access-Control-Allow-Methods", corsAllowMethods)
				c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
				c.Header("Access-Control-Max-Age", "86400")
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
