package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const jwksCacheControl = "public, max-age=900"

// KeySetSource renders the public signing keys as a JWKS document.
type KeySetSource interface {
	JWKS() ([]byte, error)
}

// JWKSHandler publishes the keys that verify access tokens, so other services can check
// a deadline-jail bearer token without calling back.
type JWKSHandler struct {
	keys KeySetSource
}

// NewJWKSHandler constructs a JWKS handler backed by the supplied key source.
func NewJWKSHandler(keys KeySetSource) *JWKSHandler {
	return &JWKSHandler{keys: keys}
}

// Keys serves /.well-known/jwks.json.
func (h *JWKSHandler) Keys(c *gin.Context) {
	if h == nil || h.keys == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "jwks not available"))
		return
	}

	payload, err := h.keys.JWKS()
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to render jwks"))
		return
	}

	c.Header("Cache-Control", jwksCacheControl)
	c.Data(http.StatusOK, "application/json", payload)
}
