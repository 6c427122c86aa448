package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/deadline-jail/internal/core/domain"
	"github.com/arklim/deadline-jail/internal/infra/logger"
	"github.com/arklim/deadline-jail/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// domainErrorCases covers every sentinel the usecases return. Credential failures share one
// body so a client cannot tell an unknown email from a wrong password.
var domainErrorCases = []ErrorCase{
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
	{Err: usecase.ErrUnauthenticated, Status: http.StatusUnauthorized, Message: "authentication required"},
	{Err: usecase.ErrTaskNotFound, Status: http.StatusNotFound, Message: "task not found"},
	{Err: usecase.ErrConsequenceNotFound, Status: http.StatusNotFound, Message: "consequence not found"},
	{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
	{Err: usecase.ErrNotFound, Status: http.StatusNotFound, Message: "not found"},
	{Err: usecase.ErrDuplicateEmail, Status: http.StatusConflict, Message: "email already registered"},
	{Err: domain.ErrInvalidTransition, Status: http.StatusConflict, Message: "invalid status transition"},
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	if vErr, ok := domain.AsValidationError(err); ok {
		resp := NewErrorResponse(c, vErr.Message)
		resp.Field = vErr.Field
		c.JSON(http.StatusBadRequest, resp)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
			return
		}
	}

	logger.WithContext(c.Request.Context()).Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

func respondError(c *gin.Context, err error) {
	RespondWithMappedError(c, err, domainErrorCases, http.StatusInternalServerError, "internal server error")
}

func respondInvalidPayload(c *gin.Context) {
	c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
}
