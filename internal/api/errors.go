package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wpphub/internal/session"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrUnknownConnection):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotConnected), errors.Is(err, session.ErrLoggedOut):
		return http.StatusConflict
	case errors.Is(err, session.ErrPersistence):
		return http.StatusInternalServerError
	case errors.Is(err, session.ErrDelivery), errors.Is(err, session.ErrExternalService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
