package api

import (
	"errors"
	"net/http"

	"edumaster/media-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError translates service failures into HTTP responses. Anything
// that isn't a known failure class is a 500 and only gets logged, the
// client never sees internals.
func respondError(c *gin.Context, requestID string, err error) {
	status := http.StatusInternalServerError
	msg := "Internal server error"

	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrIncomplete):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrNotFound):
		status, msg = http.StatusNotFound, "Upload session not found"
	case errors.Is(err, service.ErrForbidden):
		status, msg = http.StatusForbidden, "You don't own this resource"
	case errors.Is(err, service.ErrInvalidState):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrOutOfRange):
		status, msg = http.StatusRequestedRangeNotSatisfiable, err.Error()
	case errors.Is(err, service.ErrIntegrityMismatch):
		status, msg = http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, service.ErrMissingChunk):
		status, msg = http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, service.ErrQueueFull):
		status, msg = http.StatusServiceUnavailable, "Processing queue is full. Please wait a moment before trying again"
	default:
		zap.L().Error("Unhandled service error", zap.String("requestID", requestID), zap.Error(err))
	}

	c.JSON(status, gin.H{
		"error":     msg,
		"requestID": requestID,
	})
}
