package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"perio-go/internal/chart"
	"perio-go/internal/repository"
	"perio-go/internal/session"
	"perio-go/internal/voice"
)

// errBadRequest marks request parsing failures.
var errBadRequest = errors.New("bad request")

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, repository.ErrExamNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionClosed),
		errors.Is(err, session.ErrVoiceModeLocked),
		errors.Is(err, voice.ErrNotRecording):
		return http.StatusConflict
	case errors.Is(err, session.ErrConfirmationRequired):
		return http.StatusPreconditionRequired
	case errors.Is(err, errBadRequest),
		errors.Is(err, session.ErrInvalidValue),
		errors.Is(err, session.ErrSchemeMismatch),
		errors.Is(err, chart.ErrMissingTooth),
		errors.Is(err, chart.ErrOutOfGrid):
		return http.StatusBadRequest
	case errors.Is(err, voice.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, voice.ErrCapabilityUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, log *zap.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
