package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chathub/internal/middleware"
	"chathub/internal/models"
	"chathub/internal/realtime"
	"chathub/internal/telemetry"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *string {
	if userID := c.GetString(middleware.ContextUserID); userID != "" {
		return &userID
	}
	return nil
}

func identityFromContext(c *gin.Context) models.Identity {
	return models.Identity{
		ID:   c.GetString(middleware.ContextUserID),
		Name: c.GetString(middleware.ContextUserName),
	}
}

func emitAudit(c *gin.Context, audit *telemetry.AuditEmitter, level, text string) {
	if audit == nil {
		return
	}
	audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

// statusForError maps core errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, realtime.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, realtime.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, realtime.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, realtime.ErrInvalidMessage):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error, fallback string) string {
	if statusForError(err) == http.StatusInternalServerError {
		return fallback
	}
	return err.Error()
}
