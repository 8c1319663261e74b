package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"chathub/internal/models"
	"chathub/internal/observability"
)

// ConnInfo describes one upgraded connection for logs and audit events.
type ConnInfo struct {
	ConnID      string
	UserID      string
	UserName    string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnInfo(r *http.Request, identity models.Identity, traceID string) ConnInfo {
	return ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      identity.ID,
		UserName:    identity.Name,
		DeviceID:    observability.DeviceIDFromRequest(r),
		IP:          observability.IPFromRequest(r),
		RequestID:   observability.RequestIDFromRequest(r),
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
}
