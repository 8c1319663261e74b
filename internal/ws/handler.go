package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chathub/internal/config"
	"chathub/internal/logx"
	"chathub/internal/models"
	"chathub/internal/observability"
	"chathub/internal/realtime"
	"chathub/internal/telemetry"
)

// SessionService is the part of realtime.Service the websocket handler drives.
type SessionService interface {
	Authenticate(ctx context.Context, token string) (models.Identity, error)
	Attach(ctx context.Context, identity models.Identity, connID string) (*realtime.Session, error)
}

// Handler upgrades authenticated requests and runs one session per connection.
type Handler struct {
	hub     *Hub
	service SessionService
	audit   *telemetry.AuditEmitter
	cfg     config.WebSocketConfig
}

func NewHandler(hub *Hub, service SessionService, audit *telemetry.AuditEmitter, cfg config.WebSocketConfig) *Handler {
	return &Handler{hub: hub, service: service, audit: audit, cfg: cfg}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handle authenticates before upgrading; a rejected request never reaches
// the registry. It blocks until the connection closes.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chathub/ws").Start(c.Request.Context(), "ws.handshake")
	requestID := observability.RequestIDFromRequest(c.Request)

	identity, err := h.service.Authenticate(ctx, observability.TokenFromRequest(c.Request))
	if err != nil {
		span.End()
		observability.IncWSEvent("rejected")
		h.audit.Emit(ctx, telemetry.LevelWarning, "websocket connection rejected: "+err.Error(), requestID, nil)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	traceID := span.SpanContext().TraceID().String()
	span.End()
	if err != nil {
		l := logx.Ctx(ctx)
		l.Warn().Err(err).Str("user_id", identity.ID).Msg("websocket upgrade failed")
		return
	}

	info := newConnInfo(c.Request, identity, traceID)
	client := NewClient(info, conn, h.cfg)

	// Sends in flight finish even if the HTTP request context is cancelled.
	logger := logx.Ctx(ctx).With().Str("conn_id", info.ConnID).Str("user_id", info.UserID).Logger()
	sessCtx := logx.WithLogger(context.WithoutCancel(ctx), logger)

	h.hub.Add(client)
	observability.IncWSActive()
	observability.IncWSEvent("connect")
	go client.WritePump()

	sess, err := h.service.Attach(sessCtx, identity, info.ConnID)
	if err != nil {
		logger.Error().Err(err).Msg("session attach failed")
		h.hub.Deliver(sessCtx, []string{info.ConnID}, errorEvent(err))
		h.hub.Remove(info.ConnID)
		observability.DecWSActive()
		return
	}

	client.ReadPump(func(data []byte) {
		h.handleFrame(sessCtx, client, sess, data)
	})

	sess.Close(sessCtx)
	h.hub.Remove(info.ConnID)
	observability.DecWSActive()
	observability.IncWSEvent("disconnect")
	logger.Info().Dur("duration", time.Since(info.ConnectedAt)).Msg("websocket closed")
}

func (h *Handler) handleFrame(ctx context.Context, client *Client, sess *realtime.Session, data []byte) {
	var frame models.InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.reply(ctx, client, models.Event{Type: models.EventError, Error: "invalid frame"})
		return
	}

	switch frame.Type {
	case models.FrameSend:
		if !client.Allow() {
			observability.IncWSEvent("rate_limited")
			h.reply(ctx, client, models.Event{Type: models.EventError, Error: "rate limit exceeded"})
			return
		}
		msg, err := sess.Send(ctx, frame.ReceiverID, frame.ChatType, frame.Content)
		if err != nil && msg.ID == "" {
			if errors.Is(err, realtime.ErrAccessDenied) {
				userID := client.Info.UserID
				h.audit.Emit(ctx, telemetry.LevelWarning, "group send denied: "+frame.ReceiverID, client.Info.RequestID, &userID)
			}
			h.reply(ctx, client, errorEvent(err))
			return
		}
		if err != nil {
			l := logx.Ctx(ctx)
			l.Warn().Err(err).Str("message_id", msg.ID).Msg("message persisted with partial notification failure")
		}
		h.reply(ctx, client, models.Event{Type: models.EventAck, Message: &msg})

	case models.FrameConnectedUsers:
		h.reply(ctx, client, models.Event{Type: models.EventConnectedUsers, Users: sess.ConnectedUsers()})

	default:
		h.reply(ctx, client, models.Event{Type: models.EventError, Error: "unknown frame type"})
	}
}

func (h *Handler) reply(ctx context.Context, client *Client, event models.Event) {
	h.hub.Deliver(ctx, []string{client.ID}, event)
}

func errorEvent(err error) models.Event {
	return models.Event{Type: models.EventError, Error: PublicError(err)}
}

// PublicError maps core errors to client-safe text.
func PublicError(err error) string {
	switch {
	case errors.Is(err, realtime.ErrInvalidMessage):
		return err.Error()
	case errors.Is(err, realtime.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, realtime.ErrAccessDenied):
		return "access denied"
	case errors.Is(err, realtime.ErrNotFound):
		return "not found"
	case errors.Is(err, realtime.ErrSessionClosed):
		return "session closed"
	default:
		return "internal error"
	}
}
