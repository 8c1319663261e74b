package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"chathub/internal/logx"
	"chathub/internal/models"
	"chathub/internal/realtime"
	"chathub/internal/repositories"
	"chathub/internal/telemetry"
)

type messageSender interface {
	Send(ctx context.Context, sender models.Identity, receiverID string, chatType models.ChatType, content string) (models.Message, error)
}

type historyReader interface {
	Private(ctx context.Context, userID, peerID, before string) ([]models.Message, error)
	Group(ctx context.Context, userID, groupID, before string) ([]models.Message, error)
}

type censusReader interface {
	ConnectedUsers() []models.Identity
	IsOnline(userID string) bool
}

// ChatHandler manages private chat endpoints.
type ChatHandler struct {
	messages repositories.MessageRepository
	groups   realtime.GroupDirectory
	sender   messageSender
	history  historyReader
	census   censusReader
	audit    *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(messages repositories.MessageRepository, groups realtime.GroupDirectory, sender messageSender, history historyReader, census censusReader, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{
		messages: messages,
		groups:   groups,
		sender:   sender,
		history:  history,
		census:   census,
		audit:    audit,
	}
}

// ListChats returns the caller's private conversations followed by their groups.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetString("userID")

	chats, err := h.messages.ListPrivateChats(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	groups, err := h.groups.GetAllGroups(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load groups"})
		return
	}

	type chatResponse struct {
		models.ChatSummary
		Online bool `json:"online,omitempty"`
	}

	responses := make([]chatResponse, 0, len(chats)+len(groups))
	for _, chat := range chats {
		responses = append(responses, chatResponse{ChatSummary: chat, Online: h.census.IsOnline(chat.ReceiverID)})
	}
	for _, g := range groups {
		responses = append(responses, chatResponse{ChatSummary: models.ChatSummary{
			ReceiverID: g.ID,
			Name:       g.Name,
			ChatType:   models.ChatTypeGroup,
		}})
	}

	c.JSON(http.StatusOK, gin.H{"chats": responses})
}

// GetChatMessages returns a page of the conversation with :user_id.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	userID := c.GetString("userID")

	msgs, err := h.history.Private(c.Request.Context(), userID, c.Param("user_id"), c.Query("before"))
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": errorMessage(err, "failed to load messages")})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostChatMessage sends a private message to :user_id.
func (h *ChatHandler) PostChatMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.sender.Send(c.Request.Context(), identityFromContext(c), c.Param("user_id"), models.ChatTypePrivate, req.Content)
	if err != nil && msg.ID == "" {
		if statusForError(err) == http.StatusInternalServerError {
			emitAudit(c, h.audit, telemetry.LevelError, "internal error")
		}
		c.JSON(statusForError(err), gin.H{"error": errorMessage(err, "failed to send message")})
		return
	}
	if err != nil {
		l := logx.Ctx(c.Request.Context())
		l.Warn().Err(err).Str("message_id", msg.ID).Msg("message stored, notification hand-off failed")
	}

	c.JSON(http.StatusCreated, msg)
}

// ConnectedUsers returns the connection census.
func (h *ChatHandler) ConnectedUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": h.census.ConnectedUsers()})
}
