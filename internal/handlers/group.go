package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chathub/internal/logx"
	"chathub/internal/models"
	"chathub/internal/repositories"
	"chathub/internal/telemetry"
)

// GroupHandler manages group-related endpoints. Membership changes take
// effect for live connections on their next connect.
type GroupHandler struct {
	groupRepo repositories.GroupRepository
	sender    messageSender
	history   historyReader
	audit     *telemetry.AuditEmitter
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(groupRepo repositories.GroupRepository, sender messageSender, history historyReader, audit *telemetry.AuditEmitter) *GroupHandler {
	return &GroupHandler{
		groupRepo: groupRepo,
		sender:    sender,
		history:   history,
		audit:     audit,
	}
}

// CreateGroup handles POST /groups.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID := c.GetString("userID")

	var req struct {
		Name        string   `json:"name" binding:"required"`
		Description string   `json:"description"`
		MemberIDs   []string `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, telemetry.LevelError, "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.groupRepo.CreateGroup(c.Request.Context(), userID, req.Name, req.Description, req.MemberIDs)
	if err != nil {
		h.emitAudit(c, telemetry.LevelError, "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	h.emitAudit(c, telemetry.LevelInfo, "Group created")
	c.JSON(http.StatusCreated, group)
}

// ListGroups returns groups the caller belongs to.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	userID := c.GetString("userID")
	groups, err := h.groupRepo.GetAllGroups(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load groups"})
		return
	}
	if groups == nil {
		groups = []models.Group{}
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// GetGroupMessages returns a page of group messages to a member.
func (h *GroupHandler) GetGroupMessages(c *gin.Context) {
	userID := c.GetString("userID")

	msgs, err := h.history.Group(c.Request.Context(), userID, c.Param("group_id"), c.Query("before"))
	if err != nil {
		status := statusForError(err)
		if status == http.StatusForbidden {
			h.emitAudit(c, telemetry.LevelWarning, "group history denied")
		}
		c.JSON(status, gin.H{"error": errorMessage(err, "failed to load messages")})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostGroupMessage persists and fans out a group message.
func (h *GroupHandler) PostGroupMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, telemetry.LevelError, "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.sender.Send(c.Request.Context(), identityFromContext(c), c.Param("group_id"), models.ChatTypeGroup, req.Content)
	if err != nil && msg.ID == "" {
		status := statusForError(err)
		switch status {
		case http.StatusForbidden:
			h.emitAudit(c, telemetry.LevelWarning, "not allowed")
		case http.StatusInternalServerError:
			h.emitAudit(c, telemetry.LevelError, "internal error")
		}
		c.JSON(status, gin.H{"error": errorMessage(err, "failed to store message")})
		return
	}
	if err != nil {
		l := logx.Ctx(c.Request.Context())
		l.Warn().Err(err).Str("message_id", msg.ID).Msg("group message stored, some notifications failed")
	}

	h.emitAudit(c, telemetry.LevelInfo, "Group message sent")
	c.JSON(http.StatusCreated, msg)
}

// AddMember adds a user to the group. Only members may add.
func (h *GroupHandler) AddMember(c *gin.Context) {
	groupID := c.Param("group_id")
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.requireMember(c, groupID) {
		return
	}

	if err := h.groupRepo.AddMember(c.Request.Context(), groupID, req.UserID); err != nil {
		c.JSON(statusForError(err), gin.H{"error": errorMessage(err, "could not add member")})
		return
	}

	h.emitAudit(c, telemetry.LevelInfo, "Group member added")
	c.Status(http.StatusNoContent)
}

// RemoveMember removes :user_id from the group. Members may remove anyone,
// including themselves.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	groupID := c.Param("group_id")
	if !h.requireMember(c, groupID) {
		return
	}

	if err := h.groupRepo.RemoveMember(c.Request.Context(), groupID, c.Param("user_id")); err != nil {
		status := statusForError(err)
		if errors.Is(err, repositories.ErrMemberNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": errorMessage(err, "could not remove member")})
		return
	}

	h.emitAudit(c, telemetry.LevelInfo, "Group member removed")
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) requireMember(c *gin.Context, groupID string) bool {
	group, err := h.groupRepo.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": errorMessage(err, "failed to load group")})
		return false
	}
	if !group.HasMember(c.GetString("userID")) {
		h.emitAudit(c, telemetry.LevelWarning, "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return false
	}
	return true
}

func (h *GroupHandler) emitAudit(c *gin.Context, level, text string) {
	emitAudit(c, h.audit, level, text)
}
