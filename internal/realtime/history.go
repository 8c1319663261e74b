package realtime

import (
	"context"
	"fmt"

	"chathub/internal/models"
)

// DefaultPageSize is the history page size when none is configured.
const DefaultPageSize = 50

// History reads persisted conversations on behalf of a user.
type History struct {
	messages MessageStore
	groups   GroupDirectory
	pageSize int
}

func NewHistory(messages MessageStore, groups GroupDirectory, pageSize int) *History {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &History{messages: messages, groups: groups, pageSize: pageSize}
}

// Private returns the page of messages exchanged between userID and peerID
// older than before (all pages when before is empty).
func (h *History) Private(ctx context.Context, userID, peerID, before string) ([]models.Message, error) {
	if peerID == "" {
		return nil, fmt.Errorf("%w: peer is required", ErrInvalidMessage)
	}
	return h.messages.QueryPrivate(ctx, userID, peerID, before, h.pageSize)
}

// Group returns a page of group messages. Unknown groups yield ErrNotFound and
// groups the user does not belong to yield ErrAccessDenied.
func (h *History) Group(ctx context.Context, userID, groupID, before string) ([]models.Message, error) {
	if _, err := h.groups.GetGroup(ctx, groupID); err != nil {
		return nil, fmt.Errorf("load group %s: %w", groupID, err)
	}
	ok, err := h.groups.UserHasAccessToGroup(ctx, userID, groupID)
	if err != nil {
		return nil, fmt.Errorf("check group access: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: user %s is not a member of group %s", ErrAccessDenied, userID, groupID)
	}
	return h.messages.QueryGroup(ctx, groupID, before, h.pageSize)
}
