package realtime

import (
	"context"
	"fmt"

	"chathub/internal/models"
)

// GroupSync subscribes a fresh connection to the broadcast channel of every
// group its user belongs to. Membership is read once, at connect time.
type GroupSync struct {
	groups    GroupDirectory
	transport Transport
}

func NewGroupSync(groups GroupDirectory, transport Transport) *GroupSync {
	return &GroupSync{groups: groups, transport: transport}
}

// Sync returns the groups the connection was subscribed to.
func (g *GroupSync) Sync(ctx context.Context, userID, connID string) ([]models.Group, error) {
	groups, err := g.groups.GetAllGroups(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}
	for _, group := range groups {
		g.transport.Subscribe(connID, group.ID)
	}
	return groups, nil
}
