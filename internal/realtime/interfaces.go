package realtime

import (
	"context"

	"chathub/internal/models"
)

// Authenticator resolves a transport credential into an identity.
// Failures must wrap ErrUnauthenticated.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Identity, error)
}

// GroupDirectory is the read side of group storage. GetGroup must wrap
// ErrNotFound for unknown groups.
type GroupDirectory interface {
	GetAllGroups(ctx context.Context, userID string) ([]models.Group, error)
	GetGroup(ctx context.Context, groupID string) (models.Group, error)
	UserHasAccessToGroup(ctx context.Context, userID, groupID string) (bool, error)
}

// MessageStore persists chat messages. Insert assigns the id and timestamp.
type MessageStore interface {
	Insert(ctx context.Context, msg models.Message) (models.Message, error)
	QueryPrivate(ctx context.Context, userA, userB, before string, limit int) ([]models.Message, error)
	QueryGroup(ctx context.Context, groupID, before string, limit int) ([]models.Message, error)
}

// PresenceHistory returns the users that should hear about userID coming online.
type PresenceHistory interface {
	UsersToNotify(ctx context.Context, userID string, limit int) ([]string, error)
}

// Notifier hands a notification to the asynchronous broker path.
// A nil return means the hand-off was accepted, not that it was delivered.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// Transport writes events to live connection handles and owns the
// connection-scoped group subscriptions.
type Transport interface {
	// Deliver writes event to every listed connection and reports how many accepted it.
	Deliver(ctx context.Context, connIDs []string, event models.Event) int
	// DeliverGroup is Deliver restricted to connections subscribed to groupID.
	DeliverGroup(ctx context.Context, groupID string, connIDs []string, event models.Event) int
	// Subscribe attaches a connection to a group's broadcast channel.
	Subscribe(connID, groupID string) bool
}
