package realtime

import (
	"context"
	"sync"

	"chathub/internal/logx"
	"chathub/internal/models"
	"chathub/internal/observability"
)

// DefaultNotifyLimit bounds the audience of a "came online" event.
const DefaultNotifyLimit = 100

// Presence turns registry mutations into online/offline edges.
type Presence struct {
	registry    *Registry
	history     PresenceHistory
	transport   Transport
	notifyLimit int

	// edges serializes mutation+emission per user so that a user's online and
	// offline events leave in the order their registry updates happened.
	// Locks are per user; unrelated users never wait on each other's I/O.
	edges *userLocks
}

// NewPresence builds a Presence tracker.
func NewPresence(registry *Registry, history PresenceHistory, transport Transport, notifyLimit int) *Presence {
	if notifyLimit <= 0 {
		notifyLimit = DefaultNotifyLimit
	}
	return &Presence{
		registry:    registry,
		history:     history,
		transport:   transport,
		notifyLimit: notifyLimit,
		edges:       newUserLocks(),
	}
}

// Connect registers the connection and, on the user's 0->1 transition, tells
// the user's recent private-chat partners that the user came online. A failed
// audience lookup is logged; the connection stays registered.
func (p *Presence) Connect(ctx context.Context, user models.Identity, connID string) bool {
	unlock := p.edges.lock(user.ID)
	defer unlock()

	if !p.registry.Register(user.ID, user.Name, connID) {
		return false
	}
	observability.IncOnlineUsers()

	l := logx.Ctx(ctx)
	audience, err := p.history.UsersToNotify(ctx, user.ID, p.notifyLimit)
	if err != nil {
		l.Warn().Err(err).Str("user_id", user.ID).Msg("resolve presence audience")
		audience = nil
	}
	if len(audience) > p.notifyLimit {
		audience = audience[:p.notifyLimit]
	}

	var conns []string
	for _, id := range audience {
		if id == user.ID {
			continue
		}
		conns = append(conns, p.registry.Connections(id)...)
	}
	p.transport.Deliver(ctx, conns, models.Event{
		Type:     models.EventUserConnected,
		UserID:   user.ID,
		UserName: user.Name,
	})
	observability.IncPresenceEvent(models.EventUserConnected)

	l.Debug().Str("user_id", user.ID).Int("audience", len(audience)).Msg("user came online")
	return true
}

// Disconnect unregisters the connection and, on the user's 1->0 transition,
// tells every other connected user that the user went offline.
func (p *Presence) Disconnect(ctx context.Context, userID, connID string) bool {
	unlock := p.edges.lock(userID)
	defer unlock()

	if !p.registry.Unregister(userID, connID) {
		return false
	}
	observability.DecOnlineUsers()

	var conns []string
	for _, u := range p.registry.Snapshot() {
		if u.ID == userID {
			continue
		}
		conns = append(conns, u.ConnectionIDs...)
	}
	p.transport.Deliver(ctx, conns, models.Event{
		Type:   models.EventUserDisconnected,
		UserID: userID,
	})
	observability.IncPresenceEvent(models.EventUserDisconnected)

	l := logx.Ctx(ctx)
	l.Debug().Str("user_id", userID).Msg("user went offline")
	return true
}

// userLocks hands out one mutex per user id. Entries are reference counted
// and dropped when the last holder or waiter releases them.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

// lock blocks until the caller holds userID's lock and returns its release.
func (u *userLocks) lock(userID string) func() {
	u.mu.Lock()
	l, ok := u.locks[userID]
	if !ok {
		l = &userLock{}
		u.locks[userID] = l
	}
	l.refs++
	u.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		u.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(u.locks, userID)
		}
		u.mu.Unlock()
	}
}

// held reports how many users currently have a lock entry.
func (u *userLocks) held() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.locks)
}
