package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"chathub/internal/logx"
	"chathub/internal/models"
)

// SessionState is the lifecycle state of one connection handle. A rejected
// connection never gets a Session: Connect returns ErrUnauthenticated instead.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateConnected
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Deps are the collaborators a Service is built from.
type Deps struct {
	Auth        Authenticator
	Groups      GroupDirectory
	Messages    MessageStore
	History     PresenceHistory
	Notifier    Notifier
	Transport   Transport
	NotifyLimit int
	MaxContent  int
	PageSize    int
}

// Service wires the registry, presence tracking, group sync and routing
// behind the connect/send/disconnect lifecycle.
type Service struct {
	auth      Authenticator
	registry  *Registry
	presence  *Presence
	groupSync *GroupSync
	router    *Router
	history   *History
}

// NewService builds a Service around an injected registry.
func NewService(registry *Registry, deps Deps) *Service {
	return &Service{
		auth:      deps.Auth,
		registry:  registry,
		presence:  NewPresence(registry, deps.History, deps.Transport, deps.NotifyLimit),
		groupSync: NewGroupSync(deps.Groups, deps.Transport),
		router:    NewRouter(registry, deps.Messages, deps.Groups, deps.Notifier, deps.Transport, deps.MaxContent),
		history:   NewHistory(deps.Messages, deps.Groups, deps.PageSize),
	}
}

// Router exposes the message router for non-websocket callers.
func (s *Service) Router() *Router { return s.router }

// History exposes conversation history reads.
func (s *Service) History() *History { return s.history }

// ConnectedUsers is the connection census.
func (s *Service) ConnectedUsers() []models.Identity {
	snapshot := s.registry.Snapshot()
	users := make([]models.Identity, 0, len(snapshot))
	for _, u := range snapshot {
		users = append(users, models.Identity{ID: u.ID, Name: u.Name})
	}
	return users
}

// IsOnline reports whether userID has a live connection.
func (s *Service) IsOnline(userID string) bool {
	return s.registry.IsOnline(userID)
}

// Authenticate resolves a credential without touching the registry.
func (s *Service) Authenticate(ctx context.Context, token string) (models.Identity, error) {
	identity, err := s.auth.Authenticate(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return models.Identity{}, err
		}
		return models.Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if identity.ID == "" {
		return models.Identity{}, ErrUnauthenticated
	}
	return identity, nil
}

// Connect authenticates token and brings connID to the connected state:
// registry and presence first, then group subscriptions. On any failure
// after registration the session is torn down before the error is returned.
func (s *Service) Connect(ctx context.Context, token, connID string) (*Session, error) {
	identity, err := s.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.Attach(ctx, identity, connID)
}

// Attach is Connect for an already authenticated identity.
func (s *Service) Attach(ctx context.Context, identity models.Identity, connID string) (*Session, error) {
	if identity.ID == "" {
		return nil, ErrUnauthenticated
	}
	sess := &Session{service: s, identity: identity, connID: connID}
	sess.state.Store(int32(StateConnecting))

	s.presence.Connect(ctx, identity, connID)
	if _, err := s.groupSync.Sync(ctx, identity.ID, connID); err != nil {
		sess.Close(ctx)
		return nil, err
	}

	if !sess.state.CompareAndSwap(int32(StateConnecting), int32(StateConnected)) {
		return nil, ErrSessionClosed
	}
	l := logx.Ctx(ctx)
	l.Info().Str("user_id", identity.ID).Str("conn_id", connID).Msg("session connected")
	return sess, nil
}

// Session is one connection handle's view of the service.
type Session struct {
	service  *Service
	identity models.Identity
	connID   string
	state    atomic.Int32
	once     sync.Once
}

func (s *Session) Identity() models.Identity { return s.identity }
func (s *Session) ConnID() string            { return s.connID }
func (s *Session) State() SessionState       { return SessionState(s.state.Load()) }

// Send routes a message from this session's user.
func (s *Session) Send(ctx context.Context, receiverID string, chatType models.ChatType, content string) (models.Message, error) {
	if s.State() != StateConnected {
		return models.Message{}, ErrSessionClosed
	}
	return s.service.router.Send(ctx, s.identity, receiverID, chatType, content)
}

// ConnectedUsers is the census as seen from this session.
func (s *Session) ConnectedUsers() []models.Identity {
	return s.service.ConnectedUsers()
}

// Close runs disconnect cleanup exactly once, whatever the number of callers.
func (s *Session) Close(ctx context.Context) {
	s.once.Do(func() {
		s.state.Store(int32(StateDisconnected))
		s.service.presence.Disconnect(ctx, s.identity.ID, s.connID)
		l := logx.Ctx(ctx)
		l.Info().Str("user_id", s.identity.ID).Str("conn_id", s.connID).Msg("session disconnected")
	})
}
