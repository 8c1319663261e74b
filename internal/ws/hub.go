package ws

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chathub/internal/logx"
	"chathub/internal/models"
	"chathub/internal/observability"
	"chathub/internal/realtime"
)

// Hub maintains live connection handles and their group subscriptions.
type Hub struct {
	clients map[string]*Client
	groups  map[string]map[string]*Client
	subs    map[string]map[string]struct{}
	mu      sync.RWMutex

	closing   bool
	drained   chan struct{}
	drainOnce sync.Once
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		groups:  make(map[string]map[string]*Client),
		subs:    make(map[string]map[string]struct{}),
		drained: make(chan struct{}),
	}
}

var _ realtime.Transport = (*Hub)(nil)

// Add registers a connection handle. Once CloseAll has started, the handle
// is registered and its connection closed straight away so the owning
// handler runs its normal cleanup.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	closing := h.closing
	h.mu.Unlock()

	if closing {
		closeConn(c)
	}
}

// Remove drops a connection handle, all of its group subscriptions, and
// closes its send queue. Removing an unknown handle is a no-op.
func (h *Hub) Remove(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return
	}
	delete(h.clients, connID)
	for groupID := range h.subs[connID] {
		if members, ok := h.groups[groupID]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(h.groups, groupID)
			}
		}
	}
	delete(h.subs, connID)
	close(c.send)

	if h.closing && len(h.clients) == 0 {
		h.drainOnce.Do(func() { close(h.drained) })
	}
}

// CloseAll closes every live connection and waits until each handler has
// removed its handle, which happens after its session cleanup ran.
func (h *Hub) CloseAll(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	if len(h.clients) == 0 {
		h.drainOnce.Do(func() { close(h.drained) })
	}
	h.mu.Unlock()

	l := logx.Ctx(ctx)
	l.Info().Int("connections", len(clients)).Msg("closing websocket connections")
	for _, c := range clients {
		closeConn(c)
	}

	select {
	case <-h.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func closeConn(c *Client) {
	if c.conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = c.conn.Close()
}

// Subscribe attaches a live connection to a group broadcast channel.
func (h *Hub) Subscribe(connID, groupID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return false
	}
	if _, ok := h.groups[groupID]; !ok {
		h.groups[groupID] = make(map[string]*Client)
	}
	h.groups[groupID][connID] = c
	if _, ok := h.subs[connID]; !ok {
		h.subs[connID] = make(map[string]struct{})
	}
	h.subs[connID][groupID] = struct{}{}
	return true
}

// Subscriptions lists the groups a connection is subscribed to.
func (h *Hub) Subscriptions(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	groups := make([]string, 0, len(h.subs[connID]))
	for id := range h.subs[connID] {
		groups = append(groups, id)
	}
	sort.Strings(groups)
	return groups
}

// Len returns the number of live connection handles.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Deliver queues event on every listed connection that is still live.
func (h *Hub) Deliver(ctx context.Context, connIDs []string, event models.Event) int {
	if len(connIDs) == 0 {
		return 0
	}
	payload, err := json.Marshal(event)
	if err != nil {
		l := logx.Ctx(ctx)
		l.Error().Err(err).Str("event", event.Type).Msg("marshal websocket event")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, id := range connIDs {
		if c, ok := h.clients[id]; ok && h.enqueue(ctx, c, payload, event.Type) {
			delivered++
		}
	}
	return delivered
}

// DeliverGroup is Deliver restricted to connections subscribed to groupID.
func (h *Hub) DeliverGroup(ctx context.Context, groupID string, connIDs []string, event models.Event) int {
	if len(connIDs) == 0 {
		return 0
	}
	payload, err := json.Marshal(event)
	if err != nil {
		l := logx.Ctx(ctx)
		l.Error().Err(err).Str("event", event.Type).Msg("marshal websocket event")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	members := h.groups[groupID]
	delivered := 0
	for _, id := range connIDs {
		if c, ok := members[id]; ok && h.enqueue(ctx, c, payload, event.Type) {
			delivered++
		}
	}
	return delivered
}

// enqueue must be called with h.mu held so send cannot be closed underneath it.
func (h *Hub) enqueue(ctx context.Context, c *Client, payload []byte, eventType string) bool {
	if c.enqueue(payload) {
		observability.IncWSEvent(eventType)
		return true
	}
	observability.IncWSEvent("dropped")
	l := logx.Ctx(ctx)
	l.Warn().Str("conn_id", c.ID).Str("user_id", c.Info.UserID).Str("event", eventType).Msg("websocket send buffer full, frame dropped")
	return false
}
