package realtime_test

import (
	"context"
	"sort"
	"sync"

	"chathub/internal/models"
)

type delivery struct {
	groupID string
	connIDs []string
	event   models.Event
}

// recordingTransport records every delivery and subscription.
type recordingTransport struct {
	mu         sync.Mutex
	deliveries []delivery
	subs       map[string]map[string]bool
	gone       map[string]bool
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{subs: make(map[string]map[string]bool), gone: make(map[string]bool)}
}

// drop makes connID behave like a handle that closed after registry lookup.
func (t *recordingTransport) drop(connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gone[connID] = true
}

func (t *recordingTransport) Deliver(ctx context.Context, connIDs []string, event models.Event) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var live []string
	for _, id := range connIDs {
		if !t.gone[id] {
			live = append(live, id)
		}
	}
	t.deliveries = append(t.deliveries, delivery{connIDs: live, event: event})
	return len(live)
}

func (t *recordingTransport) DeliverGroup(ctx context.Context, groupID string, connIDs []string, event models.Event) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var subscribed []string
	for _, id := range connIDs {
		if t.subs[id][groupID] && !t.gone[id] {
			subscribed = append(subscribed, id)
		}
	}
	t.deliveries = append(t.deliveries, delivery{groupID: groupID, connIDs: subscribed, event: event})
	return len(subscribed)
}

func (t *recordingTransport) Subscribe(connID, groupID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gone[connID] {
		return false
	}
	if t.subs[connID] == nil {
		t.subs[connID] = make(map[string]bool)
	}
	t.subs[connID][groupID] = true
	return true
}

func (t *recordingTransport) subscriptions(connID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var groups []string
	for g := range t.subs[connID] {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// nonEmpty returns deliveries that reached at least one connection.
func (t *recordingTransport) nonEmpty() []delivery {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []delivery
	for _, d := range t.deliveries {
		if len(d.connIDs) > 0 {
			out = append(out, d)
		}
	}
	return out
}

func (t *recordingTransport) ofType(eventType string) []delivery {
	var out []delivery
	for _, d := range t.nonEmpty() {
		if d.event.Type == eventType {
			out = append(out, d)
		}
	}
	return out
}
