package realtime

import (
	"hash/fnv"
	"sort"
	"sync"

	"chathub/internal/models"
)

const registryShards = 32

// Registry maps user ids to their live connection handles. Each user entry is
// owned by one shard, so only connections of users hashing to the same shard
// contend. An entry exists iff its handle set is non-empty.
type Registry struct {
	shards [registryShards]registryShard
}

type registryShard struct {
	mu    sync.RWMutex
	users map[string]*liveEntry
}

type liveEntry struct {
	name  string
	conns map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].users = make(map[string]*liveEntry)
	}
	return r
}

func shardIndex(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % registryShards)
}

func (r *Registry) shard(userID string) *registryShard {
	return &r.shards[shardIndex(userID)]
}

// Register adds connID to the user's handle set and reports whether it is the
// user's first live connection. Registering a handle twice is a no-op.
func (r *Registry) Register(userID, displayName, connID string) bool {
	s := r.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.users[userID]
	if !ok {
		s.users[userID] = &liveEntry{
			name:  displayName,
			conns: map[string]struct{}{connID: {}},
		}
		return true
	}
	if displayName != "" {
		entry.name = displayName
	}
	entry.conns[connID] = struct{}{}
	return false
}

// Unregister removes connID and reports whether it was the user's last live
// connection. The entry is deleted in the same critical section.
func (r *Registry) Unregister(userID, connID string) bool {
	s := r.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.users[userID]
	if !ok {
		return false
	}
	if _, ok := entry.conns[connID]; !ok {
		return false
	}
	delete(entry.conns, connID)
	if len(entry.conns) == 0 {
		delete(s.users, userID)
		return true
	}
	return false
}

// Connections returns a copy of the user's live handles.
func (r *Registry) Connections(userID string) []string {
	s := r.shard(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.users[userID]
	if !ok {
		return nil
	}
	conns := make([]string, 0, len(entry.conns))
	for id := range entry.conns {
		conns = append(conns, id)
	}
	sort.Strings(conns)
	return conns
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	s := r.shard(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok
}

// Snapshot returns a point-in-time copy of every live user ordered by id.
// Shards are copied one at a time, so the result is consistent per user only.
func (r *Registry) Snapshot() []models.LiveUser {
	var users []models.LiveUser
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for id, entry := range s.users {
			conns := make([]string, 0, len(entry.conns))
			for c := range entry.conns {
				conns = append(conns, c)
			}
			sort.Strings(conns)
			users = append(users, models.LiveUser{ID: id, Name: entry.name, ConnectionIDs: conns})
		}
		s.mu.RUnlock()
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

// Len returns the number of live users.
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		n += len(s.users)
		s.mu.RUnlock()
	}
	return n
}
