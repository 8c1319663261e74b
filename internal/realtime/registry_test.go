package realtime_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chathub/internal/realtime"
)

func TestRegistryFirstAndLastConnection(t *testing.T) {
	r := realtime.NewRegistry()

	assert.True(t, r.Register("u1", "Alice", "c1"))
	assert.False(t, r.Register("u1", "Alice", "c2"))
	assert.False(t, r.Register("u1", "Alice", "c1"))
	assert.Equal(t, []string{"c1", "c2"}, r.Connections("u1"))
	assert.True(t, r.IsOnline("u1"))

	assert.False(t, r.Unregister("u1", "c1"))
	assert.False(t, r.Unregister("u1", "unknown"))
	assert.False(t, r.Unregister("nobody", "c1"))
	assert.True(t, r.IsOnline("u1"))

	assert.True(t, r.Unregister("u1", "c2"))
	assert.False(t, r.IsOnline("u1"))
	assert.Nil(t, r.Connections("u1"))
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Unregister("u1", "c2"))
}

func TestRegistrySnapshotIsOrderedCopy(t *testing.T) {
	r := realtime.NewRegistry()
	r.Register("u2", "Bob", "c3")
	r.Register("u1", "Alice", "c2")
	r.Register("u1", "Alice", "c1")

	snapshot := r.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "u1", snapshot[0].ID)
	assert.Equal(t, "Alice", snapshot[0].Name)
	assert.Equal(t, []string{"c1", "c2"}, snapshot[0].ConnectionIDs)
	assert.Equal(t, "u2", snapshot[1].ID)

	snapshot[0].ConnectionIDs[0] = "mutated"
	assert.Equal(t, []string{"c1", "c2"}, r.Connections("u1"))
}

func TestRegistryConcurrentTransitionsBalance(t *testing.T) {
	r := realtime.NewRegistry()
	const users, connsPerUser = 8, 50

	var firsts, lasts atomic.Int64
	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		for c := 0; c < connsPerUser; c++ {
			wg.Add(1)
			go func(userID, connID string) {
				defer wg.Done()
				if r.Register(userID, "", connID) {
					firsts.Add(1)
				}
				if r.Unregister(userID, connID) {
					lasts.Add(1)
				}
			}(fmt.Sprintf("u%d", u), fmt.Sprintf("c%d-%d", u, c))
		}
	}
	wg.Wait()

	assert.Equal(t, firsts.Load(), lasts.Load())
	assert.GreaterOrEqual(t, firsts.Load(), int64(users))
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Snapshot())
}
