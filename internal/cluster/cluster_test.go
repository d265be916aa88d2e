package cluster

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingOwnerStableForSameKey(t *testing.T) {
	r := NewRing("node-a", "node-b", "node-c")
	owner1, ok := r.Owner("chan-1")
	require.True(t, ok)
	owner2, ok := r.Owner("chan-1")
	require.True(t, ok)
	assert.Equal(t, owner1, owner2)
}

func TestRingEmptyHasNoOwner(t *testing.T) {
	r := NewRing()
	_, ok := r.Owner("chan-1")
	assert.False(t, ok)
}

func TestRingAddRemoveNode(t *testing.T) {
	r := NewRing("node-a")
	owner, ok := r.Owner("chan-1")
	require.True(t, ok)
	assert.Equal(t, "node-a", owner)

	r.AddNode("node-b")
	r.RemoveNode("node-a")
	owner, ok = r.Owner("chan-1")
	require.True(t, ok)
	assert.Equal(t, "node-b", owner)
}

type fakeBlockStore struct {
	next    int64
	failing bool
}

func (f *fakeBlockStore) ReserveBlock(channelID string, size int64) (int64, error) {
	if f.failing {
		return 0, fmt.Errorf("store unreachable")
	}
	start := f.next
	f.next += size
	return start, nil
}

func TestBlockAllocatorReservesContiguousBlocks(t *testing.T) {
	store := &fakeBlockStore{}
	a := NewBlockAllocator(store, "chan-1", 3)

	var ids []int64
	for i := 0; i < 7; i++ {
		ids = append(ids, a.Next())
	}
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6}, ids)
}

func TestBlockAllocatorFallsBackOnReservationFailure(t *testing.T) {
	store := &fakeBlockStore{failing: true}
	a := NewBlockAllocator(store, "chan-1", 2)

	first := a.Next()
	second := a.Next()
	assert.Equal(t, first+1, second) // still monotonic despite the store failing
}

func TestModeSessionCacheStandalone(t *testing.T) {
	m := Mode{Enabled: false}
	cache, err := m.SessionCache(nil, errors.New("unused"))
	require.NoError(t, err)
	assert.NotNil(t, cache)
}

func TestModeSessionCacheFallsBackWhenSharedUnreachable(t *testing.T) {
	m := Mode{Enabled: true}
	cache, err := m.SessionCache(nil, errors.New("cache down"))
	require.NoError(t, err)
	assert.NotNil(t, cache)
}

func TestModeSessionCacheStrictReturnsError(t *testing.T) {
	m := Mode{Enabled: true, StrictClusterSessions: true}
	_, err := m.SessionCache(nil, errors.New("cache down"))
	assert.Error(t, err)
}
