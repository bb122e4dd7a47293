package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(capacity int, ttl time.Duration) (*Store, *clock.Mock) {
	mock := clock.NewMock()
	return NewStore(Config{MaxEntries: capacity, TTL: ttl, Clock: mock}), mock
}

func TestNewStore_Defaults(t *testing.T) {
	s := NewStore(Config{})
	assert.Equal(t, DefaultMaxEntries, s.Capacity())
	assert.Equal(t, DefaultTTL, s.TTL())
	assert.Equal(t, 0, s.Len())
}

func TestStore_ExpiryBoundary(t *testing.T) {
	s, mock := newTestStore(10, 10*time.Second)

	s.Put("k", "v")

	mock.Add(10*time.Second - time.Millisecond)
	v, ok := s.Get("k")
	require.True(t, ok, "entry must be visible before insertedAt+ttl")
	assert.Equal(t, "v", v)

	mock.Add(time.Millisecond)
	_, ok = s.Get("k")
	assert.False(t, ok, "entry must be absent at insertedAt+ttl")
	assert.Equal(t, 0, s.Len(), "expired entry is reclaimed by the read")
}

func TestStore_GetDoesNotRefresh(t *testing.T) {
	s, mock := newTestStore(10, 10*time.Second)
	s.Put("k", 1)

	for i := 0; i < 9; i++ {
		mock.Add(time.Second)
		_, ok := s.Get("k")
		require.True(t, ok)
	}

	mock.Add(time.Second)
	_, ok := s.Get("k")
	assert.False(t, ok)
}

func TestStore_OverwriteResetsInsertedAt(t *testing.T) {
	s, mock := newTestStore(10, 10*time.Second)
	s.Put("k", "old")

	mock.Add(8 * time.Second)
	s.Put("k", "new")

	mock.Add(8 * time.Second)
	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", v)
	assert.Equal(t, 1, s.Len())
}

func TestStore_PutTTL(t *testing.T) {
	s, mock := newTestStore(10, 10*time.Second)

	s.PutTTL("short", 1, time.Second)
	s.PutTTL("default", 2, 0)

	mock.Add(time.Second)
	_, ok := s.Get("short")
	assert.False(t, ok)

	_, ok = s.Get("default")
	assert.True(t, ok, "non-positive ttl falls back to the store default")
}

func TestStore_CapacityNeverExceeded(t *testing.T) {
	const capacity = 5
	s, mock := newTestStore(capacity, time.Minute)

	for i := 0; i < capacity*3; i++ {
		s.Put(fmt.Sprintf("key-%d", i), i)
		mock.Add(time.Millisecond)
		assert.LessOrEqual(t, s.Len(), capacity)
	}
	assert.Equal(t, capacity, s.Len())
}

func TestStore_EvictsEarliestExpiry(t *testing.T) {
	s, mock := newTestStore(3, time.Minute)

	s.Put("a", 1)
	mock.Add(time.Second)
	s.Put("b", 2)
	mock.Add(time.Second)
	s.Put("c", 3)
	mock.Add(time.Second)

	// reading a does not protect it: eviction is by expiry, not recency
	_, ok := s.Get("a")
	require.True(t, ok)

	s.Put("d", 4)

	_, ok = s.Get("a")
	assert.False(t, ok, "a expires first and must be evicted")
	for _, k := range []string{"b", "c", "d"} {
		_, ok := s.Get(k)
		assert.True(t, ok, "expected %s to remain", k)
	}
}

func TestStore_EvictionTieBreakBySequence(t *testing.T) {
	s, _ := newTestStore(3, time.Minute)

	// clock never moves: all expiries are equal
	s.Put("a", 1)
	s.Put("b", 2)
	s.Put("c", 3)
	s.Put("a", 10) // rewrite moves a behind c

	s.Put("d", 4)
	_, ok := s.Get("b")
	assert.False(t, ok, "b is the oldest write and must be evicted")

	s.Put("e", 5)
	_, ok = s.Get("c")
	assert.False(t, ok, "c is now the oldest write")

	v, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)
}

func TestStore_ShortTTLEntryEvictedFirst(t *testing.T) {
	s, mock := newTestStore(2, time.Minute)

	s.Put("long", 1)
	mock.Add(time.Second)
	s.PutTTL("short", 2, 5*time.Second)

	s.Put("new", 3)

	_, ok := s.Get("short")
	assert.False(t, ok)
	_, ok = s.Get("long")
	assert.True(t, ok)
}

func TestStore_ExpiredEntryReclaimedBeforeLive(t *testing.T) {
	s, mock := newTestStore(2, time.Minute)

	s.PutTTL("stale", 1, time.Second)
	s.Put("live", 2)
	mock.Add(2 * time.Second)

	s.Put("new", 3)

	_, ok := s.Get("live")
	assert.True(t, ok)
	_, ok = s.Get("new")
	assert.True(t, ok)
	assert.Equal(t, 2, s.Len())
}

func TestStore_OverwriteAtCapacityDoesNotEvict(t *testing.T) {
	s, _ := newTestStore(2, time.Minute)
	s.Put("a", 1)
	s.Put("b", 2)

	s.Put("a", 3)

	assert.Equal(t, 2, s.Len())
	_, ok := s.Get("b")
	assert.True(t, ok)
}

func TestStore_Delete(t *testing.T) {
	s, _ := newTestStore(10, time.Minute)
	s.Put("a", 1)
	s.Put("b", 2)

	s.Delete("a")
	s.Delete("missing")

	_, ok := s.Get("a")
	assert.False(t, ok)
	_, ok = s.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	s, _ := newTestStore(10, time.Minute)
	for i := 0; i < 5; i++ {
		s.Put(fmt.Sprintf("k%d", i), i)
	}

	s.Clear()
	assert.Equal(t, 0, s.Len())
	s.Clear()
	assert.Equal(t, 0, s.Len())

	_, ok := s.Get("k0")
	assert.False(t, ok)

	// the store remains usable afterwards
	s.Put("k0", "again")
	v, ok := s.Get("k0")
	require.True(t, ok)
	assert.Equal(t, "again", v)
}

func TestStore_Sweep(t *testing.T) {
	s, mock := newTestStore(10, 10*time.Second)

	s.Put("a", 1)
	s.Put("b", 2)
	mock.Add(5 * time.Second)
	s.Put("c", 3)

	assert.Equal(t, 0, s.Sweep())

	mock.Add(5 * time.Second)
	assert.Equal(t, 2, s.Sweep())
	assert.Equal(t, 1, s.Len())

	mock.Add(5 * time.Second)
	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 0, s.Len())
}
