package cache

import (
	"container/heap"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// DefaultMaxEntries is the capacity used when Config.MaxEntries is unset.
	DefaultMaxEntries = 1000

	// DefaultTTL is the entry lifetime used when Config.TTL is unset.
	DefaultTTL = 600 * time.Second
)

// Config holds the construction-time settings of a store.
// Neither value can be changed after construction.
type Config struct {
	MaxEntries int
	TTL        time.Duration

	// Clock defaults to the wall clock. Tests pass clock.NewMock().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// entry is a single stored value. index is its position in the expiry heap.
type entry struct {
	key        string
	value      any
	insertedAt time.Time
	expiresAt  time.Time
	seq        uint64
	index      int
}

// Store is a bounded key/value map whose entries expire a fixed duration
// after they were written.
//
// When a new key is inserted into a full store, the entry closest to expiry
// is evicted; ties go to the entry written first. Expired entries are always
// closest to expiry, so they are reclaimed before any live entry.
//
// Store is not safe for concurrent use. Cache serializes access to it.
type Store struct {
	capacity int
	ttl      time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	items map[string]*entry
	order expiryHeap
	seq   uint64
}

// NewStore creates an empty store.
func NewStore(cfg Config) *Store {
	cfg = cfg.withDefaults()
	return &Store{
		capacity: cfg.MaxEntries,
		ttl:      cfg.TTL,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		items:    make(map[string]*entry, cfg.MaxEntries),
		order:    make(expiryHeap, 0, cfg.MaxEntries),
	}
}

// Capacity returns the maximum number of entries.
func (s *Store) Capacity() int { return s.capacity }

// TTL returns the default entry lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

// Put inserts or overwrites key with the default TTL.
func (s *Store) Put(key string, value any) {
	s.PutTTL(key, value, s.ttl)
}

// PutTTL inserts or overwrites key with the given lifetime.
// A non-positive ttl means the store default.
func (s *Store) PutTTL(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := s.clock.Now()
	s.seq++

	if e, ok := s.items[key]; ok {
		e.value = value
		e.insertedAt = now
		e.expiresAt = now.Add(ttl)
		e.seq = s.seq
		heap.Fix(&s.order, e.index)
		return
	}

	if len(s.items) >= s.capacity {
		s.evictOne(now)
	}

	e := &entry{
		key:        key,
		value:      value,
		insertedAt: now,
		expiresAt:  now.Add(ttl),
		seq:        s.seq,
	}
	s.items[key] = e
	heap.Push(&s.order, e)
}

// Get returns the value for key. Expired entries are removed and reported
// as absent. Reading does not extend an entry's lifetime.
func (s *Store) Get(key string) (any, bool) {
	e, ok := s.items[key]
	if !ok {
		return nil, false
	}
	if !s.clock.Now().Before(e.expiresAt) {
		s.remove(e)
		return nil, false
	}
	return e.value, true
}

// Delete removes key if present.
func (s *Store) Delete(key string) {
	if e, ok := s.items[key]; ok {
		s.remove(e)
	}
}

// Clear removes every entry.
func (s *Store) Clear() {
	clear(s.items)
	for i := range s.order {
		s.order[i] = nil
	}
	s.order = s.order[:0]
}

// Len returns the number of stored entries, including expired entries that
// have not been reclaimed yet.
func (s *Store) Len() int { return len(s.items) }

// Sweep removes all expired entries and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.clock.Now()
	removed := 0
	for len(s.order) > 0 && !now.Before(s.order[0].expiresAt) {
		s.remove(s.order[0])
		removed++
	}
	return removed
}

func (s *Store) evictOne(now time.Time) {
	if len(s.order) == 0 {
		panic("cache: store at capacity with an empty expiry heap")
	}
	victim := s.order[0]
	s.remove(victim)
	s.logger.Debug("cache entry evicted",
		"key", victim.key,
		"expired", !now.Before(victim.expiresAt),
		"capacity", s.capacity,
	)
}

func (s *Store) remove(e *entry) {
	if e.index < 0 || e.index >= len(s.order) || s.order[e.index] != e {
		panic("cache: expiry heap out of sync with entry map")
	}
	heap.Remove(&s.order, e.index)
	delete(s.items, e.key)
}

// expiryHeap orders entries by expiry, then by write sequence.
type expiryHeap []*entry

func (h expiryHeap) Len() int { return len(h) }

func (h expiryHeap) Less(i, j int) bool {
	if h[i].expiresAt.Equal(h[j].expiresAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].expiresAt.Before(h[j].expiresAt)
}

func (h expiryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *expiryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
