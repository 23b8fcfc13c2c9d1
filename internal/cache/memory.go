package cache

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Store is an in-memory TTL cache keyed by opaque strings.
//
// Entries live in a map for lookups and in a dense key slice so a sweep can
// draw a uniformly random key in constant time. Removal swaps the last key
// into the vacated slot.
type Store[V any] struct {
	mu         sync.RWMutex
	items      map[string]*slot[V]
	keys       []string
	hits       uint64
	misses     uint64
	defaultTTL time.Duration
	now        func() time.Time
	rng        *rand.Rand
}

type slot[V any] struct {
	Entry[V]
	index int
}

// New creates a store whose Set uses defaultTTL.
func New[V any](defaultTTL time.Duration, opts ...Option) *Store[V] {
	cfg := options{
		now: time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.rng == nil {
		cfg.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Store[V]{
		items:      make(map[string]*slot[V]),
		defaultTTL: defaultTTL,
		now:        cfg.now,
		rng:        cfg.rng,
	}
}

// DefaultTTL returns the TTL applied by Set.
func (s *Store[V]) DefaultTTL() time.Duration {
	return s.defaultTTL
}

// Get returns the live value for key. A missing or expired entry counts as a
// miss; an expired entry is removed on the way out.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero V
	it, ok := s.items[key]
	if !ok {
		s.misses++
		return zero, false
	}
	if it.ExpiredAt(s.now()) {
		s.removeLocked(key, it)
		s.misses++
		return zero, false
	}

	s.hits++
	return it.Value, true
}

// GetMatch is Get for callers that can reject a live value, such as a type
// check on a shared store. A value for which match returns false counts as a
// miss and stays in the store.
func (s *Store[V]) GetMatch(key string, match func(V) bool) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero V
	it, ok := s.items[key]
	if !ok {
		s.misses++
		return zero, false
	}
	if it.ExpiredAt(s.now()) {
		s.removeLocked(key, it)
		s.misses++
		return zero, false
	}
	if !match(it.Value) {
		s.misses++
		return zero, false
	}

	s.hits++
	return it.Value, true
}

// Set stores value under key with the store's default TTL.
func (s *Store[V]) Set(key string, value V) {
	s.SetTTL(key, value, s.defaultTTL)
}

// SetTTL stores value under key, replacing any previous entry. A negative
// ttl produces an entry that is already expired.
func (s *Store[V]) SetTTL(key string, value V, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := s.now().Add(ttl)
	if it, ok := s.items[key]; ok {
		it.Value = value
		it.ExpiresAt = expiresAt
		return
	}

	s.items[key] = &slot[V]{
		Entry: Entry[V]{Value: value, ExpiresAt: expiresAt},
		index: len(s.keys),
	}
	s.keys = append(s.keys, key)
}

// Delete removes key if present.
func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if it, ok := s.items[key]; ok {
		s.removeLocked(key, it)
	}
}

// Clear drops every entry and resets the hit and miss counters.
func (s *Store[V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*slot[V])
	s.keys = nil
	s.hits = 0
	s.misses = 0
}

// Len returns the number of stored entries, including expired entries that
// no read or sweep has removed yet.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.items)
}

// Stats returns the current size, counters and hit rate.
func (s *Store[V]) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		Size:    len(s.items),
		Hits:    s.hits,
		Misses:  s.misses,
		HitRate: HitRate(s.hits, s.misses),
	}
}

func (s *Store[V]) removeLocked(key string, it *slot[V]) {
	last := len(s.keys) - 1
	if it.index != last {
		moved := s.keys[last]
		s.keys[it.index] = moved
		s.items[moved].index = it.index
	}
	s.keys[last] = ""
	s.keys = s.keys[:last]
	delete(s.items, key)
}

// Ensure Store implements Cache interface
var _ Cache[any] = (*Store[any])(nil)
