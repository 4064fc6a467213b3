package dedupe

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// DefaultMaxEntries bounds the in-memory store. Eviction is a safety valve
// against unbounded growth, not a correctness mechanism: a long-running
// single-process deployment that overflows the cap can re-admit duplicates.
const DefaultMaxEntries = 10_000

// MemoryStore is an LRU-bounded, TTL-aware Store for single-process runs and
// tests. All methods are safe for concurrent use.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

type memoryEntry struct {
	key       string
	expiresAt time.Time
}

// NewMemoryStore creates a MemoryStore. Non-positive maxEntries or ttl fall
// back to DefaultMaxEntries and DefaultTTL.
func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// MarkIfFirstSeen inserts the marker unless a live one exists.
func (s *MemoryStore) MarkIfFirstSeen(_ context.Context, stream, eventID string) (bool, error) {
	key := markerKey(stream, eventID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[key]; ok {
		entry := elem.Value.(*memoryEntry)
		if s.now().Before(entry.expiresAt) {
			s.order.MoveToFront(elem)
			return false, nil
		}
		// Expired marker: treat as absent.
		s.order.Remove(elem)
		delete(s.entries, key)
	}

	s.entries[key] = s.order.PushFront(&memoryEntry{
		key:       key,
		expiresAt: s.now().Add(s.ttl),
	})
	s.evictOverflow()
	return true, nil
}

// Clear removes the marker.
func (s *MemoryStore) Clear(_ context.Context, stream, eventID string) error {
	key := markerKey(stream, eventID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[key]; ok {
		s.order.Remove(elem)
		delete(s.entries, key)
	}
	return nil
}

// Len returns the number of live entries (expired ones may still be counted
// until touched or evicted).
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// evictOverflow drops least-recently-used entries beyond the cap. Caller
// holds the lock.
func (s *MemoryStore) evictOverflow() {
	for len(s.entries) > s.maxEntries {
		oldest := s.order.Back()
		if oldest == nil {
			return
		}
		entry := oldest.Value.(*memoryEntry)
		s.order.Remove(oldest)
		delete(s.entries, entry.key)
	}
}
