package cache

import (
	"context"
	"maps"
	"sync"
	"time"
)

// MemoryStore is a map-backed Store for tests and for running without a cache
// file. It applies the same TTL and lazy purge as FileStore but loses data on
// restart.
type MemoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	data map[string]Entry
}

// NewMemoryStore returns an empty store. A non-positive ttl means DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, data: make(map[string]Entry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[key]
	if !ok {
		return Entry{}, false
	}
	if entry.Age(s.now()) >= s.ttl {
		delete(s.data, key)
		return Entry{}, false
	}
	entry.Key = key
	return entry, true
}

func (s *MemoryStore) Set(_ context.Context, key, url string, metadata map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = Entry{Key: key, URL: url, CreatedAt: s.now().UTC(), Metadata: maps.Clone(metadata)}
}

func (s *MemoryStore) Remove(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

func (s *MemoryStore) Clear(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]Entry)
}

func (s *MemoryStore) GetAll(_ context.Context) map[string]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Entry, len(s.data))
	for key, entry := range s.data {
		entry.Key = key
		out[key] = entry
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
