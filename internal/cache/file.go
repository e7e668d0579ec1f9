package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"bethemayor/internal/infra"
)

// FileOptions configures a FileStore.
type FileOptions struct {
	Path   string
	TTL    time.Duration
	Logger *infra.Logger
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
	// OnLookup is called after every Get with the hit/miss outcome.
	OnLookup func(key string, hit bool)
}

// FileStore keeps every entry in a single JSON document on disk. The whole
// document is read and rewritten per operation; the mutex only keeps writes
// from this process from interleaving, so concurrent Sets on the same key
// still resolve as last writer wins.
type FileStore struct {
	path     string
	ttl      time.Duration
	logger   *infra.Logger
	now      func() time.Time
	onLookup func(key string, hit bool)
	mu       sync.Mutex
}

// NewFileStore prepares the cache directory and returns a store rooted at
// opts.Path.
func NewFileStore(opts FileOptions) (*FileStore, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, errors.New("cache: file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cache: ensure directory: %w", err)
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &FileStore{
		path:     path,
		ttl:      ttl,
		logger:   infra.LoggerOrDiscard(opts.Logger),
		now:      now,
		onLookup: opts.OnLookup,
	}, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// TTL returns the configured freshness window.
func (s *FileStore) TTL() time.Duration {
	return s.ttl
}

func (s *FileStore) Get(ctx context.Context, key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		s.logger.Warn().Err(err).Str("cache_key", key).Msg("cache: read failed, treating as miss")
		s.lookup(key, false)
		return Entry{}, false
	}
	entry, ok := entries[key]
	if !ok {
		s.lookup(key, false)
		return Entry{}, false
	}
	if entry.Age(s.now()) >= s.ttl {
		delete(entries, key)
		if err := s.write(entries); err != nil {
			s.logger.Warn().Err(err).Str("cache_key", key).Msg("cache: purge of expired entry failed")
		} else {
			s.logger.Debug().Str("cache_key", key).Msg("cache: purged expired entry")
		}
		s.lookup(key, false)
		return Entry{}, false
	}
	entry.Key = key
	s.lookup(key, true)
	return entry, true
}

func (s *FileStore) Set(ctx context.Context, key, url string, metadata map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		s.logger.Warn().Err(err).Str("cache_key", key).Msg("cache: read failed, rewriting cache file")
		entries = map[string]Entry{}
	}
	entries[key] = Entry{URL: url, CreatedAt: s.now().UTC(), Metadata: metadata}
	if err := s.write(entries); err != nil {
		s.logger.Warn().Err(err).Str("cache_key", key).Msg("cache: write failed")
	}
}

func (s *FileStore) Remove(ctx context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		s.logger.Warn().Err(err).Str("cache_key", key).Msg("cache: read failed")
		return
	}
	if _, ok := entries[key]; !ok {
		return
	}
	delete(entries, key)
	if err := s.write(entries); err != nil {
		s.logger.Warn().Err(err).Str("cache_key", key).Msg("cache: write failed")
	}
}

func (s *FileStore) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(map[string]Entry{}); err != nil {
		s.logger.Warn().Err(err).Msg("cache: clear failed")
	}
}

func (s *FileStore) GetAll(ctx context.Context) map[string]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		s.logger.Warn().Err(err).Msg("cache: read failed")
		return map[string]Entry{}
	}
	for key, entry := range entries {
		entry.Key = key
		entries[key] = entry
	}
	return entries
}

func (s *FileStore) lookup(key string, hit bool) {
	if s.onLookup != nil {
		s.onLookup(key, hit)
	}
}

func (s *FileStore) read() (map[string]Entry, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: read file: %w", err)
	}
	entries := map[string]Entry{}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("cache: decode file: %w", err)
	}
	return entries, nil
}

// write replaces the cache file through a temp file so readers never observe
// a partially written document.
func (s *FileStore) write(entries map[string]Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: encode file: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".cache-*.json")
	if err != nil {
		return fmt.Errorf("cache: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("cache: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cache: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cache: replace file: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
