// Package cache persists generation results so identical requests do not hit
// the upstream services twice. Entries expire after a fixed TTL and are purged
// lazily on lookup.
package cache

import (
	"context"
	"time"
)

// DefaultTTL is how long an entry is served by Get.
const DefaultTTL = 24 * time.Hour

// Entry is one cached generation result.
type Entry struct {
	Key       string         `json:"-"`
	URL       string         `json:"url"`
	CreatedAt time.Time      `json:"createdAt"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Age returns how old the entry is at now.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// Store is the contract shared by the orchestrator, the adapters and the HTTP
// layer. Implementations fail open: I/O errors are logged and reported as a
// miss, never returned to the caller.
type Store interface {
	// Get returns the entry when present and younger than the TTL. Expired
	// entries are removed as a side effect.
	Get(ctx context.Context, key string) (Entry, bool)
	// Set upserts an entry stamped with the current time.
	Set(ctx context.Context, key, url string, metadata map[string]any)
	Remove(ctx context.Context, key string)
	Clear(ctx context.Context)
	// GetAll returns every persisted entry without TTL filtering.
	GetAll(ctx context.Context) map[string]Entry
}
