package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestStore(t *testing.T, clock *fakeClock) *FileStore {
	t.Helper()
	store, err := NewFileStore(FileOptions{
		Path: filepath.Join(t.TempDir(), "cache", "generated-content.json"),
		Now:  clock.Now,
	})
	require.NoError(t, err)
	return store
}

func TestFileStoreRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := newTestStore(t, clock)
	ctx := context.Background()

	store.Set(ctx, "music-abc", "https://cdn.example.com/song.mp3", map[string]any{"duration": 20})

	entry, ok := store.Get(ctx, "music-abc")
	require.True(t, ok)
	assert.Equal(t, "music-abc", entry.Key)
	assert.Equal(t, "https://cdn.example.com/song.mp3", entry.URL)
	assert.True(t, clock.now.Equal(entry.CreatedAt))
	assert.EqualValues(t, 20, entry.Metadata["duration"])

	store.Set(ctx, "music-abc", "https://cdn.example.com/song-2.mp3", nil)
	entry, ok = store.Get(ctx, "music-abc")
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example.com/song-2.mp3", entry.URL)
}

func TestFileStoreExpiredEntryIsPurgedOnGet(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := newTestStore(t, clock)
	ctx := context.Background()

	store.Set(ctx, "character-image-blue", "https://cdn.example.com/blue.jpg", nil)
	clock.now = clock.now.Add(25 * time.Hour)

	all := store.GetAll(ctx)
	require.Contains(t, all, "character-image-blue", "GetAll does not filter by TTL")

	_, ok := store.Get(ctx, "character-image-blue")
	assert.False(t, ok)

	assert.NotContains(t, store.GetAll(ctx), "character-image-blue")
}

func TestFileStoreEntryAtExactlyTTLIsStale(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := newTestStore(t, clock)
	ctx := context.Background()

	store.Set(ctx, "k", "https://cdn.example.com/k", nil)
	clock.now = clock.now.Add(DefaultTTL - time.Second)
	_, ok := store.Get(ctx, "k")
	require.True(t, ok)

	clock.now = clock.now.Add(time.Second)
	_, ok = store.Get(ctx, "k")
	assert.False(t, ok)
}

func TestFileStoreFailsOpenOnCorruptFile(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := newTestStore(t, clock)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0o644))

	_, ok := store.Get(ctx, "anything")
	assert.False(t, ok)
	assert.Empty(t, store.GetAll(ctx))

	store.Set(ctx, "fresh", "https://cdn.example.com/fresh", nil)
	entry, ok := store.Get(ctx, "fresh")
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example.com/fresh", entry.URL)
}

func TestFileStoreRemoveAndClear(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := newTestStore(t, clock)
	ctx := context.Background()

	store.Set(ctx, "a", "https://cdn.example.com/a", nil)
	store.Set(ctx, "b", "https://cdn.example.com/b", nil)

	store.Remove(ctx, "a")
	store.Remove(ctx, "missing")
	_, ok := store.Get(ctx, "a")
	assert.False(t, ok)
	_, ok = store.Get(ctx, "b")
	assert.True(t, ok)

	store.Clear(ctx)
	assert.Empty(t, store.GetAll(ctx))
}

func TestFileStoreReportsLookups(t *testing.T) {
	var hits, misses int
	store, err := NewFileStore(FileOptions{
		Path: filepath.Join(t.TempDir(), "c.json"),
		OnLookup: func(_ string, hit bool) {
			if hit {
				hits++
			} else {
				misses++
			}
		},
	})
	require.NoError(t, err)
	ctx := context.Background()

	store.Get(ctx, "x")
	store.Set(ctx, "x", "https://cdn.example.com/x", nil)
	store.Get(ctx, "x")

	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}

func TestMusicKeyUsesLyricsPrefix(t *testing.T) {
	base := strings.Repeat("la ", 40)
	a := MusicKey(base+"first ending", 256000, 44100)
	b := MusicKey(base+"second ending", 256000, 44100)
	assert.Equal(t, a, b, "only the first runes take part in the fingerprint")
	assert.True(t, strings.HasPrefix(a, PrefixMusic))

	assert.NotEqual(t, a, MusicKey(base, 128000, 44100))
	assert.NotEqual(t, MusicKey("short", 256000, 44100), MusicKey("other", 256000, 44100))
}

func TestCharacterImageKeySlugsName(t *testing.T) {
	assert.Equal(t, "character-image-bts-jungkook", CharacterImageKey("  BTS   Jungkook "))
}

func TestLatestPicksNewestWithPrefix(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := map[string]Entry{
		"captured-image-1": {URL: "old", CreatedAt: t0},
		"captured-image-2": {URL: "new", CreatedAt: t0.Add(time.Minute)},
		"music-x":          {URL: "music", CreatedAt: t0.Add(time.Hour)},
	}
	latest, ok := Latest(entries, PrefixCapturedImage)
	require.True(t, ok)
	assert.Equal(t, "new", latest.URL)
	assert.Equal(t, "captured-image-2", latest.Key)

	_, ok = Latest(entries, PrefixRecordedVideo)
	assert.False(t, ok)
}
