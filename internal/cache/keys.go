package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Key prefixes. The UI hydrates its state by scanning GetAll for these.
const (
	PrefixMusic          = "music-"
	PrefixLyrics         = "lyrics-"
	PrefixCharacterImage = "character-image-"
	PrefixCapturedImage  = "captured-image-"
	PrefixRecordedVideo  = "recorded-video-"
)

// LyricsFingerprintRunes bounds how much of the lyrics take part in the music
// fingerprint.
const LyricsFingerprintRunes = 100

// MusicKey fingerprints the salient music parameters.
func MusicKey(lyrics string, bitrate, sampleRate int) string {
	prefix := []rune(strings.TrimSpace(lyrics))
	if len(prefix) > LyricsFingerprintRunes {
		prefix = prefix[:LyricsFingerprintRunes]
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", string(prefix), bitrate, sampleRate)))
	return PrefixMusic + hex.EncodeToString(sum[:8])
}

// CharacterImageKey keys the generated portrait of a character by its name.
func CharacterImageKey(name string) string {
	return PrefixCharacterImage + slug(name)
}

func LyricsKey(character string, at time.Time) string {
	return fmt.Sprintf("%s%s-%d", PrefixLyrics, slug(character), at.UnixMilli())
}

func CapturedImageKey(at time.Time) string {
	return fmt.Sprintf("%s%d", PrefixCapturedImage, at.UnixMilli())
}

func RecordedVideoKey(at time.Time) string {
	return fmt.Sprintf("%s%d", PrefixRecordedVideo, at.UnixMilli())
}

// Latest returns the most recently created entry whose key has prefix.
func Latest(entries map[string]Entry, prefix string) (Entry, bool) {
	var (
		best  Entry
		found bool
	)
	for key, entry := range entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if !found || entry.CreatedAt.After(best.CreatedAt) {
			entry.Key = key
			best = entry
			found = true
		}
	}
	return best, found
}

func slug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}
