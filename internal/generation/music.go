package generation

import (
	"strings"

	"bethemayor/internal/cache"
	"bethemayor/internal/domain"
	"bethemayor/internal/infra"
	"bethemayor/internal/providers/replicate"
)

const (
	DefaultMusicModel = "minimax/music-01"

	DefaultBitrate         = 256000
	DefaultSampleRate      = 44100
	DefaultMusicDurationS  = 20
	maxMusicDurationSecond = 60
)

// MusicRequest turns lyrics into a song.
type MusicRequest struct {
	Lyrics string `json:"lyrics"`
	// DurationSeconds is the target length. The model decides the final length,
	// so it is only recorded in the result metadata.
	DurationSeconds int `json:"duration,omitempty"`
	Bitrate         int `json:"bitrate,omitempty"`
	SampleRate      int `json:"sample_rate,omitempty"`
	// SongFile optionally points at a reference track.
	SongFile string `json:"song_file,omitempty"`
}

func (r MusicRequest) withDefaults() MusicRequest {
	if r.Bitrate == 0 {
		r.Bitrate = DefaultBitrate
	}
	if r.SampleRate == 0 {
		r.SampleRate = DefaultSampleRate
	}
	if r.DurationSeconds == 0 {
		r.DurationSeconds = DefaultMusicDurationS
	}
	r.Lyrics = strings.TrimSpace(r.Lyrics)
	return r
}

// MusicCapability generates a song from lyrics. Results are cached by a
// fingerprint of the lyrics prefix and the encoding parameters.
func MusicCapability(model string) Capability[MusicRequest] {
	if model == "" {
		model = DefaultMusicModel
	}
	return Capability[MusicRequest]{
		Name:  "music",
		Label: "Music",
		Model: model,
		Validate: func(req MusicRequest) error {
			req = req.withDefaults()
			if req.Lyrics == "" {
				return domain.NewValidationError("Lyrics are required")
			}
			if !oneOf(req.Bitrate, 32000, 64000, 128000, 256000) {
				return domain.NewValidationError("bitrate must be one of 32000, 64000, 128000, 256000")
			}
			if !oneOf(req.SampleRate, 16000, 24000, 32000, 44100) {
				return domain.NewValidationError("sample_rate must be one of 16000, 24000, 32000, 44100")
			}
			if req.DurationSeconds < 0 || req.DurationSeconds > maxMusicDurationSecond {
				return domain.NewValidationError("duration must be between 1 and 60 seconds")
			}
			return nil
		},
		CacheKey: func(req MusicRequest) string {
			req = req.withDefaults()
			return cache.MusicKey(req.Lyrics, req.Bitrate, req.SampleRate)
		},
		BuildInput: func(req MusicRequest, logger *infra.Logger) map[string]any {
			req = req.withDefaults()
			input := map[string]any{
				"lyrics":      req.Lyrics,
				"bitrate":     req.Bitrate,
				"sample_rate": req.SampleRate,
			}
			if song := optionalMediaURL(req.SongFile, "song_file", logger); song != "" {
				input["song_file"] = song
			}
			return input
		},
		Normalize: func(req MusicRequest, pred *replicate.Prediction) (domain.Result, error) {
			req = req.withDefaults()
			url := pred.FirstOutput()
			if url == "" {
				return domain.Result{}, noOutput("music")
			}
			return domain.Success(url, map[string]any{
				"lyrics":      truncate(req.Lyrics, cache.LyricsFingerprintRunes),
				"duration":    req.DurationSeconds,
				"bitrate":     req.Bitrate,
				"sample_rate": req.SampleRate,
			}), nil
		},
	}
}
