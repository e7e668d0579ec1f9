package generation

import (
	"net/url"
	"slices"
	"strings"

	"bethemayor/internal/domain"
	"bethemayor/internal/infra"
)

// IsRemoteURL reports whether raw is an absolute http(s) URL with a host.
func IsRemoteURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// optionalMediaURL returns raw when it is usable as upstream media input and
// "" otherwise. Dropped values are logged but never fail the request.
func optionalMediaURL(raw, field string, logger *infra.Logger) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if IsRemoteURL(raw) {
		return raw
	}
	logger.Warn().Str("field", field).Str("value", truncate(raw, 64)).Msg("generation: dropping non-http media input")
	return ""
}

// requireMediaURL validates a media input the capability cannot do without.
// Data and blob URLs are local to the browser and must be uploaded first.
func requireMediaURL(raw, field string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.NewValidationError(field + " is required")
	}
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "blob:") {
		return domain.NewValidationError(field + " must be an uploaded http(s) URL, not a data or blob URL")
	}
	if !IsRemoteURL(raw) {
		return domain.NewValidationError(field + " must be an http(s) URL")
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func oneOf[T comparable](value T, allowed ...T) bool {
	return slices.Contains(allowed, value)
}
