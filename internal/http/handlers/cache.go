package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"bethemayor/internal/domain"
)

type cacheEntryResponse struct {
	URL       string         `json:"url"`
	CreatedAt time.Time      `json:"createdAt"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	// Text mirrors metadata.text for lyrics entries.
	Text string `json:"text,omitempty"`
}

// CacheList returns every entry, stale ones included, so the UI can hydrate
// its state after a reload. Callers filter by createdAt when freshness matters.
func (a *App) CacheList(w http.ResponseWriter, r *http.Request) {
	entries := a.Cache.GetAll(r.Context())
	out := make(map[string]cacheEntryResponse, len(entries))
	for key, entry := range entries {
		resp := cacheEntryResponse{URL: entry.URL, CreatedAt: entry.CreatedAt, Metadata: entry.Metadata}
		if text, ok := entry.Metadata["text"].(string); ok {
			resp.Text = text
		}
		out[key] = resp
	}
	a.json(w, http.StatusOK, map[string]any{"cache": out})
}

type cacheSaveRequest struct {
	Key  string         `json:"key"`
	URL  string         `json:"url"`
	Data map[string]any `json:"data"`
}

// CacheSave stores a client-produced entry such as streamed lyrics.
func (a *App) CacheSave(w http.ResponseWriter, r *http.Request) {
	var req cacheSaveRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	key := strings.TrimSpace(req.Key)
	if key == "" {
		a.fail(w, r, domain.NewValidationError("Key is required"))
		return
	}
	url := req.URL
	if url == "" {
		url, _ = req.Data["url"].(string)
	}
	a.Cache.Set(r.Context(), key, url, req.Data)
	a.json(w, http.StatusOK, map[string]any{"success": true, "key": key})
}

// CacheClear backs the "reset all data" action.
func (a *App) CacheClear(w http.ResponseWriter, r *http.Request) {
	a.Cache.Clear(r.Context())
	a.json(w, http.StatusOK, map[string]any{"success": true})
}

func (a *App) CacheDelete(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "key"))
	if key == "" {
		a.fail(w, r, domain.NewValidationError("Key is required"))
		return
	}
	a.Cache.Remove(r.Context(), key)
	a.json(w, http.StatusOK, map[string]any{"success": true, "key": key})
}
