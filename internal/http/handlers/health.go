package handlers

import (
	"net/http"
)

// Health reports liveness. The cache entry count doubles as a check that the
// cache file is readable.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"cacheEntries": len(a.Cache.GetAll(r.Context())),
	})
}
