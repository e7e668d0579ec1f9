package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"bethemayor/internal/domain"
	"bethemayor/internal/pipeline"
)

// RunPipeline starts a rap video run and streams its progress as NDJSON, one
// event per line, ending with a complete or aborted event. Closing the
// connection cancels the run.
func (a *App) RunPipeline(w http.ResponseWriter, r *http.Request) {
	var in pipeline.Input
	if err := decode(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	if strings.TrimSpace(in.Character) == "" {
		a.fail(w, r, domain.NewValidationError("Character is required"))
		return
	}
	if _, ok := a.Catalog.Character(in.Character); !ok {
		a.fail(w, r, domain.NewValidationError("Unknown character "+strings.TrimSpace(in.Character)))
		return
	}

	rc := http.NewResponseController(w)
	// A run can outlast the server's write timeout; the stream ends with the
	// run or the client.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	for ev := range a.Pipeline.Start(r.Context(), in) {
		if err := enc.Encode(ev); err != nil {
			a.Logger.Debug().Err(err).Str("run_id", ev.RunID).Msg("http: pipeline stream closed")
			continue
		}
		_ = rc.Flush()
	}
}
