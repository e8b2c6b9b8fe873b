package server

import (
	"log/slog"
	"net/http"
	"time"
)

// statusResponse is the diagnostic snapshot served at /_airlock/status.
type statusResponse struct {
	State      string `json:"state"`
	Degraded   bool   `json:"degraded"`
	Generation string `json:"generation,omitempty"`
	Complete   bool   `json:"complete"`
	Entries    int    `json:"entries"`
	UptimeSecs int64  `json:"uptime_seconds"`
	Version    string `json:"version,omitempty"`
}

// handleStatus reports lifecycle state and serving-generation stats. The
// endpoint stays useful while the store is down: stats are best-effort and
// omitted on error.
func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		State:      s.deps.Lifecycle.State().String(),
		Degraded:   s.deps.Lifecycle.Degraded(),
		UptimeSecs: int64(time.Since(s.started).Seconds()),
		Version:    s.deps.Version,
	}
	if s.deps.Stats != nil {
		stats, err := s.deps.Stats.Stats(r.Context())
		if err != nil {
			slog.LogAttrs(r.Context(), slog.LevelWarn, "status stats unavailable",
				slog.String("error", err.Error()),
			)
		} else {
			resp.Generation = stats.Generation
			resp.Complete = stats.Complete
			resp.Entries = stats.Entries
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
