package api

import (
	"net/http"
	"time"

	"fleetroute/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	info := map[string]any{
		"build":     buildinfo.Info(),
		"algorithm": buildinfo.Algorithm(),
		"time":      time.Now().UTC().Format(time.RFC3339),
	}
	if s.Config != nil {
		info["config"] = s.Config.Summary()
	}
	writeJSON(w, http.StatusOK, info)
}
