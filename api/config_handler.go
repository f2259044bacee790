package api

import (
	"net/http"
	"time"

	"github.com/seenimoa/stockdash/internal/config"
)

// ConfigResponse is the JSON envelope returned by GET /api/v1/config.
type ConfigResponse struct {
	Config          *config.Config `json:"config"`
	UpstreamTimeout string         `json:"upstream_timeout"`
	SessionIdle     string         `json:"session_idle"`
}

// handleGetConfig returns the running configuration. It is read-only;
// changes go through the config file or STOCKDASH_* variables and a restart.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: ConfigResponse{
			Config:          s.cfg,
			UpstreamTimeout: durationString(s.cfg.UpstreamTimeout()),
			SessionIdle:     durationString(s.cfg.SessionIdleTimeout()),
		},
	})
}

func durationString(d time.Duration) string {
	if d == 0 {
		return "none"
	}
	return d.String()
}
