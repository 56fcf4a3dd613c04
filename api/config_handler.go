package api

import (
	"net/http"

	"github.com/seenimoa/newspulse/internal/config"
)

// ConfigResponse is the JSON envelope returned by GET /api/v1/config.
type ConfigResponse struct {
	Config  config.Config         `json:"config"`
	Secrets []config.SecretStatus `json:"secrets"`
}

// handleGetConfig returns the running configuration with secrets masked.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: ConfigResponse{
			Config:  redact(s.cfg),
			Secrets: config.CheckSecrets(s.cfg),
		},
	})
}

// redact returns a copy of cfg that is safe to expose.
func redact(cfg *config.Config) config.Config {
	out := *cfg
	if out.Storage.DSN != "" {
		out.Storage.DSN = config.MaskDSN(out.Storage.DSN)
	}
	return out
}
