package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dialplane/dialplane/internal/api/middleware"
	"github.com/dialplane/dialplane/internal/dialer"
	"github.com/dialplane/dialplane/internal/telnyx"
)

// dialRequest is the JSON body for placing an outbound call.
type dialRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
}

// handleDial places an agent-first outbound call for the authenticated agent.
// The agent's SIP endpoint is rung first; once answered, the agent leg is
// bridged to the destination.
func (s *Server) handleDial(w http.ResponseWriter, r *http.Request) {
	agentID := middleware.AgentIDFromContext(r.Context())

	var req dialRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.To == "" {
		writeError(w, http.StatusBadRequest, "to is required")
		return
	}

	agent, err := s.agents.GetByID(r.Context(), agentID)
	if err != nil {
		slog.Error("dial: failed to query agent", "error", err, "agent_id", agentID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if agent == nil {
		writeError(w, http.StatusUnauthorized, "agent no longer exists")
		return
	}

	result, err := s.dialer.Dial(r.Context(), agent, req.To, req.From)
	if err != nil {
		var valErr *dialer.ValidationError
		var cfgErr *dialer.ConfigError
		switch {
		case errors.As(err, &valErr):
			writeError(w, http.StatusBadRequest, valErr.Error())
		case errors.As(err, &cfgErr):
			slog.Error("dial: telephony not configured", "error", err)
			writeError(w, http.StatusServiceUnavailable, cfgErr.Error())
		default:
			var apiErr *telnyx.APIError
			if errors.As(err, &apiErr) {
				slog.Error("dial: provider rejected call", "error", err, "agent_id", agentID)
				writeError(w, http.StatusBadGateway, "telephony provider rejected the call")
				return
			}
			slog.Error("dial: failed", "error", err, "agent_id", agentID)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, result)
}
