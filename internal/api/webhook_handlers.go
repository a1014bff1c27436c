package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/dialplane/dialplane/internal/orchestrator"
)

// maxWebhookBody caps the accepted webhook payload size (1 MB).
const maxWebhookBody = 1 << 20

// handleTelnyxWebhook receives call control events from the telephony
// provider. It always acknowledges with 200 so the provider does not retry;
// a failed event is logged and dropped rather than re-delivered against
// state that has already moved on.
func (s *Server) handleTelnyxWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		slog.Error("webhook: failed to read body", "error", err)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	ev, err := orchestrator.ParseEvent(body)
	if err != nil {
		slog.Warn("webhook: unparseable event", "error", err)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	s.orch.HandleEvent(r.Context(), ev)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
