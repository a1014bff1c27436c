package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Bounds for the batch reconciliation sweep.
const (
	defaultSyncHours = 24
	maxSyncHours     = 24 * 30
	defaultSyncLimit = 200
	maxSyncLimit     = 1000
)

// syncRequest is the JSON body for reconciling a single call's recording.
type syncRequest struct {
	CallSid string `json:"call_sid"`
	Force   bool   `json:"force"`
}

// handleSyncRecording reconciles the recording for one call record.
func (s *Server) handleSyncRecording(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.CallSid == "" {
		writeError(w, http.StatusBadRequest, "call_sid is required")
		return
	}

	rec, err := s.callRecords.GetBySid(r.Context(), req.CallSid)
	if err != nil {
		slog.Error("sync recording: failed to query", "error", err, "sid", req.CallSid)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "call record not found")
		return
	}

	result, err := s.reconciler.SyncCall(r.Context(), rec, req.Force)
	if err != nil {
		slog.Error("sync recording: failed", "error", err, "sid", req.CallSid)
		writeError(w, http.StatusBadGateway, "telephony provider query failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleSyncRecordingsBatch sweeps recent calls missing recordings.
// Query params: hours (default 24), limit (default 200).
func (s *Server) handleSyncRecordingsBatch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	hours := defaultSyncHours
	if raw := q.Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxSyncHours {
			writeError(w, http.StatusBadRequest, "hours must be between 1 and 720")
			return
		}
		hours = n
	}

	limit := defaultSyncLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxSyncLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	until := time.Now().UTC()
	since := until.Add(-time.Duration(hours) * time.Hour)

	result, err := s.reconciler.SyncBatch(r.Context(), since, until, limit)
	if err != nil {
		slog.Error("sync recordings batch: failed", "error", err)
		writeError(w, http.StatusBadGateway, "telephony provider query failed")
		return
	}

	slog.Info("recordings batch reconciled", "checked", result.Checked, "matched", result.Matched)
	writeJSON(w, http.StatusOK, result)
}
