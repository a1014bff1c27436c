package api

import (
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dialplane/dialplane/internal/database"
	"github.com/dialplane/dialplane/internal/database/models"
)

// activeCallResponse is the JSON representation of one bridged pairing.
type activeCallResponse struct {
	AgentID       int64  `json:"agent_id"`
	CustomerLegID string `json:"customer_leg_id"`
	HoldState     string `json:"hold_state"`
	PlaybackState string `json:"playback_state"`
	StartedAt     string `json:"started_at"`
}

// handleListActiveCalls returns all currently bridged agent/customer pairs.
func (s *Server) handleListActiveCalls(w http.ResponseWriter, r *http.Request) {
	calls, err := s.activeCalls.List(r.Context())
	if err != nil {
		slog.Error("list active calls: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]activeCallResponse, len(calls))
	for i, c := range calls {
		items[i] = activeCallResponse{
			AgentID:       c.AgentID,
			CustomerLegID: c.CustomerLegID,
			HoldState:     c.HoldState,
			PlaybackState: c.PlaybackState,
			StartedAt:     c.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, items)
}

// callRecordResponse is the JSON representation of a call record.
type callRecordResponse struct {
	ID            int64   `json:"id"`
	Sid           string  `json:"sid"`
	Direction     string  `json:"direction"`
	FromNumber    string  `json:"from_number"`
	ToNumber      string  `json:"to_number"`
	AgentID       *int64  `json:"agent_id"`
	CallSessionID string  `json:"call_session_id"`
	CallLegID     string  `json:"call_leg_id"`
	StartedAt     string  `json:"started_at"`
	AnsweredAt    *string `json:"answered_at"`
	EndedAt       *string `json:"ended_at"`
	DurationSecs  *int    `json:"duration_secs"`
	Disposition   string  `json:"disposition"`
	HangupCause   string  `json:"hangup_cause"`

	RecordingID         string `json:"recording_id,omitempty"`
	RecordingState      string `json:"recording_state,omitempty"`
	RecordingDurationMS *int64 `json:"recording_duration_ms,omitempty"`
}

// toCallRecordResponse converts a models.CallRecord to the API response.
func toCallRecordResponse(c *models.CallRecord) callRecordResponse {
	resp := callRecordResponse{
		ID:            c.ID,
		Sid:           c.Sid,
		Direction:     c.Direction,
		FromNumber:    c.FromNumber,
		ToNumber:      c.ToNumber,
		AgentID:       c.AgentID,
		CallSessionID: c.CallSessionID,
		CallLegID:     c.CallLegID,
		StartedAt:     c.StartedAt.Format(time.RFC3339),
		DurationSecs:  c.DurationSecs,
		Disposition:   c.Disposition,
		HangupCause:   c.HangupCause,

		RecordingID:         c.RecordingID,
		RecordingState:      c.RecordingState,
		RecordingDurationMS: c.RecordingDurationMS,
	}
	if c.AnsweredAt != nil {
		s := c.AnsweredAt.Format(time.RFC3339)
		resp.AnsweredAt = &s
	}
	if c.EndedAt != nil {
		s := c.EndedAt.Format(time.RFC3339)
		resp.EndedAt = &s
	}
	return resp
}

// recordListFilter builds a CallRecordListFilter from the shared list/export
// query parameters. Returns an error message or "".
func recordListFilter(r *http.Request, limit, offset int) (database.CallRecordListFilter, string) {
	q := r.URL.Query()
	direction := q.Get("direction")
	if direction != "" && direction != models.DirectionInbound && direction != models.DirectionOutbound {
		return database.CallRecordListFilter{}, "direction must be \"inbound\" or \"outbound\""
	}

	return database.CallRecordListFilter{
		Limit:     limit,
		Offset:    offset,
		Search:    q.Get("search"),
		Direction: direction,
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
	}, ""
}

// handleListCallRecords returns call records with pagination and optional filters.
// Query params: limit, offset, search, direction, start_date, end_date.
func (s *Server) handleListCallRecords(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	filter, errMsg := recordListFilter(r, pg.Limit, pg.Offset)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	records, total, err := s.callRecords.List(r.Context(), filter)
	if err != nil {
		slog.Error("list call records: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]callRecordResponse, len(records))
	for i := range records {
		items[i] = toCallRecordResponse(&records[i])
	}

	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  items,
		Total:  total,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
}

// handleGetCallRecord returns a single call record by sid.
func (s *Server) handleGetCallRecord(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")

	rec, err := s.callRecords.GetBySid(r.Context(), sid)
	if err != nil {
		slog.Error("get call record: failed to query", "error", err, "sid", sid)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "call record not found")
		return
	}

	writeJSON(w, http.StatusOK, toCallRecordResponse(rec))
}

// handleExportCallRecords exports call records as CSV with the same filters
// as list. Export is capped at 10000 rows.
func (s *Server) handleExportCallRecords(w http.ResponseWriter, r *http.Request) {
	filter, errMsg := recordListFilter(r, 10000, 0)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	records, _, err := s.callRecords.List(r.Context(), filter)
	if err != nil {
		slog.Error("export call records: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=calls.csv")

	cw := csv.NewWriter(w)
	// Write header row.
	cw.Write([]string{
		"Sid", "Direction", "From", "To", "Agent ID",
		"Started At", "Answered At", "Ended At", "Duration",
		"Disposition", "Hangup Cause", "Recording ID",
	})

	for _, c := range records {
		answeredAt := ""
		if c.AnsweredAt != nil {
			answeredAt = c.AnsweredAt.Format(time.RFC3339)
		}
		endedAt := ""
		if c.EndedAt != nil {
			endedAt = c.EndedAt.Format(time.RFC3339)
		}
		duration := ""
		if c.DurationSecs != nil {
			duration = strconv.Itoa(*c.DurationSecs)
		}
		agentID := ""
		if c.AgentID != nil {
			agentID = strconv.FormatInt(*c.AgentID, 10)
		}

		cw.Write([]string{
			c.Sid,
			c.Direction,
			c.FromNumber,
			c.ToNumber,
			agentID,
			c.StartedAt.Format(time.RFC3339),
			answeredAt,
			endedAt,
			duration,
			c.Disposition,
			c.HangupCause,
			c.RecordingID,
		})
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		slog.Error("export call records: csv write error", "error", err)
	}
}

// handleCallHistory aggregates the provider-side call history between two
// numbers. Query params: number_a, number_b, from, to (RFC3339, optional).
func (s *Server) handleCallHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	numberA := q.Get("number_a")
	numberB := q.Get("number_b")
	if errMsg := validateE164("number_a", numberA); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateE164("number_b", numberB); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	// Default window: the last 30 days.
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be RFC3339")
			return
		}
		from = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be RFC3339")
			return
		}
		to = t
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, "from must be before to")
		return
	}

	sessions, err := s.reconciler.History(r.Context(), numberA, numberB, from, to)
	if err != nil {
		slog.Error("call history: failed", "error", err)
		writeError(w, http.StatusBadGateway, "telephony provider query failed")
		return
	}

	writeJSON(w, http.StatusOK, sessions)
}
