package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dialplane/dialplane/internal/database/models"
	"github.com/dialplane/dialplane/internal/dialer"
)

// numberResponse is the JSON representation of an inbound number.
type numberResponse struct {
	ID        int64  `json:"id"`
	Number    string `json:"number"`
	OrgID     int64  `json:"org_id"`
	Label     string `json:"label"`
	Enabled   bool   `json:"enabled"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// toNumberResponse converts a models.InboundNumber to the API response.
func toNumberResponse(n *models.InboundNumber) numberResponse {
	return numberResponse{
		ID:        n.ID,
		Number:    n.Number,
		OrgID:     n.OrgID,
		Label:     n.Label,
		Enabled:   n.Enabled,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
		UpdatedAt: n.UpdatedAt.Format(time.RFC3339),
	}
}

// numberRequest is the JSON body for creating or updating an inbound number.
type numberRequest struct {
	Number  string `json:"number"`
	OrgID   int64  `json:"org_id"`
	Label   string `json:"label"`
	Enabled bool   `json:"enabled"`
}

// validate checks the request fields. Returns an error message or "".
func (req *numberRequest) validate() string {
	if errMsg := validateE164("number", req.Number); errMsg != "" {
		return errMsg
	}
	if req.OrgID <= 0 {
		return "org_id is required"
	}
	if errMsg := validateStringLen("label", req.Label, maxNameLen); errMsg != "" {
		return errMsg
	}
	return validateNoControlChars("label", req.Label)
}

// handleListNumbers returns all inbound numbers.
func (s *Server) handleListNumbers(w http.ResponseWriter, r *http.Request) {
	numbers, err := s.numbers.List(r.Context())
	if err != nil {
		slog.Error("list numbers: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]numberResponse, len(numbers))
	for i := range numbers {
		items[i] = toNumberResponse(&numbers[i])
	}
	writeJSON(w, http.StatusOK, items)
}

// handleCreateNumber maps a DID to an organization.
func (s *Server) handleCreateNumber(w http.ResponseWriter, r *http.Request) {
	var req numberRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := req.validate(); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	org, err := s.orgs.GetByID(r.Context(), req.OrgID)
	if err != nil {
		slog.Error("create number: failed to query org", "error", err, "org_id", req.OrgID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if org == nil {
		writeError(w, http.StatusBadRequest, "organization does not exist")
		return
	}

	normalized, _ := dialer.NormalizeE164(req.Number)
	num := &models.InboundNumber{
		Number:  normalized,
		OrgID:   req.OrgID,
		Label:   req.Label,
		Enabled: req.Enabled,
	}
	if err := s.numbers.Create(r.Context(), num); err != nil {
		slog.Error("create number: failed to insert", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("inbound number created", "number", num.Number, "org_id", num.OrgID)
	writeJSON(w, http.StatusCreated, toNumberResponse(num))
}

// handleGetNumber returns a single inbound number by ID.
func (s *Server) handleGetNumber(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid number id")
		return
	}

	num, err := s.numbers.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("get number: failed to query", "error", err, "number_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if num == nil {
		writeError(w, http.StatusNotFound, "number not found")
		return
	}

	writeJSON(w, http.StatusOK, toNumberResponse(num))
}

// handleUpdateNumber modifies an existing inbound number.
func (s *Server) handleUpdateNumber(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid number id")
		return
	}

	var req numberRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := req.validate(); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	num, err := s.numbers.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("update number: failed to query", "error", err, "number_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if num == nil {
		writeError(w, http.StatusNotFound, "number not found")
		return
	}

	normalized, _ := dialer.NormalizeE164(req.Number)
	num.Number = normalized
	num.OrgID = req.OrgID
	num.Label = req.Label
	num.Enabled = req.Enabled

	if err := s.numbers.Update(r.Context(), num); err != nil {
		slog.Error("update number: failed to update", "error", err, "number_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, toNumberResponse(num))
}

// handleDeleteNumber removes an inbound number mapping.
func (s *Server) handleDeleteNumber(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid number id")
		return
	}

	if err := s.numbers.Delete(r.Context(), id); err != nil {
		slog.Error("delete number: failed to delete", "error", err, "number_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("inbound number deleted", "number_id", id)
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
