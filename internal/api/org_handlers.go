package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dialplane/dialplane/internal/database/models"
)

// orgResponse is the JSON representation of an organization.
type orgResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// toOrgResponse converts a models.Organization to the API response.
func toOrgResponse(o *models.Organization) orgResponse {
	return orgResponse{
		ID:        o.ID,
		Name:      o.Name,
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
		UpdatedAt: o.UpdatedAt.Format(time.RFC3339),
	}
}

// orgRequest is the JSON body for creating or updating an organization.
type orgRequest struct {
	Name string `json:"name"`
}

// handleListOrgs returns all organizations.
func (s *Server) handleListOrgs(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.orgs.List(r.Context())
	if err != nil {
		slog.Error("list orgs: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]orgResponse, len(orgs))
	for i := range orgs {
		items[i] = toOrgResponse(&orgs[i])
	}
	writeJSON(w, http.StatusOK, items)
}

// handleCreateOrg creates a new organization.
func (s *Server) handleCreateOrg(w http.ResponseWriter, r *http.Request) {
	var req orgRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("name", req.Name, maxNameLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateNoControlChars("name", req.Name); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	org := &models.Organization{Name: req.Name}
	if err := s.orgs.Create(r.Context(), org); err != nil {
		slog.Error("create org: failed to insert", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("organization created", "org_id", org.ID)
	writeJSON(w, http.StatusCreated, toOrgResponse(org))
}

// handleGetOrg returns a single organization by ID.
func (s *Server) handleGetOrg(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid organization id")
		return
	}

	org, err := s.orgs.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("get org: failed to query", "error", err, "org_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if org == nil {
		writeError(w, http.StatusNotFound, "organization not found")
		return
	}

	writeJSON(w, http.StatusOK, toOrgResponse(org))
}

// handleUpdateOrg renames an organization.
func (s *Server) handleUpdateOrg(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid organization id")
		return
	}

	var req orgRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("name", req.Name, maxNameLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	org, err := s.orgs.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("update org: failed to query", "error", err, "org_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if org == nil {
		writeError(w, http.StatusNotFound, "organization not found")
		return
	}

	org.Name = req.Name
	if err := s.orgs.Update(r.Context(), org); err != nil {
		slog.Error("update org: failed to update", "error", err, "org_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, toOrgResponse(org))
}

// handleDeleteOrg removes an organization.
func (s *Server) handleDeleteOrg(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid organization id")
		return
	}

	if err := s.orgs.Delete(r.Context(), id); err != nil {
		slog.Error("delete org: failed to delete", "error", err, "org_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("organization deleted", "org_id", id)
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// voiceSettingsResponse is the JSON representation of an organization's
// inbound fallback configuration.
type voiceSettingsResponse struct {
	OrgID               int64  `json:"org_id"`
	FallbackMode        string `json:"fallback_mode"`
	FallbackSIPUsername string `json:"fallback_sip_username"`
}

// handleGetVoiceSettings returns an organization's fallback configuration.
// Organizations without explicit settings report fallback mode "none".
func (s *Server) handleGetVoiceSettings(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid organization id")
		return
	}

	org, err := s.orgs.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("get voice settings: failed to query org", "error", err, "org_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if org == nil {
		writeError(w, http.StatusNotFound, "organization not found")
		return
	}

	vs, err := s.voiceSettings.GetByOrgID(r.Context(), id)
	if err != nil {
		slog.Error("get voice settings: failed to query", "error", err, "org_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := voiceSettingsResponse{OrgID: id, FallbackMode: models.FallbackModeNone}
	if vs != nil {
		resp.FallbackMode = vs.FallbackMode
		resp.FallbackSIPUsername = vs.FallbackSIPUsername
	}
	writeJSON(w, http.StatusOK, resp)
}

// voiceSettingsRequest is the JSON body for updating fallback configuration.
type voiceSettingsRequest struct {
	FallbackMode        string `json:"fallback_mode"`
	FallbackSIPUsername string `json:"fallback_sip_username"`
}

// handleUpdateVoiceSettings upserts an organization's fallback configuration.
func (s *Server) handleUpdateVoiceSettings(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid organization id")
		return
	}

	var req voiceSettingsRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	switch req.FallbackMode {
	case models.FallbackModeNone, models.FallbackModeDispatcherSIP:
	default:
		writeError(w, http.StatusBadRequest, "fallback_mode must be \"none\" or \"dispatcher_sip\"")
		return
	}
	if req.FallbackMode == models.FallbackModeDispatcherSIP && req.FallbackSIPUsername == "" {
		writeError(w, http.StatusBadRequest, "fallback_sip_username is required for dispatcher_sip mode")
		return
	}
	if errMsg := validateSIPUsername("fallback_sip_username", req.FallbackSIPUsername); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	org, err := s.orgs.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("update voice settings: failed to query org", "error", err, "org_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if org == nil {
		writeError(w, http.StatusNotFound, "organization not found")
		return
	}

	vs := &models.VoiceSettings{
		OrgID:               id,
		FallbackMode:        req.FallbackMode,
		FallbackSIPUsername: req.FallbackSIPUsername,
	}
	if err := s.voiceSettings.Upsert(r.Context(), vs); err != nil {
		slog.Error("update voice settings: failed to upsert", "error", err, "org_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("voice settings updated", "org_id", id, "fallback_mode", vs.FallbackMode)
	writeJSON(w, http.StatusOK, voiceSettingsResponse{
		OrgID:               id,
		FallbackMode:        vs.FallbackMode,
		FallbackSIPUsername: vs.FallbackSIPUsername,
	})
}
