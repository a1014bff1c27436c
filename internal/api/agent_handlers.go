package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dialplane/dialplane/internal/api/middleware"
	"github.com/dialplane/dialplane/internal/database"
	"github.com/dialplane/dialplane/internal/database/models"
)

// agentResponse is the JSON representation of an agent. The password hash
// and push token never leave the server.
type agentResponse struct {
	ID          int64  `json:"id"`
	OrgID       *int64 `json:"org_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	SIPUsername string `json:"sip_username"`
	Status      string `json:"status"`
	HasDevice   bool   `json:"has_device"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// toAgentResponse converts a models.Agent to the API response.
func toAgentResponse(a *models.Agent) agentResponse {
	return agentResponse{
		ID:          a.ID,
		OrgID:       a.OrgID,
		Name:        a.Name,
		Email:       a.Email,
		SIPUsername: a.SIPUsername,
		Status:      a.Status,
		HasDevice:   a.PushToken != "",
		CreatedAt:   a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   a.UpdatedAt.Format(time.RFC3339),
	}
}

// agentRequest is the JSON body for creating or updating an agent.
type agentRequest struct {
	OrgID       *int64 `json:"org_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	SIPUsername string `json:"sip_username"`
	Password    string `json:"password"`
}

// validate checks the request fields. Returns an error message or "".
func (req *agentRequest) validate(requirePassword bool) string {
	if errMsg := validateRequiredStringLen("name", req.Name, maxNameLen); errMsg != "" {
		return errMsg
	}
	if errMsg := validateNoControlChars("name", req.Name); errMsg != "" {
		return errMsg
	}
	if req.Email == "" {
		return "email is required"
	}
	if errMsg := validateEmail("email", req.Email); errMsg != "" {
		return errMsg
	}
	if errMsg := validateSIPUsername("sip_username", req.SIPUsername); errMsg != "" {
		return errMsg
	}
	if requirePassword && req.Password == "" {
		return "password is required"
	}
	if req.Password != "" {
		if len(req.Password) < minPasswordLen {
			return "password must be at least 8 characters"
		}
		if errMsg := validateStringLen("password", req.Password, maxPasswordLen); errMsg != "" {
			return errMsg
		}
	}
	return ""
}

// handleListAgents returns all agents.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.agents.List(r.Context())
	if err != nil {
		slog.Error("list agents: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]agentResponse, len(agents))
	for i := range agents {
		items[i] = toAgentResponse(&agents[i])
	}
	writeJSON(w, http.StatusOK, items)
}

// handleCreateAgent creates a new agent.
func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := req.validate(true); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	hash, err := database.HashPassword(req.Password)
	if err != nil {
		slog.Error("create agent: failed to hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	agent := &models.Agent{
		OrgID:        req.OrgID,
		Name:         req.Name,
		Email:        req.Email,
		SIPUsername:  req.SIPUsername,
		PasswordHash: hash,
		Status:       models.AgentOffline,
	}
	if err := s.agents.Create(r.Context(), agent); err != nil {
		slog.Error("create agent: failed to insert", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("agent created", "agent_id", agent.ID, "sip_username", agent.SIPUsername)
	writeJSON(w, http.StatusCreated, toAgentResponse(agent))
}

// handleGetAgent returns a single agent by ID.
func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}

	agent, err := s.agents.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("get agent: failed to query", "error", err, "agent_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if agent == nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	writeJSON(w, http.StatusOK, toAgentResponse(agent))
}

// handleUpdateAgent modifies an existing agent. A blank password keeps the
// current one.
func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}

	var req agentRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := req.validate(false); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	agent, err := s.agents.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("update agent: failed to query", "error", err, "agent_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if agent == nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	agent.OrgID = req.OrgID
	agent.Name = req.Name
	agent.Email = req.Email
	agent.SIPUsername = req.SIPUsername
	if req.Password != "" {
		hash, err := database.HashPassword(req.Password)
		if err != nil {
			slog.Error("update agent: failed to hash password", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		agent.PasswordHash = hash
	}

	if err := s.agents.Update(r.Context(), agent); err != nil {
		slog.Error("update agent: failed to update", "error", err, "agent_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, toAgentResponse(agent))
}

// handleDeleteAgent removes an agent.
func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}

	if err := s.agents.Delete(r.Context(), id); err != nil {
		slog.Error("delete agent: failed to delete", "error", err, "agent_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("agent deleted", "agent_id", id)
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// statusRequest is the JSON body for updating an agent's availability.
type statusRequest struct {
	Status string `json:"status"`
}

// handleUpdateAgentStatus sets an agent's availability status.
func (s *Server) handleUpdateAgentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}

	var req statusRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	switch req.Status {
	case models.AgentAvailable, models.AgentBusy, models.AgentOffline:
	default:
		writeError(w, http.StatusBadRequest, "status must be \"available\", \"busy\", or \"offline\"")
		return
	}

	agent, err := s.agents.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("update agent status: failed to query", "error", err, "agent_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if agent == nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	if err := s.agents.UpdateStatus(r.Context(), id, req.Status); err != nil {
		slog.Error("update agent status: failed to update", "error", err, "agent_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("agent status changed", "agent_id", id, "status", req.Status)
	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

// pushTokenRequest is the JSON body for registering an agent device token.
type pushTokenRequest struct {
	PushToken string `json:"push_token"`
}

// handleUpdatePushToken stores the authenticated agent's FCM registration
// token. An empty token unregisters the device.
func (s *Server) handleUpdatePushToken(w http.ResponseWriter, r *http.Request) {
	agentID := middleware.AgentIDFromContext(r.Context())

	var req pushTokenRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateStringLen("push_token", req.PushToken, 4096); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	agent, err := s.agents.GetByID(r.Context(), agentID)
	if err != nil {
		slog.Error("update push token: failed to query", "error", err, "agent_id", agentID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if agent == nil {
		writeError(w, http.StatusUnauthorized, "agent no longer exists")
		return
	}

	agent.PushToken = req.PushToken
	if err := s.agents.Update(r.Context(), agent); err != nil {
		slog.Error("update push token: failed to update", "error", err, "agent_id", agentID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"registered": req.PushToken != ""})
}
