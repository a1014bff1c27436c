package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dialplane/dialplane/internal/api/middleware"
	"github.com/dialplane/dialplane/internal/database"
)

// dummyPasswordHash is a well-formed argon2id hash that matches no password.
// Login verifies against it when the email is unknown.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=3,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// loginRequest is the JSON body for agent login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse returns the signed token and its expiry.
type loginResponse struct {
	Token     string        `json:"token"`
	ExpiresAt string        `json:"expires_at"`
	Agent     agentResponse `json:"agent"`
}

// handleLogin authenticates an agent by email and password and issues a JWT.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if errMsg := validateRequiredStringLen("email", req.Email, maxEmailLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("password", req.Password, maxPasswordLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	agent, err := s.agents.GetByEmail(r.Context(), req.Email)
	if err != nil {
		slog.Error("login: failed to query agent", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Run the password check even when no agent matched so a missing email
	// costs the same as a wrong password.
	hash := dummyPasswordHash
	if agent != nil {
		hash = agent.PasswordHash
	}
	ok, err := database.CheckPassword(req.Password, hash)
	if err != nil || !ok || agent == nil {
		slog.Warn("login: invalid credentials", "email", req.Email)
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	token, expiresAt, err := middleware.GenerateAgentToken(s.jwtSecret, agent.ID, agent.SIPUsername)
	if err != nil {
		slog.Error("login: failed to sign token", "error", err, "agent_id", agent.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("agent logged in", "agent_id", agent.ID)
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		Agent:     toAgentResponse(agent),
	})
}

// handleMe returns the authenticated agent's own record.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	agentID := middleware.AgentIDFromContext(r.Context())

	agent, err := s.agents.GetByID(r.Context(), agentID)
	if err != nil {
		slog.Error("me: failed to query agent", "error", err, "agent_id", agentID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if agent == nil {
		writeError(w, http.StatusUnauthorized, "agent no longer exists")
		return
	}

	writeJSON(w, http.StatusOK, toAgentResponse(agent))
}
