// Package routing decides which SIP endpoint should receive a call.
package routing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dialplane/dialplane/internal/database"
	"github.com/dialplane/dialplane/internal/database/models"
)

// Target kinds returned by Resolve.
const (
	TargetAgent    = "agent"
	TargetFallback = "fallback"
	TargetNone     = "none"
)

// Target is where a call should be bridged. SIPURI is empty when Kind is
// TargetNone; Agent is set only for TargetAgent.
type Target struct {
	Kind   string
	SIPURI string
	Agent  *models.Agent
}

// Resolver picks a SIP destination for a call: first available agent, then
// the dialed number's org-level dispatcher fallback, then the process-wide
// configured fallback. Lookup errors degrade to "not found" so routing never
// fails a call outright.
type Resolver struct {
	agents        database.AgentRepository
	numbers       database.InboundNumberRepository
	voiceSettings database.VoiceSettingsRepository

	sipDomain       string
	fallbackSIPUser string
	logger          *slog.Logger
}

// NewResolver creates a routing resolver. fallbackSIPUser may be empty, in
// which case the final tier resolves to no target.
func NewResolver(agents database.AgentRepository, numbers database.InboundNumberRepository, voiceSettings database.VoiceSettingsRepository, sipDomain, fallbackSIPUser string, logger *slog.Logger) *Resolver {
	return &Resolver{
		agents:          agents,
		numbers:         numbers,
		voiceSettings:   voiceSettings,
		sipDomain:       sipDomain,
		fallbackSIPUser: fallbackSIPUser,
		logger:          logger.With("subsystem", "routing"),
	}
}

// SIPURI builds a sip: URI for a username on the resolver's SIP domain.
func (r *Resolver) SIPURI(username string) string {
	return fmt.Sprintf("sip:%s@%s", username, r.sipDomain)
}

// Resolve returns the SIP target for a call dialed to dialedNumber. The
// number may be empty for agent-first outbound legs, which skip the org
// fallback tier.
func (r *Resolver) Resolve(ctx context.Context, dialedNumber string) Target {
	if agent := r.AvailableAgent(ctx); agent != nil {
		return Target{Kind: TargetAgent, SIPURI: r.SIPURI(agent.SIPUsername), Agent: agent}
	}

	if dialedNumber != "" {
		if username := r.orgFallback(ctx, dialedNumber); username != "" {
			return Target{Kind: TargetFallback, SIPURI: r.SIPURI(username)}
		}
	}

	if r.fallbackSIPUser != "" {
		return Target{Kind: TargetFallback, SIPURI: r.SIPURI(r.fallbackSIPUser)}
	}

	return Target{Kind: TargetNone}
}

// AvailableAgent returns the first available agent with a SIP username, or
// nil if none is available.
func (r *Resolver) AvailableAgent(ctx context.Context) *models.Agent {
	agent, err := r.agents.GetFirstAvailable(ctx)
	if err != nil {
		r.logger.Error("agent lookup failed", "error", err)
		return nil
	}
	if agent == nil || agent.SIPUsername == "" {
		return nil
	}
	return agent
}

// OwningOrg resolves the organization that owns a dialed number, or 0 if the
// number is not a known enabled DID.
func (r *Resolver) OwningOrg(ctx context.Context, dialedNumber string) int64 {
	num, err := r.numbers.GetEnabledByNumber(ctx, dialedNumber)
	if err != nil {
		r.logger.Error("inbound number lookup failed", "number", dialedNumber, "error", err)
		return 0
	}
	if num == nil {
		return 0
	}
	return num.OrgID
}

// orgFallback returns the dispatcher SIP username configured for the org
// owning dialedNumber, or "" when the org has no usable fallback.
func (r *Resolver) orgFallback(ctx context.Context, dialedNumber string) string {
	orgID := r.OwningOrg(ctx, dialedNumber)
	if orgID == 0 {
		return ""
	}

	vs, err := r.voiceSettings.GetByOrgID(ctx, orgID)
	if err != nil {
		r.logger.Error("voice settings lookup failed", "org_id", orgID, "error", err)
		return ""
	}
	if vs == nil || vs.FallbackMode != models.FallbackModeDispatcherSIP || vs.FallbackSIPUsername == "" {
		return ""
	}
	return vs.FallbackSIPUsername
}
