// Package dialer places agent-first outbound calls. The call is dialed to
// the agent's own SIP endpoint with the real destination carried in
// client_state; the bridge to the destination is issued once the agent leg
// exists, and the webhook state machine handles the rest.
package dialer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dialplane/dialplane/internal/callstore"
	"github.com/dialplane/dialplane/internal/database"
	"github.com/dialplane/dialplane/internal/database/models"
	"github.com/dialplane/dialplane/internal/orchestrator"
	"github.com/dialplane/dialplane/internal/telnyx"
)

const (
	transferAttempts = 3
	transferBackoff  = 200 * time.Millisecond
)

// Provider is the subset of the telephony API the dialer uses.
type Provider interface {
	Configured() bool
	Dial(ctx context.Context, req telnyx.DialRequest) (*telnyx.Call, error)
	Transfer(ctx context.Context, callControlID, to, clientState string) error
	GetConnection(ctx context.Context, id string) (*telnyx.Connection, error)
	GetCallControlApplication(ctx context.Context, id string) (*telnyx.CallControlApplication, error)
	ListPhoneNumbers(ctx context.Context, number string) ([]telnyx.PhoneNumber, error)
}

// ValidationError is a caller mistake: a missing or malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ConfigError is a missing server-side setting required to place calls.
type ConfigError struct {
	Setting string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s is not configured", e.Setting)
}

// Config carries the provider settings the dialer needs.
type Config struct {
	CallControlAppID  string
	SIPConnectionID   string
	SIPDomain         string
	DefaultFromNumber string
}

// Dialer places outbound calls on behalf of agents.
type Dialer struct {
	provider    Provider
	sessions    callstore.Store
	callRecords database.CallRecordRepository
	cfg         Config
	logger      *slog.Logger

	// backoff is the base transfer retry delay, shortened in tests.
	backoff time.Duration
}

// New creates a dialer.
func New(provider Provider, sessions callstore.Store, callRecords database.CallRecordRepository, cfg Config, logger *slog.Logger) *Dialer {
	return &Dialer{
		provider:    provider,
		sessions:    sessions,
		callRecords: callRecords,
		cfg:         cfg,
		logger:      logger.With("subsystem", "dialer"),
		backoff:     transferBackoff,
	}
}

// Result describes a successfully placed call.
type Result struct {
	CallSid       string `json:"call_sid"`
	CallSessionID string `json:"call_session_id"`
	CallControlID string `json:"call_control_id"`
	To            string `json:"to"`
	From          string `json:"from"`
}

// Dial places an agent-first call to destination. An invalid caller-chosen
// from number falls back to the configured default rather than failing.
func (d *Dialer) Dial(ctx context.Context, agent *models.Agent, to, from string) (*Result, error) {
	if !d.provider.Configured() {
		return nil, &ConfigError{Setting: "telephony API key"}
	}
	if d.cfg.CallControlAppID == "" {
		return nil, &ConfigError{Setting: "call control application id"}
	}
	if d.cfg.SIPConnectionID == "" {
		return nil, &ConfigError{Setting: "SIP connection id"}
	}
	if agent.SIPUsername == "" {
		return nil, &ValidationError{Field: "agent", Reason: "acting agent has no SIP username"}
	}

	dest, ok := NormalizeE164(to)
	if !ok {
		return nil, &ValidationError{Field: "to", Reason: "not a dialable phone number"}
	}

	fromNumber, ok := NormalizeE164(from)
	if !ok {
		fromNumber, ok = NormalizeE164(d.cfg.DefaultFromNumber)
		if !ok {
			return nil, &ValidationError{Field: "from", Reason: "no valid from number available"}
		}
		if from != "" {
			d.logger.Warn("invalid from number, using default", "from", from, "default", fromNumber)
		}
	}

	go d.preflight(dest, fromNumber)

	clientState, err := orchestrator.EncodeClientState(orchestrator.ClientState{
		Dest:     dest,
		From:     fromNumber,
		AgentSIP: agent.SIPUsername,
	})
	if err != nil {
		return nil, err
	}

	agentURI := fmt.Sprintf("sip:%s@%s", agent.SIPUsername, d.cfg.SIPDomain)
	call, err := d.provider.Dial(ctx, telnyx.DialRequest{
		To:           agentURI,
		From:         fromNumber,
		ConnectionID: d.cfg.SIPConnectionID,
		ClientState:  clientState,
	})
	if err != nil {
		return nil, fmt.Errorf("placing call: %w", err)
	}

	if err := d.sessions.Put(ctx, call.CallSessionID, call.CallControlID); err != nil {
		d.logger.Error("recording session failed", "session_id", call.CallSessionID, "error", err)
	}

	sid := uuid.NewString()
	rec := &models.CallRecord{
		Sid:           sid,
		Direction:     models.DirectionOutbound,
		FromNumber:    fromNumber,
		ToNumber:      dest,
		AgentID:       &agent.ID,
		CallSessionID: call.CallSessionID,
		CallLegID:     call.CallLegID,
		StartedAt:     time.Now().UTC(),
	}
	if err := d.callRecords.Create(ctx, rec); err != nil {
		d.logger.Error("creating call record failed", "sid", sid, "error", err)
	}

	go d.bridge(call.CallControlID, dest)

	d.logger.Info("outbound call placed",
		"sid", sid,
		"agent", agent.SIPUsername,
		"to", dest,
		"from", fromNumber,
	)
	return &Result{
		CallSid:       sid,
		CallSessionID: call.CallSessionID,
		CallControlID: call.CallControlID,
		To:            dest,
		From:          fromNumber,
	}, nil
}

// bridge transfers the agent leg to the real destination. The provider
// returns 422 until the agent answers; retry with linear backoff covers the
// race, and exhaustion is logged since the agent simply never picked up.
func (d *Dialer) bridge(callControlID, dest string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	for attempt := 1; attempt <= transferAttempts; attempt++ {
		err = d.provider.Transfer(ctx, callControlID, dest, "")
		if err == nil {
			d.logger.Info("bridged agent leg", "to", dest, "attempt", attempt)
			return
		}
		if !telnyx.IsStatus(err, http.StatusUnprocessableEntity) || attempt == transferAttempts {
			break
		}
		select {
		case <-ctx.Done():
			d.logger.Error("bridge cancelled", "to", dest, "error", ctx.Err())
			return
		case <-time.After(d.backoff * time.Duration(attempt)):
		}
	}
	d.logger.Error("bridging agent leg failed", "to", dest, "error", err)
}

// preflight checks provider configuration that commonly breaks outbound
// dialing. Findings are logged only; none of them block the call.
func (d *Dialer) preflight(dest, fromNumber string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if app, err := d.provider.GetCallControlApplication(ctx, d.cfg.CallControlAppID); err != nil {
		d.logger.Warn("preflight: application lookup failed", "error", err)
	} else {
		if app.WebhookEventURL == "" {
			d.logger.Warn("preflight: application has no webhook URL", "app_id", app.ID)
		}
		if app.OutboundVoiceProfileID == "" {
			d.logger.Warn("preflight: application has no outbound voice profile", "app_id", app.ID)
		}
	}

	if conn, err := d.provider.GetConnection(ctx, d.cfg.SIPConnectionID); err != nil {
		d.logger.Warn("preflight: connection lookup failed", "error", err)
	} else if conn.OutboundVoiceProfileID == "" {
		d.logger.Warn("preflight: connection has no outbound voice profile", "connection_id", conn.ID)
	}

	// Unassigned from numbers are reported but do not block the call; the
	// number may be caller-ID-verified rather than provisioned here.
	numbers, err := d.provider.ListPhoneNumbers(ctx, fromNumber)
	if err != nil {
		d.logger.Warn("preflight: from number lookup failed", "from", fromNumber, "error", err)
		return
	}
	assigned := false
	for _, n := range numbers {
		if n.ConnectionID == d.cfg.SIPConnectionID || n.ConnectionID == d.cfg.CallControlAppID {
			assigned = true
			break
		}
	}
	if !assigned {
		d.logger.Warn("preflight: from number not assigned to connection", "from", fromNumber, "to", dest)
	}
}
