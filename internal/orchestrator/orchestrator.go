// Package orchestrator is the webhook-driven call control state machine. It
// consumes provider events, issues answer/transfer/speak/hangup commands, and
// keeps the session registry and active call pairings consistent.
package orchestrator

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dialplane/dialplane/internal/callstore"
	"github.com/dialplane/dialplane/internal/database"
	"github.com/dialplane/dialplane/internal/database/models"
	"github.com/dialplane/dialplane/internal/routing"
	"github.com/dialplane/dialplane/internal/telnyx"
)

// apologyMessage is spoken when no agent or fallback target can take a call.
const apologyMessage = "We're sorry, all of our agents are currently unavailable. Please try again later."

const (
	transferAttempts = 3
	transferBackoff  = 200 * time.Millisecond
)

// CallCommander is the provider command surface the orchestrator drives.
// Implemented by telnyx.Client.
type CallCommander interface {
	Answer(ctx context.Context, callControlID string) error
	Transfer(ctx context.Context, callControlID, to, clientState string) error
	Speak(ctx context.Context, callControlID, text string) error
	Hangup(ctx context.Context, callControlID string) error
}

// Notifier pushes call notifications to agent devices. May be absent.
type Notifier interface {
	CallBridged(ctx context.Context, agent *models.Agent, from string) error
}

// Orchestrator reacts to webhook events for all call legs. Command failures
// are logged, never returned: the webhook response must always acknowledge
// delivery, and the provider observes outcomes through subsequent events.
type Orchestrator struct {
	calls       CallCommander
	sessions    callstore.Store
	resolver    *routing.Resolver
	agents      database.AgentRepository
	activeCalls database.ActiveCallRepository
	callRecords database.CallRecordRepository
	notifier    Notifier
	logger      *slog.Logger

	// backoff is the base transfer retry delay, shortened in tests.
	backoff time.Duration
}

// New creates the orchestrator. notifier may be nil.
func New(calls CallCommander, sessions callstore.Store, resolver *routing.Resolver, agents database.AgentRepository, activeCalls database.ActiveCallRepository, callRecords database.CallRecordRepository, notifier Notifier, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		calls:       calls,
		sessions:    sessions,
		resolver:    resolver,
		agents:      agents,
		activeCalls: activeCalls,
		callRecords: callRecords,
		notifier:    notifier,
		logger:      logger.With("subsystem", "orchestrator"),
		backoff:     transferBackoff,
	}
}

// HandleEvent dispatches one webhook event. It never returns an error:
// handlers tolerate at-least-once delivery and degrade internally.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev *Event) {
	logger := o.logger.With(
		"event", ev.EventType,
		"session_id", ev.Payload.CallSessionID,
		"leg_id", ev.Payload.CallLegID,
	)

	switch ev.EventType {
	case EventCallInitiated:
		o.handleInitiated(ctx, ev, logger)
	case EventCallAnswered:
		o.handleAnswered(ctx, ev, logger)
	case EventCallHangup:
		o.handleHangup(ctx, ev, logger)
	case EventSpeakEnded:
		o.handleSpeakEnded(ctx, ev, logger)
	default:
		logger.Debug("ignoring event")
	}
}

// handleInitiated records the session mapping and answers incoming legs.
// Outgoing legs were placed by the dialer and need no action here.
func (o *Orchestrator) handleInitiated(ctx context.Context, ev *Event, logger *slog.Logger) {
	p := ev.Payload

	if err := o.sessions.Put(ctx, p.CallSessionID, p.CallControlID); err != nil {
		logger.Error("recording session failed", "error", err)
	}

	if p.Direction != directionIncoming {
		return
	}

	o.createInboundRecord(ctx, ev, logger)

	if err := o.calls.Answer(ctx, p.CallControlID); err != nil {
		logger.Error("answer failed", "error", err)
		return
	}
	logger.Info("answered inbound call", "from", p.From, "to", p.To)
}

// handleAnswered bridges the leg. A leg dialed to one of our DIDs is routed
// to an agent or fallback; any other answered leg is an agent-first outbound
// leg coming back through the webhook, identified by its client_state.
func (o *Orchestrator) handleAnswered(ctx context.Context, ev *Event, logger *slog.Logger) {
	p := ev.Payload

	if o.resolver.OwningOrg(ctx, p.To) != 0 {
		o.bridgeInbound(ctx, ev, logger)
		return
	}

	cs, err := DecodeClientState(p.ClientState)
	if err != nil {
		logger.Error("bad client state on answered leg", "error", err)
		return
	}
	if cs == nil || cs.AgentSIP == "" {
		logger.Debug("answered leg has no routing intent")
		return
	}
	o.bridgeOutbound(ctx, ev, cs, logger)
}

// bridgeInbound transfers an answered inbound leg to a routing target and
// records the agent pairing. With no target, the caller hears an apology;
// the leg then ends through speak.ended or the provider's own timeout.
func (o *Orchestrator) bridgeInbound(ctx context.Context, ev *Event, logger *slog.Logger) {
	p := ev.Payload

	target := o.resolver.Resolve(ctx, p.To)
	if target.Kind == routing.TargetNone {
		logger.Warn("no routing target, speaking apology", "to", p.To)
		o.markDisposition(ctx, p.CallSessionID, models.DispositionNoAgent, logger)
		if err := o.calls.Speak(ctx, p.CallControlID, apologyMessage); err != nil {
			logger.Error("speak failed", "error", err)
		}
		return
	}

	if err := o.transferWithRetry(ctx, p.CallControlID, target.SIPURI, ""); err != nil {
		logger.Error("transfer failed, speaking apology", "target", target.SIPURI, "error", err)
		o.markDisposition(ctx, p.CallSessionID, models.DispositionFailed, logger)
		if err := o.calls.Speak(ctx, p.CallControlID, apologyMessage); err != nil {
			logger.Error("speak failed", "error", err)
		}
		return
	}
	logger.Info("transferred call", "target", target.SIPURI, "kind", target.Kind)

	o.markAnswered(ctx, p.CallSessionID, ev.OccurredAt, target.Agent, logger)

	if target.Agent != nil {
		o.pairAgent(ctx, target.Agent, p.CallLegID, p.From, logger)
	}
}

// bridgeOutbound records the agent pairing for an answered agent-first leg.
// The bridge to the real destination is issued by the dialer's transfer, not
// here.
func (o *Orchestrator) bridgeOutbound(ctx context.Context, ev *Event, cs *ClientState, logger *slog.Logger) {
	p := ev.Payload

	agent, err := o.agents.GetBySIPUsername(ctx, cs.AgentSIP)
	if err != nil {
		logger.Error("agent lookup failed", "sip_username", cs.AgentSIP, "error", err)
		return
	}
	if agent == nil {
		logger.Warn("client state names unknown agent", "sip_username", cs.AgentSIP)
		return
	}

	o.markAnswered(ctx, p.CallSessionID, ev.OccurredAt, agent, logger)
	o.pairAgent(ctx, agent, p.CallLegID, cs.Dest, logger)
}

// handleHangup drops the session mapping and the agent pairing, and
// finalizes the call record. Re-delivery finds nothing left to remove and is
// harmless.
func (o *Orchestrator) handleHangup(ctx context.Context, ev *Event, logger *slog.Logger) {
	p := ev.Payload

	if err := o.sessions.Delete(ctx, p.CallSessionID); err != nil {
		logger.Error("dropping session failed", "error", err)
	}
	if err := o.activeCalls.DeleteByCustomerLegID(ctx, p.CallLegID); err != nil {
		logger.Error("dropping active call failed", "error", err)
	}

	o.finalizeRecord(ctx, ev, logger)
	logger.Info("call ended", "cause", p.HangupCause)
}

// handleSpeakEnded hangs up after an apology finishes playing.
func (o *Orchestrator) handleSpeakEnded(ctx context.Context, ev *Event, logger *slog.Logger) {
	if err := o.calls.Hangup(ctx, ev.Payload.CallControlID); err != nil {
		logger.Error("hangup after speak failed", "error", err)
	}
}

// transferWithRetry retries transfer only on 422, which the provider returns
// while the leg is not yet fully answered. Delay grows linearly per attempt.
func (o *Orchestrator) transferWithRetry(ctx context.Context, callControlID, to, clientState string) error {
	var err error
	for attempt := 1; attempt <= transferAttempts; attempt++ {
		err = o.calls.Transfer(ctx, callControlID, to, clientState)
		if err == nil {
			return nil
		}
		if !telnyx.IsStatus(err, http.StatusUnprocessableEntity) || attempt == transferAttempts {
			return err
		}

		o.logger.Debug("transfer not ready, retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.backoff * time.Duration(attempt)):
		}
	}
	return err
}

// pairAgent upserts the agent's active call pairing and notifies their
// device. Keyed by agent id: a new call to the same agent replaces the prior
// pairing.
func (o *Orchestrator) pairAgent(ctx context.Context, agent *models.Agent, customerLegID, from string, logger *slog.Logger) {
	err := o.activeCalls.Upsert(ctx, &models.ActiveCall{
		AgentID:       agent.ID,
		CustomerLegID: customerLegID,
		HoldState:     models.HoldStateActive,
		PlaybackState: models.PlaybackIdle,
	})
	if err != nil {
		logger.Error("recording active call failed", "agent_id", agent.ID, "error", err)
		return
	}

	if o.notifier != nil && agent.PushToken != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := o.notifier.CallBridged(ctx, agent, from); err != nil {
				logger.Error("push notification failed", "agent_id", agent.ID, "error", err)
			}
		}()
	}
}

// createInboundRecord opens a call record for a new inbound leg. A replayed
// initiated event finds the session already recorded and does nothing.
func (o *Orchestrator) createInboundRecord(ctx context.Context, ev *Event, logger *slog.Logger) {
	p := ev.Payload

	existing, err := o.callRecords.GetBySessionID(ctx, p.CallSessionID)
	if err != nil {
		logger.Error("call record lookup failed", "error", err)
		return
	}
	if existing != nil {
		return
	}

	startedAt := ev.OccurredAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	rec := &models.CallRecord{
		Sid:           uuid.NewString(),
		Direction:     models.DirectionInbound,
		FromNumber:    p.From,
		ToNumber:      p.To,
		CallSessionID: p.CallSessionID,
		CallLegID:     p.CallLegID,
		StartedAt:     startedAt,
	}
	if err := o.callRecords.Create(ctx, rec); err != nil {
		logger.Error("creating call record failed", "error", err)
	}
}

// markAnswered stamps answered_at and the handling agent on the session's
// call record.
func (o *Orchestrator) markAnswered(ctx context.Context, sessionID string, at time.Time, agent *models.Agent, logger *slog.Logger) {
	rec, err := o.callRecords.GetBySessionID(ctx, sessionID)
	if err != nil || rec == nil {
		if err != nil {
			logger.Error("call record lookup failed", "error", err)
		}
		return
	}
	if rec.AnsweredAt != nil {
		return
	}

	if at.IsZero() {
		at = time.Now().UTC()
	}
	rec.AnsweredAt = &at
	if agent != nil {
		rec.AgentID = &agent.ID
	}
	if err := o.callRecords.Update(ctx, rec); err != nil {
		logger.Error("updating call record failed", "error", err)
	}
}

// markDisposition sets a terminal disposition on the session's call record.
func (o *Orchestrator) markDisposition(ctx context.Context, sessionID, disposition string, logger *slog.Logger) {
	rec, err := o.callRecords.GetBySessionID(ctx, sessionID)
	if err != nil || rec == nil {
		if err != nil {
			logger.Error("call record lookup failed", "error", err)
		}
		return
	}
	rec.Disposition = disposition
	if err := o.callRecords.Update(ctx, rec); err != nil {
		logger.Error("updating call record failed", "error", err)
	}
}

// finalizeRecord closes out the session's call record on hangup.
func (o *Orchestrator) finalizeRecord(ctx context.Context, ev *Event, logger *slog.Logger) {
	p := ev.Payload

	rec, err := o.callRecords.GetBySessionID(ctx, p.CallSessionID)
	if err != nil || rec == nil {
		if err != nil {
			logger.Error("call record lookup failed", "error", err)
		}
		return
	}
	if rec.EndedAt != nil {
		return
	}

	endedAt := ev.OccurredAt
	if endedAt.IsZero() {
		endedAt = time.Now().UTC()
	}
	rec.EndedAt = &endedAt
	duration := int(endedAt.Sub(rec.StartedAt).Seconds())
	if duration < 0 {
		duration = 0
	}
	rec.DurationSecs = &duration
	rec.HangupCause = p.HangupCause
	if rec.Disposition == "" {
		rec.Disposition = models.DispositionCompleted
	}
	if err := o.callRecords.Update(ctx, rec); err != nil {
		logger.Error("finalizing call record failed", "error", err)
	}
}
