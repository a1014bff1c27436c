package orchestrator

import (
	"encoding/json"
	"fmt"
	"time"
)

// Webhook event types consumed by the state machine. Anything else is
// acknowledged and ignored.
const (
	EventCallInitiated = "call.initiated"
	EventCallAnswered  = "call.answered"
	EventCallHangup    = "call.hangup"
	EventSpeakEnded    = "call.speak.ended"
)

// Call directions as reported in webhook payloads.
const (
	directionIncoming = "incoming"
	directionOutgoing = "outgoing"
)

// Event is one provider webhook delivery.
type Event struct {
	EventType  string       `json:"event_type"`
	OccurredAt time.Time    `json:"occurred_at"`
	Payload    EventPayload `json:"payload"`
}

// EventPayload is the call-level detail of a webhook event. Fields are
// populated per event type; absent fields decode to zero values.
type EventPayload struct {
	CallControlID string `json:"call_control_id"`
	CallSessionID string `json:"call_session_id"`
	CallLegID     string `json:"call_leg_id"`
	ConnectionID  string `json:"connection_id"`
	Direction     string `json:"direction"`
	From          string `json:"from"`
	To            string `json:"to"`
	ClientState   string `json:"client_state"`
	HangupCause   string `json:"hangup_cause"`
}

// webhookEnvelope is the provider's outer wrapper around an event.
type webhookEnvelope struct {
	Data Event `json:"data"`
}

// ParseEvent decodes a webhook request body into an Event.
func ParseEvent(body []byte) (*Event, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parsing webhook envelope: %w", err)
	}
	if env.Data.EventType == "" {
		return nil, fmt.Errorf("webhook envelope has no event type")
	}
	return &env.Data, nil
}
