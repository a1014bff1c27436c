package telnyx

import "time"

// Call is the provider's representation of one call leg, returned from
// POST /calls and carried in webhook payloads.
type Call struct {
	CallControlID string `json:"call_control_id"`
	CallSessionID string `json:"call_session_id"`
	CallLegID     string `json:"call_leg_id"`
	IsAlive       bool   `json:"is_alive"`
	RecordType    string `json:"record_type"`
}

// DialRequest is the payload for POST /calls.
type DialRequest struct {
	To           string `json:"to"`
	From         string `json:"from"`
	ConnectionID string `json:"connection_id"`
	ClientState  string `json:"client_state,omitempty"`
}

// Recording is a provider-side audio artifact. Download URLs are time-limited
// and must never be persisted; only the recording id is durable.
type Recording struct {
	ID             string            `json:"id"`
	CallSessionID  string            `json:"call_session_id"`
	CallLegID      string            `json:"call_leg_id"`
	From           string            `json:"from"`
	To             string            `json:"to"`
	Channels       string            `json:"channels"`
	DurationMillis int64             `json:"duration_millis"`
	Status         string            `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	DownloadURLs   map[string]string `json:"download_urls"`
}

// RecordingFilter narrows GET /recordings queries. The zero value fetches
// everything the provider will return.
type RecordingFilter struct {
	CallLegID     string
	CallSessionID string
	From          string
	To            string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	PageSize      int

	// MaxPages caps how many pages are fetched. Zero means the client's
	// own pagination ceiling.
	MaxPages int
}

// CallEvent is one entry of a call session's event stream from GET /call_events.
type CallEvent struct {
	EventType   string    `json:"event_type"`
	CallLegID   string    `json:"call_leg_id"`
	HangupCause string    `json:"hangup_cause,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Connection is the subset of GET /connections/{id} used by preflight checks.
type Connection struct {
	ID                     string `json:"id"`
	ConnectionName         string `json:"connection_name"`
	OutboundVoiceProfileID string `json:"outbound_voice_profile_id"`
}

// CallControlApplication is the subset of GET /call_control_applications/{id}
// used by preflight checks.
type CallControlApplication struct {
	ID                     string `json:"id"`
	ApplicationName        string `json:"application_name"`
	WebhookEventURL        string `json:"webhook_event_url"`
	OutboundVoiceProfileID string `json:"outbound_voice_profile_id"`
}

// PhoneNumber is the subset of GET /phone_numbers used to check whether a
// from-number is assigned to a connection.
type PhoneNumber struct {
	ID           string `json:"id"`
	PhoneNumber  string `json:"phone_number"`
	ConnectionID string `json:"connection_id"`
	Status       string `json:"status"`
}
