package models

import "time"

// Agent statuses.
const (
	AgentAvailable = "available"
	AgentBusy      = "busy"
	AgentOffline   = "offline"
)

// Voice settings fallback modes.
const (
	FallbackModeNone          = "none"
	FallbackModeDispatcherSIP = "dispatcher_sip"
)

// Active call hold and playback states.
const (
	HoldStateActive = "active"
	HoldStateHeld   = "held"

	PlaybackIdle    = "idle"
	PlaybackPlaying = "playing"
)

// Call directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Call dispositions.
const (
	DispositionCompleted = "completed"
	DispositionNoAgent   = "no_agent"
	DispositionFailed    = "failed"
)

// RecordingSaved marks a call record whose recording has been reconciled.
const RecordingSaved = "saved"

// SystemConfig represents a key-value configuration entry.
type SystemConfig struct {
	ID        int64
	Key       string
	Value     string
	UpdatedAt time.Time
}

// Organization represents a tenant that owns inbound numbers and agents.
type Organization struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Agent represents a routable SIP destination owned by an organization.
type Agent struct {
	ID           int64
	OrgID        *int64
	Name         string
	Email        string
	SIPUsername  string
	PasswordHash string // argon2id
	Status       string // "available" | "busy" | "offline"
	PushToken    string // FCM registration token, empty if no device
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// InboundNumber represents a DID mapped to an owning organization.
type InboundNumber struct {
	ID        int64
	Number    string // E.164
	OrgID     int64
	Label     string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VoiceSettings holds an organization's inbound fallback configuration.
type VoiceSettings struct {
	ID                  int64
	OrgID               int64
	FallbackMode        string // "none" | "dispatcher_sip"
	FallbackSIPUsername string
	UpdatedAt           time.Time
}

// ActiveCall is the durable pairing of one agent to the customer leg
// currently bridged to them. At most one row exists per agent.
type ActiveCall struct {
	ID            int64
	AgentID       int64
	CustomerLegID string
	HoldState     string // "active" | "held"
	PlaybackState string // "idle" | "playing"
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CallRecord is one row per orchestrated call. Recording linkage stores only
// the provider recording id, never a download URL.
type CallRecord struct {
	ID            int64
	Sid           string // internal stable id (uuid)
	Direction     string // "inbound" | "outbound"
	FromNumber    string
	ToNumber      string
	AgentID       *int64
	CallSessionID string
	CallLegID     string
	StartedAt     time.Time
	AnsweredAt    *time.Time
	EndedAt       *time.Time
	DurationSecs  *int
	Disposition   string // "completed" | "no_agent" | "failed" | ""
	HangupCause   string

	RecordingID         string
	RecordingState      string // "" | "saved"
	RecordingDurationMS *int64
}
