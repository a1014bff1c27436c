package database

import (
	"context"
	"time"

	"github.com/dialplane/dialplane/internal/database/models"
)

// SystemConfigRepository manages key-value system configuration.
type SystemConfigRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	GetAll(ctx context.Context) ([]models.SystemConfig, error)
}

// OrganizationRepository manages tenant organizations.
type OrganizationRepository interface {
	Create(ctx context.Context, org *models.Organization) error
	GetByID(ctx context.Context, id int64) (*models.Organization, error)
	List(ctx context.Context) ([]models.Organization, error)
	Update(ctx context.Context, org *models.Organization) error
	Delete(ctx context.Context, id int64) error
}

// AgentRepository manages routable agents.
type AgentRepository interface {
	Create(ctx context.Context, agent *models.Agent) error
	GetByID(ctx context.Context, id int64) (*models.Agent, error)
	GetBySIPUsername(ctx context.Context, username string) (*models.Agent, error)
	GetByEmail(ctx context.Context, email string) (*models.Agent, error)
	GetFirstAvailable(ctx context.Context) (*models.Agent, error)
	List(ctx context.Context) ([]models.Agent, error)
	Update(ctx context.Context, agent *models.Agent) error
	UpdateStatus(ctx context.Context, id int64, status string) error
	Delete(ctx context.Context, id int64) error
}

// InboundNumberRepository manages DID-to-organization mappings.
type InboundNumberRepository interface {
	Create(ctx context.Context, num *models.InboundNumber) error
	GetByID(ctx context.Context, id int64) (*models.InboundNumber, error)
	GetEnabledByNumber(ctx context.Context, number string) (*models.InboundNumber, error)
	List(ctx context.Context) ([]models.InboundNumber, error)
	Update(ctx context.Context, num *models.InboundNumber) error
	Delete(ctx context.Context, id int64) error
}

// VoiceSettingsRepository manages per-organization fallback settings.
type VoiceSettingsRepository interface {
	GetByOrgID(ctx context.Context, orgID int64) (*models.VoiceSettings, error)
	Upsert(ctx context.Context, vs *models.VoiceSettings) error
}

// ActiveCallRepository manages the agent/customer-leg pairing table.
// Upsert is keyed by agent_id so a new call to the same agent replaces,
// never duplicates, the prior pairing.
type ActiveCallRepository interface {
	Upsert(ctx context.Context, ac *models.ActiveCall) error
	GetByAgentID(ctx context.Context, agentID int64) (*models.ActiveCall, error)
	List(ctx context.Context) ([]models.ActiveCall, error)
	DeleteByAgentID(ctx context.Context, agentID int64) error
	DeleteByCustomerLegID(ctx context.Context, legID string) error
	DeleteStale(ctx context.Context, olderThan time.Duration) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// CallRecordListFilter specifies filtering and pagination for call record queries.
type CallRecordListFilter struct {
	Limit     int
	Offset    int
	Search    string // matches from_number or to_number
	Direction string // "inbound", "outbound", or "" for all
	StartDate string // RFC3339 or YYYY-MM-DD
	EndDate   string // RFC3339 or YYYY-MM-DD
}

// CallRecordRepository manages per-call records and their recording linkage.
type CallRecordRepository interface {
	Create(ctx context.Context, rec *models.CallRecord) error
	GetByID(ctx context.Context, id int64) (*models.CallRecord, error)
	GetBySid(ctx context.Context, sid string) (*models.CallRecord, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.CallRecord, error)
	Update(ctx context.Context, rec *models.CallRecord) error
	SetRecording(ctx context.Context, id int64, recordingID string, durationMS int64, sessionID, legID string) error
	List(ctx context.Context, filter CallRecordListFilter) ([]models.CallRecord, int, error)
	ListMissingRecordings(ctx context.Context, since, until time.Time, limit int) ([]models.CallRecord, error)
	CountByDirection(ctx context.Context) (map[string]int64, error)
	CountSavedRecordings(ctx context.Context) (int64, error)
}
