package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dialplane/dialplane/internal/database/models"
)

// organizationRepo implements OrganizationRepository.
type organizationRepo struct {
	db *DB
}

// NewOrganizationRepository creates a new OrganizationRepository.
func NewOrganizationRepository(db *DB) OrganizationRepository {
	return &organizationRepo{db: db}
}

// Create inserts a new organization.
func (r *organizationRepo) Create(ctx context.Context, org *models.Organization) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO organizations (name, created_at, updated_at)
		 VALUES (?, datetime('now'), datetime('now'))`,
		org.Name,
	)
	if err != nil {
		return fmt.Errorf("inserting organization: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	org.ID = id
	return nil
}

// GetByID returns an organization by ID.
func (r *organizationRepo) GetByID(ctx context.Context, id int64) (*models.Organization, error) {
	var o models.Organization
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM organizations WHERE id = ?`, id,
	).Scan(&o.ID, &o.Name, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning organization: %w", err)
	}
	return &o, nil
}

// List returns all organizations.
func (r *organizationRepo) List(ctx context.Context) ([]models.Organization, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM organizations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying organizations: %w", err)
	}
	defer rows.Close()

	var orgs []models.Organization
	for rows.Next() {
		var o models.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning organization row: %w", err)
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

// Update modifies an existing organization.
func (r *organizationRepo) Update(ctx context.Context, org *models.Organization) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE organizations SET name = ?, updated_at = datetime('now') WHERE id = ?`,
		org.Name, org.ID,
	)
	if err != nil {
		return fmt.Errorf("updating organization: %w", err)
	}
	return nil
}

// Delete removes an organization by ID.
func (r *organizationRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM organizations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting organization: %w", err)
	}
	return nil
}

// voiceSettingsRepo implements VoiceSettingsRepository.
type voiceSettingsRepo struct {
	db *DB
}

// NewVoiceSettingsRepository creates a new VoiceSettingsRepository.
func NewVoiceSettingsRepository(db *DB) VoiceSettingsRepository {
	return &voiceSettingsRepo{db: db}
}

// GetByOrgID returns the voice settings for an organization, or nil if none exist.
func (r *voiceSettingsRepo) GetByOrgID(ctx context.Context, orgID int64) (*models.VoiceSettings, error) {
	var vs models.VoiceSettings
	err := r.db.QueryRowContext(ctx,
		`SELECT id, org_id, fallback_mode, fallback_sip_username, updated_at
		 FROM voice_settings WHERE org_id = ?`, orgID,
	).Scan(&vs.ID, &vs.OrgID, &vs.FallbackMode, &vs.FallbackSIPUsername, &vs.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning voice settings: %w", err)
	}
	return &vs, nil
}

// Upsert inserts or replaces an organization's voice settings, keyed by org_id.
func (r *voiceSettingsRepo) Upsert(ctx context.Context, vs *models.VoiceSettings) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO voice_settings (org_id, fallback_mode, fallback_sip_username, updated_at)
		 VALUES (?, ?, ?, datetime('now'))
		 ON CONFLICT(org_id) DO UPDATE SET
		   fallback_mode = excluded.fallback_mode,
		   fallback_sip_username = excluded.fallback_sip_username,
		   updated_at = excluded.updated_at`,
		vs.OrgID, vs.FallbackMode, vs.FallbackSIPUsername,
	)
	if err != nil {
		return fmt.Errorf("upserting voice settings: %w", err)
	}
	return nil
}
