package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dialplane/dialplane/internal/database/models"
)

// agentRepo implements AgentRepository.
type agentRepo struct {
	db *DB
}

// NewAgentRepository creates a new AgentRepository.
func NewAgentRepository(db *DB) AgentRepository {
	return &agentRepo{db: db}
}

const agentColumns = `id, org_id, name, email, sip_username, password_hash,
	 status, push_token, created_at, updated_at`

// Create inserts a new agent.
func (r *agentRepo) Create(ctx context.Context, agent *models.Agent) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO agents (org_id, name, email, sip_username, password_hash,
		 status, push_token, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		agent.OrgID, agent.Name, agent.Email, agent.SIPUsername,
		agent.PasswordHash, agent.Status, agent.PushToken,
	)
	if err != nil {
		return fmt.Errorf("inserting agent: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	agent.ID = id
	return nil
}

// GetByID returns an agent by ID.
func (r *agentRepo) GetByID(ctx context.Context, id int64) (*models.Agent, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = ?`, id,
	))
}

// GetBySIPUsername returns an agent by SIP username.
func (r *agentRepo) GetBySIPUsername(ctx context.Context, username string) (*models.Agent, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE sip_username = ?`, username,
	))
}

// GetByEmail returns an agent by email address.
func (r *agentRepo) GetByEmail(ctx context.Context, email string) (*models.Agent, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE email = ?`, email,
	))
}

// GetFirstAvailable returns any agent with status "available", or nil if
// none is currently available.
func (r *agentRepo) GetFirstAvailable(ctx context.Context) (*models.Agent, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents
		 WHERE status = 'available' AND sip_username != ''
		 ORDER BY updated_at ASC LIMIT 1`,
	))
}

// List returns all agents.
func (r *agentRepo) List(ctx context.Context) ([]models.Agent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+agentColumns+` FROM agents ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []models.Agent
	for rows.Next() {
		var a models.Agent
		if err := rows.Scan(&a.ID, &a.OrgID, &a.Name, &a.Email, &a.SIPUsername,
			&a.PasswordHash, &a.Status, &a.PushToken, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// Update modifies an existing agent.
func (r *agentRepo) Update(ctx context.Context, agent *models.Agent) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE agents SET org_id = ?, name = ?, email = ?, sip_username = ?,
		 password_hash = ?, status = ?, push_token = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		agent.OrgID, agent.Name, agent.Email, agent.SIPUsername,
		agent.PasswordHash, agent.Status, agent.PushToken, agent.ID,
	)
	if err != nil {
		return fmt.Errorf("updating agent: %w", err)
	}
	return nil
}

// UpdateStatus sets an agent's availability status.
func (r *agentRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE agents SET status = ?, updated_at = datetime('now') WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("updating agent status: %w", err)
	}
	return nil
}

// Delete removes an agent by ID.
func (r *agentRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting agent: %w", err)
	}
	return nil
}

func (r *agentRepo) scanOne(row *sql.Row) (*models.Agent, error) {
	var a models.Agent
	err := row.Scan(&a.ID, &a.OrgID, &a.Name, &a.Email, &a.SIPUsername,
		&a.PasswordHash, &a.Status, &a.PushToken, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning agent: %w", err)
	}
	return &a, nil
}
