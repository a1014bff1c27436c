package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dialplane/dialplane/internal/database/models"
)

// activeCallRepo implements ActiveCallRepository.
type activeCallRepo struct {
	db *DB
}

// NewActiveCallRepository creates a new ActiveCallRepository.
func NewActiveCallRepository(db *DB) ActiveCallRepository {
	return &activeCallRepo{db: db}
}

// Upsert inserts or replaces the active call pairing for an agent. The
// agent_id unique constraint guarantees at most one row per agent, so
// re-delivered webhook events and new calls to a busy agent both resolve
// to a replace, never a duplicate.
func (r *activeCallRepo) Upsert(ctx context.Context, ac *models.ActiveCall) error {
	if ac.HoldState == "" {
		ac.HoldState = "active"
	}
	if ac.PlaybackState == "" {
		ac.PlaybackState = "idle"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO active_calls (agent_id, customer_leg_id, hold_state, playback_state,
		 created_at, updated_at)
		 VALUES (?, ?, ?, ?, datetime('now'), datetime('now'))
		 ON CONFLICT(agent_id) DO UPDATE SET
		   customer_leg_id = excluded.customer_leg_id,
		   hold_state = excluded.hold_state,
		   playback_state = excluded.playback_state,
		   updated_at = excluded.updated_at`,
		ac.AgentID, ac.CustomerLegID, ac.HoldState, ac.PlaybackState,
	)
	if err != nil {
		return fmt.Errorf("upserting active call: %w", err)
	}
	return nil
}

// GetByAgentID returns the active call for an agent, or nil if none exists.
func (r *activeCallRepo) GetByAgentID(ctx context.Context, agentID int64) (*models.ActiveCall, error) {
	var ac models.ActiveCall
	err := r.db.QueryRowContext(ctx,
		`SELECT id, agent_id, customer_leg_id, hold_state, playback_state, created_at, updated_at
		 FROM active_calls WHERE agent_id = ?`, agentID,
	).Scan(&ac.ID, &ac.AgentID, &ac.CustomerLegID, &ac.HoldState,
		&ac.PlaybackState, &ac.CreatedAt, &ac.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning active call: %w", err)
	}
	return &ac, nil
}

// List returns all active call pairings.
func (r *activeCallRepo) List(ctx context.Context) ([]models.ActiveCall, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, agent_id, customer_leg_id, hold_state, playback_state, created_at, updated_at
		 FROM active_calls ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying active calls: %w", err)
	}
	defer rows.Close()

	var calls []models.ActiveCall
	for rows.Next() {
		var ac models.ActiveCall
		if err := rows.Scan(&ac.ID, &ac.AgentID, &ac.CustomerLegID, &ac.HoldState,
			&ac.PlaybackState, &ac.CreatedAt, &ac.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning active call row: %w", err)
		}
		calls = append(calls, ac)
	}
	return calls, rows.Err()
}

// DeleteByAgentID removes the active call pairing for an agent.
func (r *activeCallRepo) DeleteByAgentID(ctx context.Context, agentID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM active_calls WHERE agent_id = ?`, agentID)
	if err != nil {
		return fmt.Errorf("deleting active call by agent: %w", err)
	}
	return nil
}

// DeleteByCustomerLegID removes any pairing referencing the given customer leg.
func (r *activeCallRepo) DeleteByCustomerLegID(ctx context.Context, legID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM active_calls WHERE customer_leg_id = ?`, legID)
	if err != nil {
		return fmt.Errorf("deleting active call by leg: %w", err)
	}
	return nil
}

// DeleteStale removes pairings that have not been touched within olderThan.
// Used by the background sweeper to recover from missed hangup events.
func (r *activeCallRepo) DeleteStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC().Format("2006-01-02 15:04:05")
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM active_calls WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting stale active calls: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted active calls: %w", err)
	}
	return n, nil
}

// Count returns the number of active call pairings.
func (r *activeCallRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM active_calls`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting active calls: %w", err)
	}
	return count, nil
}
