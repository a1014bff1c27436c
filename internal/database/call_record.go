package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dialplane/dialplane/internal/database/models"
)

// callRecordRepo implements CallRecordRepository.
type callRecordRepo struct {
	db *DB
}

// NewCallRecordRepository creates a new CallRecordRepository.
func NewCallRecordRepository(db *DB) CallRecordRepository {
	return &callRecordRepo{db: db}
}

const callRecordColumns = `id, sid, direction, from_number, to_number, agent_id,
	 call_session_id, call_leg_id, started_at, answered_at, ended_at,
	 duration_secs, disposition, hangup_cause,
	 recording_id, recording_state, recording_duration_ms`

// Create inserts a new call record.
func (r *callRecordRepo) Create(ctx context.Context, rec *models.CallRecord) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO call_records (sid, direction, from_number, to_number, agent_id,
		 call_session_id, call_leg_id, started_at, answered_at, ended_at,
		 duration_secs, disposition, hangup_cause,
		 recording_id, recording_state, recording_duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Sid, rec.Direction, rec.FromNumber, rec.ToNumber, rec.AgentID,
		rec.CallSessionID, rec.CallLegID, rec.StartedAt, rec.AnsweredAt, rec.EndedAt,
		rec.DurationSecs, rec.Disposition, rec.HangupCause,
		rec.RecordingID, rec.RecordingState, rec.RecordingDurationMS,
	)
	if err != nil {
		return fmt.Errorf("inserting call record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// GetByID returns a call record by ID.
func (r *callRecordRepo) GetByID(ctx context.Context, id int64) (*models.CallRecord, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+callRecordColumns+` FROM call_records WHERE id = ?`, id,
	))
}

// GetBySid returns a call record by its internal stable id.
func (r *callRecordRepo) GetBySid(ctx context.Context, sid string) (*models.CallRecord, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+callRecordColumns+` FROM call_records WHERE sid = ?`, sid,
	))
}

// GetBySessionID returns the call record for a provider call session.
func (r *callRecordRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.CallRecord, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+callRecordColumns+` FROM call_records WHERE call_session_id = ?`, sessionID,
	))
}

// Update modifies an existing call record.
func (r *callRecordRepo) Update(ctx context.Context, rec *models.CallRecord) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE call_records SET direction = ?, from_number = ?, to_number = ?,
		 agent_id = ?, call_session_id = ?, call_leg_id = ?, started_at = ?,
		 answered_at = ?, ended_at = ?, duration_secs = ?, disposition = ?,
		 hangup_cause = ?, recording_id = ?, recording_state = ?,
		 recording_duration_ms = ?
		 WHERE id = ?`,
		rec.Direction, rec.FromNumber, rec.ToNumber, rec.AgentID,
		rec.CallSessionID, rec.CallLegID, rec.StartedAt, rec.AnsweredAt,
		rec.EndedAt, rec.DurationSecs, rec.Disposition, rec.HangupCause,
		rec.RecordingID, rec.RecordingState, rec.RecordingDurationMS, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating call record: %w", err)
	}
	return nil
}

// SetRecording links a provider recording to a call record. Session and leg
// ids discovered through the match are backfilled when the record lacks them.
func (r *callRecordRepo) SetRecording(ctx context.Context, id int64, recordingID string, durationMS int64, sessionID, legID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE call_records SET
		   recording_id = ?,
		   recording_state = 'saved',
		   recording_duration_ms = ?,
		   call_session_id = CASE WHEN call_session_id = '' THEN ? ELSE call_session_id END,
		   call_leg_id = CASE WHEN call_leg_id = '' THEN ? ELSE call_leg_id END
		 WHERE id = ?`,
		recordingID, durationMS, sessionID, legID, id,
	)
	if err != nil {
		return fmt.Errorf("setting call record recording: %w", err)
	}
	return nil
}

// List returns call records matching the filter, along with the total count.
func (r *callRecordRepo) List(ctx context.Context, filter CallRecordListFilter) ([]models.CallRecord, int, error) {
	where := "1=1"
	args := []any{}

	if filter.Direction != "" {
		where += " AND direction = ?"
		args = append(args, filter.Direction)
	}
	if filter.Search != "" {
		where += " AND (from_number LIKE ? OR to_number LIKE ?)"
		s := "%" + filter.Search + "%"
		args = append(args, s, s)
	}
	if filter.StartDate != "" {
		where += " AND started_at >= ?"
		args = append(args, filter.StartDate)
	}
	if filter.EndDate != "" {
		where += " AND started_at <= ?"
		args = append(args, filter.EndDate)
	}

	// Count total matching rows.
	var total int
	countQuery := "SELECT COUNT(*) FROM call_records WHERE " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting call records: %w", err)
	}

	// Fetch the page of results.
	query := `SELECT ` + callRecordColumns + ` FROM call_records WHERE ` + where +
		` ORDER BY started_at DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing call records: %w", err)
	}
	defer rows.Close()

	var recs []models.CallRecord
	for rows.Next() {
		rec, err := scanCallRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating call record rows: %w", err)
	}

	return recs, total, nil
}

// ListMissingRecordings returns completed calls with positive duration and no
// recording whose start time falls in [since, until], up to limit rows.
// These are the batch reconciliation candidates.
func (r *callRecordRepo) ListMissingRecordings(ctx context.Context, since, until time.Time, limit int) ([]models.CallRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+callRecordColumns+` FROM call_records
		 WHERE recording_id = ''
		   AND ended_at IS NOT NULL
		   AND duration_secs > 0
		   AND started_at >= ? AND started_at <= ?
		 ORDER BY started_at DESC LIMIT ?`,
		since, until, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing calls missing recordings: %w", err)
	}
	defer rows.Close()

	var recs []models.CallRecord
	for rows.Next() {
		rec, err := scanCallRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// CountByDirection returns call record counts grouped by direction.
func (r *callRecordRepo) CountByDirection(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT direction, COUNT(*) FROM call_records GROUP BY direction`)
	if err != nil {
		return nil, fmt.Errorf("counting call records by direction: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var dir string
		var n int64
		if err := rows.Scan(&dir, &n); err != nil {
			return nil, fmt.Errorf("scanning direction count: %w", err)
		}
		counts[dir] = n
	}
	return counts, rows.Err()
}

// CountSavedRecordings returns the number of call records with a linked recording.
func (r *callRecordRepo) CountSavedRecordings(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM call_records WHERE recording_state = 'saved'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting saved recordings: %w", err)
	}
	return count, nil
}

func (r *callRecordRepo) scanOne(row *sql.Row) (*models.CallRecord, error) {
	var c models.CallRecord
	err := row.Scan(&c.ID, &c.Sid, &c.Direction, &c.FromNumber, &c.ToNumber,
		&c.AgentID, &c.CallSessionID, &c.CallLegID, &c.StartedAt, &c.AnsweredAt,
		&c.EndedAt, &c.DurationSecs, &c.Disposition, &c.HangupCause,
		&c.RecordingID, &c.RecordingState, &c.RecordingDurationMS)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning call record: %w", err)
	}
	return &c, nil
}

func scanCallRecord(rows *sql.Rows) (*models.CallRecord, error) {
	var c models.CallRecord
	if err := rows.Scan(&c.ID, &c.Sid, &c.Direction, &c.FromNumber, &c.ToNumber,
		&c.AgentID, &c.CallSessionID, &c.CallLegID, &c.StartedAt, &c.AnsweredAt,
		&c.EndedAt, &c.DurationSecs, &c.Disposition, &c.HangupCause,
		&c.RecordingID, &c.RecordingState, &c.RecordingDurationMS); err != nil {
		return nil, fmt.Errorf("scanning call record row: %w", err)
	}
	return &c, nil
}
