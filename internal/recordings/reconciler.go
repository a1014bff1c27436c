// Package recordings correlates provider-side call recordings back to call
// records. Recordings appear asynchronously after a call ends, so matching
// runs on demand per call or as a time-windowed batch sweep.
package recordings

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dialplane/dialplane/internal/database"
	"github.com/dialplane/dialplane/internal/database/models"
	"github.com/dialplane/dialplane/internal/telnyx"
)

// Window padding around a call's start time when no leg or session id is
// available to match on.
const (
	windowBefore = 5 * time.Minute
	windowAfter  = 15 * time.Minute
)

const (
	singlePageSize = 50
	batchPageSize  = 250
)

// RecordingAPI is the provider surface the reconciler and aggregator use.
// Implemented by telnyx.Client.
type RecordingAPI interface {
	ListRecordings(ctx context.Context, filter telnyx.RecordingFilter) ([]telnyx.Recording, error)
	ListCallEvents(ctx context.Context, sessionID string) ([]telnyx.CallEvent, error)
}

// Reconciler matches recordings to call records.
type Reconciler struct {
	provider    RecordingAPI
	callRecords database.CallRecordRepository
	logger      *slog.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(provider RecordingAPI, callRecords database.CallRecordRepository, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		provider:    provider,
		callRecords: callRecords,
		logger:      logger.With("subsystem", "recordings"),
	}
}

// SyncResult describes the outcome of single-call reconciliation.
type SyncResult struct {
	Skipped        bool   `json:"skipped"`
	Matched        bool   `json:"matched"`
	RecordingID    string `json:"recording_id,omitempty"`
	DurationMillis int64  `json:"duration_millis,omitempty"`
	Status         string `json:"status,omitempty"`
}

// SyncCall reconciles one call record. A record that already has a recording
// is skipped unless force is set. Absence of a matching recording is a
// normal outcome, reported as Matched=false.
func (r *Reconciler) SyncCall(ctx context.Context, rec *models.CallRecord, force bool) (*SyncResult, error) {
	if rec.RecordingID != "" && !force {
		return &SyncResult{Skipped: true, RecordingID: rec.RecordingID}, nil
	}

	// Most precise identifier wins: leg id, then session id, then a time
	// window around the call start.
	filter := telnyx.RecordingFilter{PageSize: singlePageSize, MaxPages: 1}
	switch {
	case rec.CallLegID != "":
		filter.CallLegID = rec.CallLegID
	case rec.CallSessionID != "":
		filter.CallSessionID = rec.CallSessionID
	default:
		filter.CreatedAfter = rec.StartedAt.Add(-windowBefore)
		filter.CreatedBefore = rec.StartedAt.Add(windowAfter)
	}

	matches, err := r.provider.ListRecordings(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("fetching recordings for call %s: %w", rec.Sid, err)
	}
	if len(matches) == 0 {
		return &SyncResult{}, nil
	}

	best := longestRecording(matches)
	if err := r.callRecords.SetRecording(ctx, rec.ID, best.ID, best.DurationMillis, best.CallSessionID, best.CallLegID); err != nil {
		return nil, fmt.Errorf("linking recording %s: %w", best.ID, err)
	}

	r.logger.Info("recording linked", "sid", rec.Sid, "recording_id", best.ID, "duration_ms", best.DurationMillis)
	return &SyncResult{
		Matched:        true,
		RecordingID:    best.ID,
		DurationMillis: best.DurationMillis,
		Status:         best.Status,
	}, nil
}

// BatchResult describes the outcome of a batch sweep.
type BatchResult struct {
	Checked int `json:"checked"`
	Matched int `json:"matched"`
}

// SyncBatch reconciles all completed calls without recordings in [since,
// until], up to limit calls. All recordings created in the window are
// fetched in one paginated sweep, indexed, and probed per call; the database
// updates for matched calls run concurrently.
func (r *Reconciler) SyncBatch(ctx context.Context, since, until time.Time, limit int) (*BatchResult, error) {
	candidates, err := r.callRecords.ListMissingRecordings(ctx, since, until, limit)
	if err != nil {
		return nil, fmt.Errorf("listing candidate calls: %w", err)
	}
	if len(candidates) == 0 {
		return &BatchResult{}, nil
	}

	recordings, err := r.provider.ListRecordings(ctx, telnyx.RecordingFilter{
		CreatedAfter:  since.Add(-windowBefore),
		CreatedBefore: until.Add(windowAfter),
		PageSize:      batchPageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching window recordings: %w", err)
	}

	byLeg := make(map[string]telnyx.Recording)
	bySession := make(map[string][]telnyx.Recording)
	for _, rec := range recordings {
		if rec.CallLegID != "" {
			byLeg[rec.CallLegID] = rec
		}
		if rec.CallSessionID != "" {
			bySession[rec.CallSessionID] = append(bySession[rec.CallSessionID], rec)
		}
	}

	var wg sync.WaitGroup
	var matched atomic.Int64
	for _, call := range candidates {
		rec, ok := byLeg[call.CallLegID]
		if !ok || call.CallLegID == "" {
			sessionRecs := bySession[call.CallSessionID]
			if call.CallSessionID == "" || len(sessionRecs) == 0 {
				continue // no recording is a normal outcome
			}
			rec = longestRecording(sessionRecs)
		}

		wg.Add(1)
		go func(call models.CallRecord, rec telnyx.Recording) {
			defer wg.Done()
			if err := r.callRecords.SetRecording(ctx, call.ID, rec.ID, rec.DurationMillis, rec.CallSessionID, rec.CallLegID); err != nil {
				r.logger.Error("linking recording failed", "sid", call.Sid, "recording_id", rec.ID, "error", err)
				return
			}
			matched.Add(1)
		}(call, rec)
	}
	wg.Wait()

	result := &BatchResult{Checked: len(candidates), Matched: int(matched.Load())}
	r.logger.Info("batch reconciliation complete", "checked", result.Checked, "matched", result.Matched)
	return result, nil
}

// longestRecording picks the recording with the greatest duration. Ties keep
// the earliest in provider order.
func longestRecording(recs []telnyx.Recording) telnyx.Recording {
	best := recs[0]
	for _, rec := range recs[1:] {
		if rec.DurationMillis > best.DurationMillis {
			best = rec
		}
	}
	return best
}
