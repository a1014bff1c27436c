package recordings

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dialplane/dialplane/internal/telnyx"
)

// Session directions inferred from recording phone numbers.
const (
	DirectionAToB    = "a_to_b"
	DirectionBToA    = "b_to_a"
	DirectionUnknown = "unknown"
)

// significantDigits is how many trailing digits two numbers must share to be
// considered the same line, tolerating country-code and formatting variance.
const significantDigits = 7

// HistorySession is one reconstructed call between the two queried numbers.
type HistorySession struct {
	CallSessionID string             `json:"call_session_id"`
	Direction     string             `json:"direction"`
	StartedAt     time.Time          `json:"started_at"`
	AnsweredAt    *time.Time         `json:"answered_at,omitempty"`
	EndedAt       *time.Time         `json:"ended_at,omitempty"`
	HangupCause   string             `json:"hangup_cause"`
	LegIDs        []string           `json:"leg_ids"`
	Recordings    []HistoryRecording `json:"recordings"`
}

// HistoryRecording is the durable subset of a recording exposed in history.
type HistoryRecording struct {
	ID             string `json:"id"`
	DurationMillis int64  `json:"duration_millis"`
	Channels       string `json:"channels"`
	Status         string `json:"status"`
}

// History reconstructs the call timeline between two numbers in a date
// range. Recordings for both directions are fetched in parallel, grouped by
// session, and enriched with each session's event stream. Sessions are
// returned newest first.
func (r *Reconciler) History(ctx context.Context, numberA, numberB string, from, to time.Time) ([]HistorySession, error) {
	var (
		wg   sync.WaitGroup
		aToB []telnyx.Recording
		bToA []telnyx.Recording
		errA error
		errB error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		aToB, errA = r.provider.ListRecordings(ctx, telnyx.RecordingFilter{
			From: numberA, To: numberB, CreatedAfter: from, CreatedBefore: to, PageSize: batchPageSize,
		})
	}()
	go func() {
		defer wg.Done()
		bToA, errB = r.provider.ListRecordings(ctx, telnyx.RecordingFilter{
			From: numberB, To: numberA, CreatedAfter: from, CreatedBefore: to, PageSize: batchPageSize,
		})
	}()
	wg.Wait()
	if errA != nil {
		return nil, fmt.Errorf("fetching recordings: %w", errA)
	}
	if errB != nil {
		return nil, fmt.Errorf("fetching recordings: %w", errB)
	}

	buckets := make(map[string][]telnyx.Recording)
	for _, rec := range append(aToB, bToA...) {
		if rec.CallSessionID == "" {
			continue
		}
		buckets[rec.CallSessionID] = append(buckets[rec.CallSessionID], rec)
	}

	sessions := make([]HistorySession, 0, len(buckets))
	var mu sync.Mutex
	wg = sync.WaitGroup{}
	for sessionID, recs := range buckets {
		wg.Add(1)
		go func(sessionID string, recs []telnyx.Recording) {
			defer wg.Done()
			session := r.buildSession(ctx, sessionID, recs, numberA, numberB)
			mu.Lock()
			sessions = append(sessions, session)
			mu.Unlock()
		}(sessionID, recs)
	}
	wg.Wait()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
	return sessions, nil
}

// buildSession derives one session's timeline from its event stream, falling
// back to the recordings' own timestamps when events are unavailable.
func (r *Reconciler) buildSession(ctx context.Context, sessionID string, recs []telnyx.Recording, numberA, numberB string) HistorySession {
	session := HistorySession{
		CallSessionID: sessionID,
		Direction:     inferDirection(recs[0], numberA, numberB),
		HangupCause:   "normal_clearing",
	}
	for _, rec := range recs {
		session.Recordings = append(session.Recordings, HistoryRecording{
			ID:             rec.ID,
			DurationMillis: rec.DurationMillis,
			Channels:       rec.Channels,
			Status:         rec.Status,
		})
	}

	events, err := r.provider.ListCallEvents(ctx, sessionID)
	if err != nil {
		r.logger.Warn("event fetch failed, using recording timestamps", "session_id", sessionID, "error", err)
		events = nil
	}
	if len(events) == 0 {
		r.timelineFromRecordings(&session, recs)
		return session
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})

	legs := make(map[string]bool)
	for _, ev := range events {
		if ev.CallLegID != "" && !legs[ev.CallLegID] {
			legs[ev.CallLegID] = true
			session.LegIDs = append(session.LegIDs, ev.CallLegID)
		}
		switch ev.EventType {
		case "call.initiated", "call.init.received":
			if session.StartedAt.IsZero() {
				session.StartedAt = ev.OccurredAt
			}
		case "call.answered":
			at := ev.OccurredAt
			session.AnsweredAt = &at
		case "call.hangup":
			at := ev.OccurredAt
			session.EndedAt = &at
			if ev.HangupCause != "" {
				session.HangupCause = ev.HangupCause
			}
		}
	}
	if session.StartedAt.IsZero() {
		r.timelineFromRecordings(&session, recs)
	}
	return session
}

// timelineFromRecordings approximates start and end from recording metadata.
func (r *Reconciler) timelineFromRecordings(session *HistorySession, recs []telnyx.Recording) {
	earliest := recs[0].CreatedAt
	var longest int64
	for _, rec := range recs {
		if rec.CreatedAt.Before(earliest) {
			earliest = rec.CreatedAt
		}
		if rec.DurationMillis > longest {
			longest = rec.DurationMillis
		}
	}
	session.StartedAt = earliest
	ended := earliest.Add(time.Duration(longest) * time.Millisecond)
	session.EndedAt = &ended
}

// inferDirection tests whether the recording's from/to match the queried
// numbers by trailing-digit comparison. Ambiguous pairs stay unknown rather
// than guessed.
func inferDirection(rec telnyx.Recording, numberA, numberB string) string {
	fromA := sameLine(rec.From, numberA)
	toB := sameLine(rec.To, numberB)
	fromB := sameLine(rec.From, numberB)
	toA := sameLine(rec.To, numberA)

	switch {
	case fromA && toB && !(fromB && toA):
		return DirectionAToB
	case fromB && toA && !(fromA && toB):
		return DirectionBToA
	default:
		return DirectionUnknown
	}
}

// sameLine reports whether two phone numbers share their trailing
// significant digits.
func sameLine(a, b string) bool {
	da, db := tailDigits(a), tailDigits(b)
	if da == "" || db == "" {
		return false
	}
	return strings.HasSuffix(da, db) || strings.HasSuffix(db, da)
}

// tailDigits returns up to the last significantDigits digits of a number.
func tailDigits(s string) string {
	var digits []rune
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) > significantDigits {
		digits = digits[len(digits)-significantDigits:]
	}
	return string(digits)
}
