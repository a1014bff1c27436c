package recordings

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dialplane/dialplane/internal/database"
)

// Defaults for the background sweep when no system config overrides exist.
const (
	defaultSweepWindowHours = 24
	defaultSweepLimit       = 200
)

// StartSyncTicker runs a background goroutine that periodically reconciles
// recent calls missing recordings. The sweep window and candidate limit can
// be tuned via the reconcile_window_hours and reconcile_limit system config
// keys. The goroutine stops when the provided context is cancelled.
func StartSyncTicker(ctx context.Context, r *Reconciler, sysConfig database.SystemConfigRepository, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				hours := configInt(ctx, sysConfig, "reconcile_window_hours", defaultSweepWindowHours)
				limit := configInt(ctx, sysConfig, "reconcile_limit", defaultSweepLimit)

				until := time.Now().UTC()
				since := until.Add(-time.Duration(hours) * time.Hour)

				result, err := r.SyncBatch(ctx, since, until, limit)
				if err != nil {
					slog.Error("scheduled reconciliation failed", "error", err)
					continue
				}
				if result.Checked > 0 {
					slog.Info("scheduled reconciliation", "checked", result.Checked, "matched", result.Matched)
				}
			}
		}
	}()
}

// configInt reads a positive integer system config value, falling back to a
// default when unset or invalid.
func configInt(ctx context.Context, sysConfig database.SystemConfigRepository, key string, fallback int) int {
	raw, err := sysConfig.Get(ctx, key)
	if err != nil || raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
