package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ActiveCallCounter returns the number of active agent/customer pairings.
type ActiveCallCounter interface {
	Count(ctx context.Context) (int64, error)
}

// SessionCounter returns the number of tracked in-flight call sessions.
type SessionCounter interface {
	Count(ctx context.Context) (int, error)
}

// CallDirectionCounter returns call record counts grouped by direction.
type CallDirectionCounter interface {
	CountByDirection(ctx context.Context) (map[string]int64, error)
}

// RecordingCounter returns the number of call records with a saved recording.
type RecordingCounter interface {
	CountSavedRecordings(ctx context.Context) (int64, error)
}

// Collector is a prometheus.Collector that gathers Dialplane metrics at scrape time.
type Collector struct {
	activeCalls ActiveCallCounter
	sessions    SessionCounter
	calls       CallDirectionCounter
	recordings  RecordingCounter
	startTime   time.Time

	// Metric descriptors.
	activeCallsDesc *prometheus.Desc
	sessionsDesc    *prometheus.Desc
	callsTotalDesc  *prometheus.Desc
	recordingsDesc  *prometheus.Desc
	uptimeDesc      *prometheus.Desc
}

// NewCollector creates a new metrics collector. Any provider may be nil if unavailable.
func NewCollector(
	activeCalls ActiveCallCounter,
	sessions SessionCounter,
	calls CallDirectionCounter,
	recordings RecordingCounter,
	startTime time.Time,
) *Collector {
	return &Collector{
		activeCalls: activeCalls,
		sessions:    sessions,
		calls:       calls,
		recordings:  recordings,
		startTime:   startTime,

		activeCallsDesc: prometheus.NewDesc(
			"dialplane_active_calls",
			"Number of agent/customer pairings currently bridged",
			nil, nil,
		),
		sessionsDesc: prometheus.NewDesc(
			"dialplane_call_sessions",
			"Number of in-flight call sessions being tracked",
			nil, nil,
		),
		callsTotalDesc: prometheus.NewDesc(
			"dialplane_calls_total",
			"Total number of calls processed",
			[]string{"direction"}, nil,
		),
		recordingsDesc: prometheus.NewDesc(
			"dialplane_recordings_saved_total",
			"Total number of call records with a reconciled recording",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"dialplane_uptime_seconds",
			"Seconds since the Dialplane process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeCallsDesc
	ch <- c.sessionsDesc
	ch <- c.callsTotalDesc
	ch <- c.recordingsDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.activeCalls != nil {
		count, err := c.activeCalls.Count(ctx)
		if err != nil {
			slog.Error("metrics: failed to count active calls", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(
				c.activeCallsDesc, prometheus.GaugeValue,
				float64(count),
			)
		}
	}

	if c.sessions != nil {
		count, err := c.sessions.Count(ctx)
		if err != nil {
			slog.Error("metrics: failed to count sessions", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(
				c.sessionsDesc, prometheus.GaugeValue,
				float64(count),
			)
		}
	}

	if c.calls != nil {
		counts, err := c.calls.CountByDirection(ctx)
		if err != nil {
			slog.Error("metrics: failed to count calls by direction", "error", err)
		} else {
			for _, dir := range []string{"inbound", "outbound"} {
				ch <- prometheus.MustNewConstMetric(
					c.callsTotalDesc, prometheus.CounterValue,
					float64(counts[dir]), dir,
				)
			}
		}
	}

	if c.recordings != nil {
		count, err := c.recordings.CountSavedRecordings(ctx)
		if err != nil {
			slog.Error("metrics: failed to count saved recordings", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(
				c.recordingsDesc, prometheus.CounterValue,
				float64(count),
			)
		}
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
