package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hotspot-cli/internal/model"
	"github.com/sells-group/hotspot-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of analysis run health.
type MetricsSnapshot struct {
	// Run counts within the lookback window.
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsNoData   int     `json:"runs_no_data"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	FailRate     float64 `json:"fail_rate"`
	AvgDuration  float64 `json:"avg_duration_secs"`

	// LastSuccess is the finish time of the newest complete run, at any age.
	LastSuccess *time.Time `json:"last_success,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister abstracts the run history queries needed by the collector.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers run metrics from the store.
type Collector struct {
	runs RunLister
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, now: func() time.Time { return time.Now().UTC() }}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		StartedAfter: cutoff,
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var totalSecs float64
	var timed int
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusNoData:
			snap.RunsNoData++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
		if r.FinishedAt != nil {
			totalSecs += r.FinishedAt.Sub(r.StartedAt).Seconds()
			timed++
		}
	}
	finished := snap.RunsComplete + snap.RunsNoData + snap.RunsFailed
	if finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if timed > 0 {
		snap.AvgDuration = totalSecs / float64(timed)
	}

	last, err := c.runs.ListRuns(ctx, store.RunFilter{
		Status: model.RunStatusComplete,
		Limit:  1,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: last complete run")
	}
	if len(last) > 0 && last[0].FinishedAt != nil {
		t := *last[0].FinishedAt
		snap.LastSuccess = &t
	}

	return snap, nil
}
