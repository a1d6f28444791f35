package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"

	"github.com/sells-group/hotspot-cli/internal/model"
)

const namespace = "hotspot"

// StageDurationBuckets covers sub-second stages up to hour-long runs.
var StageDurationBuckets = []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 900, 3600}

// Metrics holds the Prometheus collectors for one analysis process. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	stageDuration *prometheus.HistogramVec
	dropped       *prometheus.CounterVec
	runs          *prometheus.CounterVec
	clusters      *prometheus.GaugeVec
	footprints    *prometheus.GaugeVec
	regions       prometheus.Gauge
	significant   prometheus.Gauge
	islands       prometheus.Gauge
	lastSuccess   prometheus.Gauge

	windowRuns  *prometheus.GaugeVec
	failureRate prometheus.Gauge
	alerts      *prometheus.GaugeVec
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent per analysis stage.",
			Buckets:   StageDurationBuckets,
		}, []string{"stage"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_features_total",
			Help:      "Records, clusters and footprints skipped during analysis.",
		}, []string{"stage"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Analysis runs by final status.",
		}, []string{"status"}),
		clusters: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clusters",
			Help:      "Clusters found in the last run by period.",
		}, []string{"period"}),
		footprints: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "footprints",
			Help:      "Footprints written by the last run.",
		}, []string{"scope"}),
		regions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stability_regions",
			Help:      "Stability regions produced by the last run.",
		}),
		significant: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lisa_significant_units",
			Help:      "Units with significant local Moran's I in the last run.",
		}),
		islands: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "weights_islands",
			Help:      "Units without neighbors in the last run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last completed run.",
		}),
		windowRuns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_runs",
			Help:      "Runs started within the monitoring lookback window by status.",
		}, []string{"status"}),
		failureRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_failure_rate",
			Help:      "Failed share of finished runs within the lookback window.",
		}),
		alerts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alerts_firing",
			Help:      "1 when the alert type fired on the last check.",
		}, []string{"type"}),
	}
	m.registry.MustRegister(
		m.stageDuration, m.dropped, m.runs, m.clusters, m.footprints,
		m.regions, m.significant, m.islands, m.lastSuccess,
		m.windowRuns, m.failureRate, m.alerts,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveStage records the duration of one stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// SetClusters records the cluster count of a period.
func (m *Metrics) SetClusters(period string, n int) {
	if m == nil {
		return
	}
	m.clusters.WithLabelValues(period).Set(float64(n))
}

// RecordSummary records the outcome of a finished run.
func (m *Metrics) RecordSummary(s *model.Summary) {
	if m == nil || s == nil {
		return
	}
	m.runs.WithLabelValues(string(s.Status)).Inc()
	for _, d := range s.Dropped {
		m.dropped.WithLabelValues(d.Stage).Inc()
	}
	m.footprints.WithLabelValues(model.AllTime).Set(float64(s.Footprints))
	m.footprints.WithLabelValues("period").Set(float64(s.PeriodFootprints))
	m.regions.Set(float64(s.Regions))
	m.significant.Set(float64(s.Significant))
	m.islands.Set(float64(s.Islands))
	if s.Status == model.RunStatusComplete || s.Status == model.RunStatusNoData {
		m.lastSuccess.Set(float64(s.FinishedAt.Unix()))
	}
}

// RecordHealth records a health check report.
func (m *Metrics) RecordHealth(rep *Report) {
	if m == nil || rep == nil || rep.Snapshot == nil {
		return
	}
	snap := rep.Snapshot
	m.windowRuns.WithLabelValues(string(model.RunStatusComplete)).Set(float64(snap.RunsComplete))
	m.windowRuns.WithLabelValues(string(model.RunStatusNoData)).Set(float64(snap.RunsNoData))
	m.windowRuns.WithLabelValues(string(model.RunStatusFailed)).Set(float64(snap.RunsFailed))
	m.windowRuns.WithLabelValues(string(model.RunStatusRunning)).Set(float64(snap.RunsRunning))
	m.failureRate.Set(snap.FailRate)
	if snap.LastSuccess != nil {
		m.lastSuccess.Set(float64(snap.LastSuccess.Unix()))
	}
	firing := map[AlertType]bool{}
	for _, a := range rep.Alerts {
		firing[a.Type] = true
	}
	for _, t := range []AlertType{AlertRunFailureRate, AlertStaleResults} {
		v := 0.0
		if firing[t] {
			v = 1
		}
		m.alerts.WithLabelValues(string(t)).Set(v)
	}
}

// WriteTextfile writes all metrics in the node exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return eris.Wrap(err, "monitoring: write textfile")
	}
	return nil
}
