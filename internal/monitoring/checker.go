package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/hotspot-cli/internal/config"
)

// Report is the outcome of one health check.
type Report struct {
	Snapshot *MetricsSnapshot `json:"snapshot"`
	Alerts   []Alert          `json:"alerts"`
	Sent     int              `json:"sent"`
}

// Checker evaluates run health on an interval, sends alerts and optionally
// publishes the health gauges to a textfile.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	metrics  *Metrics
	textfile string
}

// NewChecker creates a health checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{collector: collector, alerter: alerter, cfg: cfg}
}

// Export makes every check record its snapshot and alerts into m and rewrite
// the textfile at path. An empty path only updates m.
func (c *Checker) Export(m *Metrics, path string) *Checker {
	c.metrics = m
	c.textfile = path
	return c
}

func (c *Checker) interval() time.Duration {
	if c.cfg.CheckIntervalSecs <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.cfg.CheckIntervalSecs) * time.Second
}

// Run checks immediately, then every interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	interval := c.interval()
	log.Info("monitoring: checker started",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if ctx.Err() == nil {
			c.Check(ctx)
		}
		select {
		case <-ctx.Done():
			log.Info("monitoring: checker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Check collects one snapshot, evaluates it, sends any alerts and exports the
// result. Collection failures are logged and yield a nil report.
func (c *Checker) Check(ctx context.Context) *Report {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: failed to collect run history", zap.Error(err))
		return nil
	}

	rep := &Report{Snapshot: snap, Alerts: c.alerter.Evaluate(snap)}
	if len(rep.Alerts) > 0 {
		rep.Sent = c.alerter.SendAlerts(ctx, rep.Alerts)
	}
	log.Info("monitoring: check complete",
		zap.Int("runs", snap.RunsTotal),
		zap.Float64("fail_rate", snap.FailRate),
		zap.Int("alerts_triggered", len(rep.Alerts)),
		zap.Int("alerts_sent", rep.Sent),
	)

	if c.metrics != nil {
		c.metrics.RecordHealth(rep)
		if err := c.metrics.WriteTextfile(c.textfile); err != nil {
			log.Warn("monitoring: failed to export health", zap.Error(err))
		}
	}
	return rep
}
