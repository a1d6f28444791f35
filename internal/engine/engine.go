// Package engine runs the hotspot analysis over one input snapshot: queen
// weights and local Moran's I on areal units, and approximate density
// clustering, footprints and stability regions on incidents.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/hotspot-cli/internal/adbscan"
	"github.com/sells-group/hotspot-cli/internal/aggregate"
	"github.com/sells-group/hotspot-cli/internal/config"
	"github.com/sells-group/hotspot-cli/internal/footprint"
	"github.com/sells-group/hotspot-cli/internal/lisa"
	"github.com/sells-group/hotspot-cli/internal/model"
	"github.com/sells-group/hotspot-cli/internal/monitoring"
)

// Snapshot is the input of one run.
type Snapshot struct {
	Incidents []model.Incident
	Units     []model.ArealUnit
	// Dropped carries records rejected while reading the inputs.
	Dropped []model.DroppedFeature
}

// Engine runs analyses with a fixed configuration.
type Engine struct {
	cfg     *config.Config
	metrics *monitoring.Metrics
	now     func() time.Time
}

// New creates an Engine. metrics may be nil.
func New(cfg *config.Config, metrics *monitoring.Metrics) *Engine {
	return &Engine{cfg: cfg, metrics: metrics, now: time.Now}
}

func (e *Engine) clusterParams(seed uint64) adbscan.Params {
	c := e.cfg.Cluster
	return adbscan.Params{
		Eps:        c.Eps,
		MinPts:     c.MinPts,
		MinPtsFrac: c.MinPtsFrac,
		PctExact:   c.PctExact,
		Reps:       c.Reps,
		Seed:       seed,
		Workers:    e.cfg.Run.Workers,
	}
}

func (e *Engine) lisaParams() lisa.Params {
	return lisa.Params{
		Permutations: e.cfg.LISA.Permutations,
		Alpha:        e.cfg.LISA.Alpha,
		Seed:         e.cfg.LISA.Seed,
		Workers:      e.cfg.Run.Workers,
	}
}

func (e *Engine) extractOptions() footprint.ExtractOptions {
	return footprint.ExtractOptions{
		Eps:          e.cfg.Cluster.Eps,
		RadiusFactor: e.cfg.Footprint.RadiusFactor,
		Method:       e.cfg.Footprint.Method,
	}
}

func (e *Engine) simplifyOptions() footprint.SimplifyOptions {
	return footprint.SimplifyOptions{
		Buffer:    e.cfg.Footprint.Buffer,
		QuadSegs:  e.cfg.Footprint.QuadSegs,
		Tolerance: e.cfg.Footprint.SimplifyTolerance,
	}
}

// validate rejects parameter ranges before any work starts.
func (e *Engine) validate(mode model.RunMode) error {
	if !mode.Valid() {
		return eris.Wrapf(model.ErrConfig, "engine: unknown mode %q", mode)
	}
	if mode.Includes(model.RunModeClusters) {
		if err := e.clusterParams(1).Validate(); err != nil {
			return err
		}
		switch e.cfg.Footprint.Method {
		case footprint.MethodDisks, footprint.MethodHull:
		default:
			return eris.Wrapf(model.ErrConfig, "engine: unknown footprint method %q", e.cfg.Footprint.Method)
		}
		if !(e.cfg.Footprint.RadiusFactor > 0) || e.cfg.Footprint.Buffer < 0 {
			return eris.Wrap(model.ErrConfig, "engine: footprint radius_factor must be > 0 and buffer >= 0")
		}
	}
	if mode.Includes(model.RunModeLISA) {
		if err := e.lisaParams().Validate(); err != nil {
			return err
		}
		if e.cfg.Weights.Tolerance < 0 {
			return eris.Wrap(model.ErrConfig, "engine: weights tolerance must be >= 0")
		}
	}
	return nil
}

// Seed returns the clustering seed for a run: the configured seed, or a
// time-based one when the configured seed is zero.
func (e *Engine) Seed() uint64 {
	if s := e.cfg.Cluster.Seed; s != 0 {
		return s
	}
	return uint64(e.now().UnixNano())
}

// tracker serializes summary updates from concurrent branches.
type tracker struct {
	mu      sync.Mutex
	summary *model.Summary
	metrics *monitoring.Metrics
	log     *zap.Logger
}

func (t *tracker) drop(ds ...model.DroppedFeature) {
	if len(ds) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, d := range ds {
		t.summary.Drop(d)
	}
}

func (t *tracker) warn(msg string) {
	t.log.Warn("engine: " + msg)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.Warn(msg)
}

// stage runs fn and records its wall time.
func (t *tracker) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)

	t.metrics.ObserveStage(name, d)
	t.mu.Lock()
	t.summary.Timings = append(t.summary.Timings, model.StageTiming{Stage: name, Duration: d})
	t.mu.Unlock()

	if err != nil {
		t.log.Error("engine: stage failed", zap.String("stage", name), zap.Duration("duration", d), zap.Error(err))
		return err
	}
	t.log.Info("engine: stage complete", zap.String("stage", name), zap.Duration("duration", d))
	return nil
}

// Run executes the branches selected by mode over snap with the given
// clustering seed. The result is not persisted. A configuration error is
// returned before any work; data problems are skipped and reported in the
// summary. When every input the mode needs is empty the result has status
// no_data and empty tables.
func (e *Engine) Run(ctx context.Context, mode model.RunMode, seed uint64, snap Snapshot) (*model.Result, error) {
	return e.run(ctx, uuid.New().String(), mode, seed, snap)
}

func (e *Engine) run(ctx context.Context, runID string, mode model.RunMode, seed uint64, snap Snapshot) (*model.Result, error) {
	if err := e.validate(mode); err != nil {
		return nil, err
	}
	if seed == 0 {
		return nil, eris.Wrap(model.ErrConfig, "engine: seed must be non-zero")
	}

	log := zap.L().With(zap.String("component", "engine"), zap.String("run_id", runID), zap.String("mode", string(mode)))
	log.Info("engine: starting run", zap.Uint64("seed", seed))

	summary := &model.Summary{RunID: runID, Mode: mode, Status: model.RunStatusRunning, StartedAt: e.now().UTC()}
	res := &model.Result{RunID: runID, Mode: mode, Summary: summary}
	t := &tracker{summary: summary, metrics: e.metrics, log: log}
	t.drop(snap.Dropped...)

	var incidents []model.Incident
	var units []model.ArealUnit
	_ = t.stage(model.StageInput, func() error {
		var dropped []model.DroppedFeature
		incidents, dropped = CleanIncidents(snap.Incidents)
		t.drop(dropped...)
		units, dropped = CleanUnits(snap.Units)
		t.drop(dropped...)
		return nil
	})
	summary.Incidents, summary.Units = len(incidents), len(units)

	wantClusters := mode.Includes(model.RunModeClusters)
	wantLISA := mode.Includes(model.RunModeLISA)
	if (!wantClusters || len(incidents) == 0) && (!wantLISA || len(units) == 0) {
		log.Warn("engine: no data", zap.Int("incidents", len(incidents)), zap.Int("units", len(units)))
		summary.Warn(model.ErrNoData.Error())
		e.finish(res, model.RunStatusNoData)
		return res, nil
	}

	if e.cfg.Run.CountIncidents && len(units) > 0 {
		_ = t.stage(model.StageAggregate, func() error {
			var dropped []model.DroppedFeature
			units, dropped = aggregate.CountIncidents(units, incidents)
			t.drop(dropped...)
			return nil
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	if wantLISA {
		g.Go(func() error {
			if len(units) == 0 {
				t.warn("lisa skipped: no areal units")
				return nil
			}
			return e.runLISA(gctx, t, units, res)
		})
	}
	if wantClusters {
		g.Go(func() error {
			if len(incidents) == 0 {
				t.warn("clustering skipped: no incidents")
				return nil
			}
			return e.runClusters(gctx, t, incidents, seed, res)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrapf(err, "engine: run %s", runID)
	}

	if e.cfg.Run.WeeklySeries && len(units) > 0 && len(incidents) > 0 {
		_ = t.stage(model.StageAggregate, func() error {
			res.Weekly = aggregate.WeeklySeries(units, incidents)
			res.HasWeekly = true
			return nil
		})
	}
	res.Units = units

	e.finish(res, model.RunStatusComplete)
	log.Info("engine: run complete",
		zap.Int("footprints", summary.Footprints),
		zap.Int("period_footprints", summary.PeriodFootprints),
		zap.Int("regions", summary.Regions),
		zap.Int("significant", summary.Significant),
		zap.Int("dropped", len(summary.Dropped)),
	)
	return res, nil
}

func (e *Engine) finish(res *model.Result, status model.RunStatus) {
	s := res.Summary
	s.Status = status
	s.FinishedAt = e.now().UTC()
	e.metrics.RecordSummary(s)
}

// periodSeed derives the seed of the i-th period from the run seed.
func periodSeed(seed uint64, i int) uint64 {
	s := seed ^ (uint64(i+1) * 0x9E3779B97F4A7C15)
	if s == 0 {
		s = 1
	}
	return s
}
