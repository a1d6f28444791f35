package engine

import (
	"context"
	"runtime"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/hotspot-cli/internal/adbscan"
	"github.com/sells-group/hotspot-cli/internal/footprint"
	"github.com/sells-group/hotspot-cli/internal/geometry"
	"github.com/sells-group/hotspot-cli/internal/lisa"
	"github.com/sells-group/hotspot-cli/internal/model"
	"github.com/sells-group/hotspot-cli/internal/stability"
	"github.com/sells-group/hotspot-cli/internal/weights"
)

func (e *Engine) workers() int {
	if w := e.cfg.Run.Workers; w > 0 {
		return w
	}
	return runtime.GOMAXPROCS(0)
}

// runLISA builds queen weights over units and tests every unit's rate.
func (e *Engine) runLISA(ctx context.Context, t *tracker, units []model.ArealUnit, res *model.Result) error {
	var g *weights.Graph
	err := t.stage(model.StageWeights, func() error {
		var err error
		g, err = weights.Queen(ctx, units, e.cfg.Weights.Tolerance, e.cfg.Run.Workers)
		return err
	})
	if err != nil {
		return eris.Wrap(err, "engine: weights")
	}
	islands := g.Islands()
	if len(islands) > 0 {
		t.log.Info("engine: units without neighbors", zap.Int("islands", len(islands)))
	}

	byID := make(map[int64]model.ArealUnit, len(units))
	for _, u := range units {
		byID[u.ID] = u
	}
	values := make([]float64, g.Len())
	for i, id := range g.IDs() {
		values[i] = byID[id].Rate()
	}

	var stats []model.UnitStat
	err = t.stage(model.StageLISA, func() error {
		var err error
		stats, err = lisa.Analyze(ctx, g, values, e.lisaParams())
		return err
	})
	if err != nil {
		return eris.Wrap(err, "engine: lisa")
	}

	significant := 0
	for _, s := range stats {
		if s.Significant {
			significant++
		}
	}
	t.mu.Lock()
	t.summary.Islands = len(islands)
	t.summary.Significant = significant
	t.mu.Unlock()
	res.Stats = stats
	return nil
}

// clusterJob is one clustering input: the full history or one period.
type clusterJob struct {
	period string
	seed   uint64
	pts    []geometry.Point
	labels *adbscan.Result
	fps    []model.Footprint
}

// splitPeriods groups incidents by period key in ascending order.
func splitPeriods(incidents []model.Incident) ([]string, map[string][]geometry.Point) {
	groups := make(map[string][]geometry.Point)
	for _, inc := range incidents {
		p := inc.Period()
		groups[p] = append(groups[p], inc.Point())
	}
	periods := make([]string, 0, len(groups))
	for p := range groups {
		periods = append(periods, p)
	}
	sort.Strings(periods)
	return periods, groups
}

// runClusters clusters the full history and every period, extracts and
// smooths footprints, and partitions the period footprints into stability
// regions.
func (e *Engine) runClusters(ctx context.Context, t *tracker, incidents []model.Incident, seed uint64, res *model.Result) error {
	all := make([]geometry.Point, len(incidents))
	for i, inc := range incidents {
		all[i] = inc.Point()
	}
	periods, groups := splitPeriods(incidents)

	jobs := make([]*clusterJob, 0, len(periods)+1)
	jobs = append(jobs, &clusterJob{period: model.AllTime, seed: seed, pts: all})
	for i, p := range periods {
		jobs = append(jobs, &clusterJob{period: p, seed: periodSeed(seed, i), pts: groups[p]})
	}

	// Each job gets a fixed seed, so the outcome does not depend on the
	// order in which the pool runs them.
	forEach := func(fn func(ctx context.Context, j *clusterJob) error) error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.workers())
		for _, j := range jobs {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return fn(gctx, j)
			})
		}
		return g.Wait()
	}

	err := t.stage(model.StageCluster, func() error {
		return forEach(func(ctx context.Context, j *clusterJob) error {
			r, err := adbscan.Cluster(ctx, j.pts, e.clusterParams(j.seed))
			if err != nil {
				return eris.Wrapf(err, "period %s", j.period)
			}
			j.labels = r
			e.metrics.SetClusters(j.period, r.Clusters)
			return nil
		})
	})
	if err != nil {
		return eris.Wrap(err, "engine: cluster")
	}

	opt := e.extractOptions()
	err = t.stage(model.StageFootprint, func() error {
		return forEach(func(_ context.Context, j *clusterJob) error {
			fps, dropped := footprint.Extract(j.pts, j.labels.Labels, j.labels.Clusters, j.period, opt)
			t.drop(dropped...)
			j.fps = fps
			return nil
		})
	})
	if err != nil {
		return eris.Wrap(err, "engine: footprints")
	}

	sopt := e.simplifyOptions()
	err = t.stage(model.StageSimplify, func() error {
		return forEach(func(_ context.Context, j *clusterJob) error {
			fps, dropped := footprint.SimplifyAll(j.fps, sopt)
			t.drop(dropped...)
			j.fps = fps
			return nil
		})
	})
	if err != nil {
		return eris.Wrap(err, "engine: simplify")
	}

	res.AllTime = jobs[0].fps
	for _, j := range jobs[1:] {
		res.Periods = append(res.Periods, j.fps...)
	}

	_ = t.stage(model.StageStability, func() error {
		res.Regions = stability.Partition(res.Periods)
		return nil
	})

	t.mu.Lock()
	t.summary.Periods = periods
	t.summary.Clusters = jobs[0].labels.Clusters
	t.summary.Footprints = len(res.AllTime)
	t.summary.PeriodFootprints = len(res.Periods)
	t.summary.Regions = len(res.Regions)
	t.mu.Unlock()
	return nil
}
