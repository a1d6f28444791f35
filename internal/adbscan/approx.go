package adbscan

import (
	"context"
	"math/rand/v2"
	"runtime"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/hotspot-cli/internal/geometry"
	"github.com/sells-group/hotspot-cli/internal/model"
)

// Result is the reconciled label assignment.
type Result struct {
	// Labels holds a cluster id in 0..Clusters-1 or model.Noise per point.
	Labels []int
	// Share is the fraction of passes that agreed with the final label.
	Share    []float64
	Clusters int
	MinPts   int
	Seed     uint64
}

// Members returns the point indices of every cluster, indexed by cluster id.
func (r *Result) Members() [][]int {
	out := make([][]int, r.Clusters)
	for i, l := range r.Labels {
		if l >= 0 {
			out[l] = append(out[l], i)
		}
	}
	return out
}

// NoiseCount returns the number of points labeled noise.
func (r *Result) NoiseCount() int {
	n := 0
	for _, l := range r.Labels {
		if l == model.Noise {
			n++
		}
	}
	return n
}

// pass is the outcome of one randomized run.
type pass struct {
	labels   []int
	clusters int
}

// Cluster labels pts. Each of p.Reps passes draws its own random subsample
// from a stream keyed by (seed, pass), so the result does not depend on
// scheduling. A zero seed is replaced with a time-based one, reported in
// Result.Seed.
func Cluster(ctx context.Context, pts []geometry.Point, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	for i, pt := range pts {
		if !pt.Finite() {
			return nil, eris.Wrapf(model.ErrInvalidGeometry, "adbscan: point %d has non-finite coordinates", i)
		}
	}
	seed := p.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	n := len(pts)
	minPts := p.ResolveMinPts(n)
	res := &Result{Labels: make([]int, n), Share: make([]float64, n), MinPts: minPts, Seed: seed}
	for i := range res.Labels {
		res.Labels[i] = model.Noise
		res.Share[i] = 1
	}
	if n <= 1 {
		return res, nil
	}

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	m := p.sampleSize(n)
	sampleMin := p.sampleMinPts(minPts)

	passes := make([]pass, p.Reps)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for rep := 0; rep < p.Reps; rep++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(seed, uint64(rep)))
			passes[rep] = runPass(pts, sample(rng, n, m), p.Eps, sampleMin)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "adbscan: passes")
	}

	remapped := reconcile(pts, passes)
	res.Labels, res.Share = vote(remapped, n)
	res.Clusters = compact(res.Labels)

	zap.L().Debug("adbscan: clustered",
		zap.Int("points", n),
		zap.Int("min_pts", minPts),
		zap.Int("sample", m),
		zap.Int("clusters", res.Clusters),
		zap.Int("noise", res.NoiseCount()),
	)
	return res, nil
}

// sample returns m distinct indices from [0,n) in ascending order.
func sample(rng *rand.Rand, n, m int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := 0; i < m; i++ {
		j := i + rng.IntN(n-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	out := perm[:m]
	sort.Ints(out)
	return out
}

// runPass clusters the sample exactly and assigns every other point the
// label of its nearest sample core point within eps.
func runPass(pts []geometry.Point, members []int, eps float64, minPts int) pass {
	labels, core, k := dbscan(pts, members, eps, minPts)
	if k == 0 {
		return pass{labels: labels}
	}
	inSample := make([]bool, len(pts))
	for _, i := range members {
		inSample[i] = true
	}
	cores := newGrid(pts, eps, core)
	for i := range pts {
		if inSample[i] {
			continue
		}
		if c := cores.nearest(pts[i]); c >= 0 {
			labels[i] = labels[c]
		}
	}
	return pass{labels: labels, clusters: k}
}
