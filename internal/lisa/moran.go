// Package lisa computes local Moran's I with conditional permutation
// inference.
package lisa

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/hotspot-cli/internal/model"
	"github.com/sells-group/hotspot-cli/internal/weights"
)

// Params controls the permutation test.
type Params struct {
	Permutations int
	Alpha        float64
	Seed         uint64
	Workers      int
}

// DefaultParams returns the defaults used when nothing is configured.
func DefaultParams() Params {
	return Params{Permutations: 999, Alpha: 0.05, Seed: 12345}
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	if p.Permutations < 1 {
		return eris.Wrapf(model.ErrConfig, "lisa: permutations must be >= 1, got %d", p.Permutations)
	}
	if !(p.Alpha > 0 && p.Alpha < 1) {
		return eris.Wrapf(model.ErrConfig, "lisa: alpha must be in (0,1), got %g", p.Alpha)
	}
	return nil
}

// Significant reports whether p-value p passes threshold alpha.
func Significant(p, alpha float64) bool { return p < alpha }

// Classify returns the quadrant of a unit from its standardized value and
// spatial lag. Values above zero count as high.
func Classify(z, lag float64, significant bool) model.Quadrant {
	if !significant {
		return model.QuadrantNS
	}
	switch {
	case z > 0 && lag > 0:
		return model.QuadrantHH
	case z <= 0 && lag > 0:
		return model.QuadrantLH
	case z <= 0:
		return model.QuadrantLL
	default:
		return model.QuadrantHL
	}
}

// Standardize returns (y - mean) / sd using the population standard
// deviation. A constant vector yields all zeros.
func Standardize(y []float64) []float64 {
	z := make([]float64, len(y))
	if len(y) == 0 {
		return z
	}
	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))
	var ss float64
	for _, v := range y {
		ss += (v - mean) * (v - mean)
	}
	sd := math.Sqrt(ss / float64(len(y)))
	if sd == 0 {
		return z
	}
	for i, v := range y {
		z[i] = (v - mean) / sd
	}
	return z
}

// Lag returns the row-standardized spatial lag of z at unit i.
func Lag(g *weights.Graph, z []float64, i int) float64 {
	nb := g.NeighborIndices(i)
	if len(nb) == 0 {
		return 0
	}
	var s float64
	for _, j := range nb {
		s += z[j]
	}
	return s / float64(len(nb))
}

// Analyze computes local Moran's I for every unit of g with values aligned to
// g.IDs(). Each unit draws its permutations from its own random stream keyed
// by (seed, unit position), so results do not depend on scheduling.
func Analyze(ctx context.Context, g *weights.Graph, values []float64, p Params) ([]model.UnitStat, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := g.Len()
	if len(values) != n {
		return nil, eris.Errorf("lisa: %d values for %d units", len(values), n)
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, eris.Errorf("lisa: non-finite value for unit %d", g.IDs()[i])
		}
	}
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	z := Standardize(values)
	stats := make([]model.UnitStat, n)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			stats[i] = local(g, values, z, i, p)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, eris.Wrap(err, "lisa: analyze")
	}

	sig := 0
	for _, s := range stats {
		if s.Significant {
			sig++
		}
	}
	zap.L().Debug("lisa: local moran computed",
		zap.Int("units", n),
		zap.Int("significant", sig),
		zap.Int("permutations", p.Permutations),
	)
	return stats, nil
}

func local(g *weights.Graph, values, z []float64, i int, p Params) model.UnitStat {
	nb := g.NeighborIndices(i)
	st := model.UnitStat{
		UnitID:    g.IDs()[i],
		Value:     values[i],
		Neighbors: len(nb),
	}
	if len(nb) == 0 {
		st.I = math.NaN()
		st.P = 1
		st.Quadrant = model.QuadrantNS
		return st
	}

	lag := Lag(g, z, i)
	obs := z[i] * lag
	st.I = obs

	n := len(z)
	k := len(nb)
	pool := make([]int, 0, n-1)
	for j := 0; j < n; j++ {
		if j != i {
			pool = append(pool, j)
		}
	}
	rng := rand.New(rand.NewPCG(p.Seed, uint64(i)))
	extreme := 0
	absObs := math.Abs(obs)
	for r := 0; r < p.Permutations; r++ {
		var s float64
		for m := 0; m < k; m++ {
			pick := m + rng.IntN(len(pool)-m)
			pool[m], pool[pick] = pool[pick], pool[m]
			s += z[pool[m]]
		}
		if math.Abs(z[i]*s/float64(k)) >= absObs {
			extreme++
		}
	}
	st.P = float64(extreme+1) / float64(p.Permutations+1)
	st.Significant = Significant(st.P, p.Alpha)
	st.Quadrant = Classify(z[i], lag, st.Significant)
	return st
}

// Rates returns the incident rate of every unit in order.
func Rates(units []model.ArealUnit) []float64 {
	out := make([]float64, len(units))
	for i, u := range units {
		out[i] = u.Rate()
	}
	return out
}
