package stability

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hotspot-cli/internal/footprint"
	"github.com/sells-group/hotspot-cli/internal/geometry"
	"github.com/sells-group/hotspot-cli/internal/model"
)

func squareFP(period string, x, y, size float64) model.Footprint {
	return model.Footprint{Period: period, Geom: geometry.MultiPolygon{{geometry.Ring{
		{X: x, Y: y}, {X: x + size, Y: y}, {X: x + size, Y: y + size}, {X: x, Y: y + size},
	}}}}
}

func diskFP(period string, x, y, r float64) model.Footprint {
	return model.Footprint{Period: period, Geom: geometry.MultiPolygon{{geometry.Disk(geometry.Point{X: x, Y: y}, r, 16)}}}
}

func TestPartitionIdentical(t *testing.T) {
	t.Parallel()

	regions := Partition([]model.Footprint{squareFP("2020", 0, 0, 2), squareFP("2021", 0, 0, 2)})
	require.Len(t, regions, 1)
	assert.Equal(t, 2, regions[0].Count)
	assert.Equal(t, 0, regions[0].RegionID)
	assert.InDelta(t, 4.0, regions[0].Geom.Area(), 1e-9)
}

func TestPartitionDisjoint(t *testing.T) {
	t.Parallel()

	regions := Partition([]model.Footprint{squareFP("2021", 5, 5, 1), squareFP("2020", 0, 0, 1)})
	require.Len(t, regions, 2)
	for i, r := range regions {
		assert.Equal(t, 1, r.Count)
		assert.Equal(t, i, r.RegionID)
	}
	// Ordered by interior point.
	assert.Less(t, regions[0].Geom[0][0].X, 2.0)
}

func TestPartitionOverlap(t *testing.T) {
	t.Parallel()

	regions := Partition([]model.Footprint{squareFP("2020", 0, 0, 2), squareFP("2021", 1, 1, 2)})
	require.Len(t, regions, 3)

	byCount := map[int]float64{}
	for _, r := range regions {
		byCount[r.Count] += r.Geom.Area()
	}
	assert.InDelta(t, 6.0, byCount[1], 1e-9)
	assert.InDelta(t, 1.0, byCount[2], 1e-9)
	assert.InDelta(t, 7.0, Area(regions), 1e-9)
}

func TestPartitionDiscardsUncoveredHole(t *testing.T) {
	t.Parallel()

	annulus := model.Footprint{Period: "2020", Geom: geometry.MultiPolygon{{
		geometry.Ring{{X: 0, Y: 0}, {X: 6, Y: 0}, {X: 6, Y: 6}, {X: 0, Y: 6}},
		geometry.Ring{{X: 1, Y: 1}, {X: 1, Y: 5}, {X: 5, Y: 5}, {X: 5, Y: 1}},
	}}}
	inner := squareFP("2021", 2, 2, 2)
	regions := Partition([]model.Footprint{annulus, inner})
	require.Len(t, regions, 2)
	assert.InDelta(t, 36-16+4, Area(regions), 1e-9)
	for _, r := range regions {
		assert.Equal(t, 1, r.Count)
	}
}

func TestPartitionEmpty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Partition(nil))
	assert.Empty(t, Partition([]model.Footprint{{Period: "2020"}}))
}

func TestPartitionProperty(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	for trial := 0; trial < 5; trial++ {
		var fps []model.Footprint
		var inputs []geometry.MultiPolygon
		for k := 0; k < 4; k++ {
			fp := diskFP("p", rng.Float64()*4, rng.Float64()*4, 1+rng.Float64())
			fps = append(fps, fp)
			inputs = append(inputs, fp.Geom)
		}
		regions := Partition(fps)
		require.NotEmpty(t, regions)

		union := geometry.Union(inputs...).Area()
		assert.InDelta(t, union, Area(regions), 1e-6*union, "trial %d", trial)

		for i := range regions {
			require.NoError(t, geometry.Validate(regions[i].Geom))
			for j := i + 1; j < len(regions); j++ {
				a := geometry.MultiPolygon{regions[i].Geom}
				b := geometry.MultiPolygon{regions[j].Geom}
				assert.InDelta(t, 0, geometry.Intersection(a, b).Area(), 1e-6, "trial %d regions %d/%d", trial, i, j)
			}
		}

		// Counts agree with direct containment of each region's interior.
		for _, r := range regions {
			ip, ok := geometry.InteriorPoint(r.Geom)
			require.True(t, ok)
			n := 0
			for _, in := range inputs {
				if in.Contains(ip) {
					n++
				}
			}
			assert.Equal(t, n, r.Count)
		}
	}
}

func TestPartitionNearDuplicateCorner(t *testing.T) {
	t.Parallel()

	sq := geometry.MultiPolygon{{geometry.Ring{{X: 5e-11, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}, {X: 0, Y: 0}}}}
	regions := Partition([]model.Footprint{{Period: "2020", Geom: sq}, {Period: "2021", Geom: sq}})
	require.Len(t, regions, 1)
	assert.Equal(t, 2, regions[0].Count)
	assert.InDelta(t, 1.0, Area(regions), 1e-9)
}

// periodFootprints clusters, extracts and smooths a few drifting hotspots per
// period the way an analysis run does.
func periodFootprints(t *testing.T, buffer float64) []model.Footprint {
	t.Helper()
	rng := rand.New(rand.NewPCG(11, 13))
	centers := []geometry.Point{{X: 0, Y: 0}, {X: 1.2, Y: 0.4}}
	ext := footprint.ExtractOptions{Eps: 0.15, RadiusFactor: 0.6, Method: footprint.MethodDisks}
	simp := footprint.SimplifyOptions{Buffer: buffer, QuadSegs: geometry.DefaultQuadSegs}

	var out []model.Footprint
	for period := 0; period < 6; period++ {
		var pts []geometry.Point
		var labels []int
		for id, c := range centers {
			for i := 0; i < 60; i++ {
				pts = append(pts, geometry.Point{
					X: c.X + 0.05*float64(period) + 0.15*rng.NormFloat64(),
					Y: c.Y + 0.15*rng.NormFloat64(),
				})
				labels = append(labels, id)
			}
		}
		fps, _ := footprint.Extract(pts, labels, len(centers), fmt.Sprintf("%d", 2015+period), ext)
		smoothed, dropped := footprint.SimplifyAll(fps, simp)
		require.Empty(t, dropped)
		out = append(out, smoothed...)
	}
	return out
}

func TestPartitionOfSmoothedFootprints(t *testing.T) {
	t.Parallel()

	for _, buffer := range []float64{0.05, 10} {
		fps := periodFootprints(t, buffer)
		inputs := make([]geometry.MultiPolygon, len(fps))
		for i, fp := range fps {
			inputs[i] = fp.Geom
		}

		regions := Partition(fps)
		require.NotEmpty(t, regions)
		union := geometry.Union(inputs...).Area()
		assert.InDelta(t, union, Area(regions), 1e-9*union, "buffer %g", buffer)

		for _, r := range regions {
			require.NoError(t, geometry.Validate(r.Geom), "buffer %g region %d", buffer, r.RegionID)
			ip, ok := geometry.InteriorPoint(r.Geom)
			require.True(t, ok)
			n := 0
			for _, in := range inputs {
				if in.Contains(ip) {
					n++
				}
			}
			assert.Equal(t, n, r.Count, "buffer %g region %d", buffer, r.RegionID)
		}
	}
}

func TestPartitionDeterministic(t *testing.T) {
	t.Parallel()

	fps := []model.Footprint{diskFP("a", 0, 0, 1), diskFP("b", 0.5, 0.2, 1), diskFP("c", 0.2, 0.7, 1.2)}
	a := Partition(fps)
	b := Partition(fps)
	assert.Equal(t, a, b)
}
