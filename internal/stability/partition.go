// Package stability partitions overlapping footprints into disjoint regions
// tagged with how many footprints cover them.
package stability

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/hotspot-cli/internal/geometry"
	"github.com/sells-group/hotspot-cli/internal/model"
)

// Partition cuts the union of the footprints along every footprint boundary.
// Each resulting region carries the number of footprints containing its
// interior point. Regions are numbered by the position of their interior
// point, lowest x first, then lowest y.
func Partition(fps []model.Footprint) []model.StabilityRegion {
	inputs := make([]geometry.MultiPolygon, 0, len(fps))
	for _, fp := range fps {
		if len(fp.Geom) > 0 {
			inputs = append(inputs, fp.Geom)
		}
	}
	if len(inputs) == 0 {
		return nil
	}

	faces := geometry.Arrange(inputs)
	kept := faces[:0]
	for _, f := range faces {
		if f.Count() > 0 {
			kept = append(kept, f)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i].Interior, kept[j].Interior
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Y < b.Y
	})

	out := make([]model.StabilityRegion, len(kept))
	maxCount := 0
	for i, f := range kept {
		out[i] = model.StabilityRegion{RegionID: i, Count: f.Count(), Geom: f.Polygon.Normalize()}
		maxCount = max(maxCount, out[i].Count)
	}
	zap.L().Debug("stability: partitioned footprints",
		zap.Int("footprints", len(inputs)),
		zap.Int("regions", len(out)),
		zap.Int("max_count", maxCount),
	)
	return out
}

// Area returns the total area of the regions.
func Area(regions []model.StabilityRegion) float64 {
	var a float64
	for _, r := range regions {
		a += r.Geom.Area()
	}
	return a
}
