// Package footprint turns labeled clusters into boundary polygons and
// smooths them.
package footprint

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/sells-group/hotspot-cli/internal/geometry"
	"github.com/sells-group/hotspot-cli/internal/model"
)

// Boundary methods.
const (
	MethodDisks = "disks"
	MethodHull  = "hull"
)

// MinPoints is the smallest cluster that yields a footprint.
const MinPoints = 3

// DiskSegments is the vertex count of the disk drawn around each point.
const DiskSegments = 16

// ExtractOptions controls footprint extraction.
type ExtractOptions struct {
	Eps          float64
	RadiusFactor float64
	Method       string
}

// Radius returns the disk radius.
func (o ExtractOptions) Radius() float64 { return o.RadiusFactor * o.Eps }

// Extract builds one footprint per cluster of labels, in cluster id order.
// Clusters with fewer than MinPoints points are skipped and reported.
func Extract(pts []geometry.Point, labels []int, clusters int, period string, opt ExtractOptions) ([]model.Footprint, []model.DroppedFeature) {
	log := zap.L().With(zap.String("component", "footprint"), zap.String("period", period))
	members := make([][]geometry.Point, clusters)
	for i, l := range labels {
		if l >= 0 && l < clusters {
			members[l] = append(members[l], pts[i])
		}
	}

	var out []model.Footprint
	var dropped []model.DroppedFeature
	for id, m := range members {
		if len(m) < MinPoints {
			log.Info("footprint: cluster too small", zap.Int("cluster_id", id), zap.Int("points", len(m)))
			dropped = append(dropped, model.DroppedFeature{
				Stage:  model.StageFootprint,
				Period: period,
				ID:     int64(id),
				Reason: fmt.Sprintf("cluster has %d points, need %d", len(m), MinPoints),
			})
			continue
		}
		g := boundary(m, opt)
		if len(g) == 0 {
			dropped = append(dropped, model.DroppedFeature{
				Stage:  model.StageFootprint,
				Period: period,
				ID:     int64(id),
				Reason: "empty boundary",
			})
			continue
		}
		out = append(out, model.Footprint{Period: period, ClusterID: id, Points: len(m), Geom: g})
	}
	return out, dropped
}

func boundary(pts []geometry.Point, opt ExtractOptions) geometry.MultiPolygon {
	if opt.Method == MethodHull {
		if h := geometry.ConvexHull(pts); h != nil {
			return geometry.MultiPolygon{{h}}
		}
	}
	r := opt.Radius()
	var disks []geometry.MultiPolygon
	for _, c := range Thin(pts, r/2) {
		disks = append(disks, geometry.MultiPolygon{{geometry.Disk(c, r, DiskSegments)}})
	}
	return geometry.UnionAll(disks)
}

// Thin keeps the first point of every square cell of side cell. Each dropped
// point lies within cell·√2 of the point kept for its cell.
func Thin(pts []geometry.Point, cell float64) []geometry.Point {
	if cell <= 0 {
		return pts
	}
	type key struct{ x, y int64 }
	seen := make(map[key]bool, len(pts))
	var out []geometry.Point
	for _, p := range pts {
		k := key{int64(math.Floor(p.X / cell)), int64(math.Floor(p.Y / cell))}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return out
}
