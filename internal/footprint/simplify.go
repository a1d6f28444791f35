package footprint

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hotspot-cli/internal/geometry"
	"github.com/sells-group/hotspot-cli/internal/model"
)

// SimplifyOptions controls smoothing.
type SimplifyOptions struct {
	// Buffer is the dilate-then-erode distance.
	Buffer   float64
	QuadSegs int
	// Tolerance enables Douglas-Peucker thinning when positive.
	Tolerance float64
}

// Simplify closes the footprint by Buffer with round joins, optionally thins
// its rings and validates the result. Invalid output is repaired once; if it
// is still invalid an error wrapping model.ErrInvalidGeometry is returned.
func Simplify(fp model.Footprint, opt SimplifyOptions) (model.Footprint, error) {
	g := fp.Geom
	if opt.Buffer > 0 {
		g = geometry.Close(g, opt.Buffer, opt.QuadSegs)
	}
	if opt.Tolerance > 0 {
		g = thin(g, opt.Tolerance)
	}
	if err := geometry.ValidateMulti(g); err != nil {
		repaired := geometry.Repair(g)
		if rerr := geometry.ValidateMulti(repaired); rerr != nil {
			return fp, eris.Wrapf(model.ErrInvalidGeometry, "footprint: cluster %d in %s: %v", fp.ClusterID, fp.Period, err)
		}
		g = repaired
	}
	fp.Geom = g
	return fp, nil
}

// SimplifyAll simplifies every footprint, dropping and reporting those that
// cannot be made valid.
func SimplifyAll(fps []model.Footprint, opt SimplifyOptions) ([]model.Footprint, []model.DroppedFeature) {
	out := make([]model.Footprint, 0, len(fps))
	var dropped []model.DroppedFeature
	for _, fp := range fps {
		s, err := Simplify(fp, opt)
		if err != nil {
			zap.L().Warn("footprint: dropping invalid footprint",
				zap.String("period", fp.Period),
				zap.Int("cluster_id", fp.ClusterID),
				zap.Error(err),
			)
			dropped = append(dropped, model.DroppedFeature{
				Stage:  model.StageSimplify,
				Period: fp.Period,
				ID:     int64(fp.ClusterID),
				Reason: err.Error(),
			})
			continue
		}
		out = append(out, s)
	}
	return out, dropped
}

func thin(m geometry.MultiPolygon, tol float64) geometry.MultiPolygon {
	s := simplify.DouglasPeucker(tol).MultiPolygon(toOrb(m))
	return fromOrb(s)
}

func toOrb(m geometry.MultiPolygon) orb.MultiPolygon {
	out := make(orb.MultiPolygon, len(m))
	for i, p := range m {
		poly := make(orb.Polygon, len(p))
		for j, r := range p {
			ring := make(orb.Ring, 0, len(r)+1)
			for _, pt := range r {
				ring = append(ring, orb.Point{pt.X, pt.Y})
			}
			if len(r) > 0 {
				ring = append(ring, orb.Point{r[0].X, r[0].Y})
			}
			poly[j] = ring
		}
		out[i] = poly
	}
	return out
}

func fromOrb(m orb.MultiPolygon) geometry.MultiPolygon {
	out := make(geometry.MultiPolygon, 0, len(m))
	for _, p := range m {
		poly := make(geometry.Polygon, 0, len(p))
		for j, r := range p {
			ring := make(geometry.Ring, 0, len(r))
			for _, pt := range r {
				ring = append(ring, geometry.Point{X: pt[0], Y: pt[1]})
			}
			ring = ring.Clean()
			if len(ring) < 3 {
				if j == 0 {
					break
				}
				continue
			}
			poly = append(poly, ring)
		}
		if len(poly) > 0 {
			out = append(out, poly)
		}
	}
	return out
}
