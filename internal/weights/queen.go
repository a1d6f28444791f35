package weights

import (
	"context"
	"runtime"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/hotspot-cli/internal/geometry"
	"github.com/sells-group/hotspot-cli/internal/model"
)

// DefaultTolerance is the contact distance below which two boundaries touch.
const DefaultTolerance = 1e-9

type edge struct {
	a, b geometry.Point
	box  geometry.BBox
}

type shape struct {
	pos   int
	box   geometry.BBox
	edges []edge
}

func shapeOf(pos int, m geometry.MultiPolygon) (shape, error) {
	s := shape{pos: pos, box: geometry.EmptyBBox()}
	for _, r := range m.Rings() {
		r = r.Clean()
		n := len(r)
		for i := 0; i < n; i++ {
			a, b := r[i], r[(i+1)%n]
			if !a.Finite() || !b.Finite() {
				return shape{}, eris.Wrap(geometry.ErrInvalid, "non-finite vertex")
			}
			e := edge{a: a, b: b, box: geometry.EmptyBBox()}
			e.box.Extend(a)
			e.box.Extend(b)
			s.edges = append(s.edges, e)
			s.box = s.box.Union(e.box)
		}
	}
	return s, nil
}

// touches reports whether any boundary edge of s lies within tol of t.
func touches(s, t shape, tol float64) bool {
	overlap := s.box.Expand(tol)
	if !overlap.Intersects(t.box) {
		return false
	}
	var cand []edge
	for _, e := range t.edges {
		if e.box.Intersects(overlap) {
			cand = append(cand, e)
		}
	}
	for _, e := range s.edges {
		eb := e.box.Expand(tol)
		for _, f := range cand {
			if eb.Intersects(f.box) && geometry.SegmentsTouch(e.a, e.b, f.a, f.b, tol) {
				return true
			}
		}
	}
	return false
}

// Queen builds the queen contiguity graph of units: two units are neighbors
// when their boundaries share at least one point within tol. Any part of a
// multi-part unit counts. Units without geometry become islands.
func Queen(ctx context.Context, units []model.ArealUnit, tol float64, workers int) (*Graph, error) {
	if tol < 0 {
		return nil, eris.New("weights: negative tolerance")
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	log := zap.L().With(zap.String("component", "weights"))

	ids := make([]int64, len(units))
	seen := make(map[int64]bool, len(units))
	shapes := make([]shape, 0, len(units))
	for i, u := range units {
		if seen[u.ID] {
			return nil, eris.Errorf("weights: duplicate unit id %d", u.ID)
		}
		seen[u.ID] = true
		ids[i] = u.ID
		s, err := shapeOf(i, u.Geom)
		if err != nil {
			return nil, eris.Wrapf(err, "weights: unit %d", u.ID)
		}
		if len(s.edges) > 0 {
			shapes = append(shapes, s)
		}
	}
	sort.SliceStable(shapes, func(i, j int) bool { return shapes[i].box.MinX < shapes[j].box.MinX })

	// found[k] lists sweep partners of shapes[k] further along the sweep.
	found := make([][]int, len(shapes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for k := range shapes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s := shapes[k]
			maxX := s.box.MaxX + tol
			for l := k + 1; l < len(shapes); l++ {
				t := shapes[l]
				if t.box.MinX > maxX {
					break
				}
				if touches(s, t, tol) {
					found[k] = append(found[k], t.pos)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "weights: queen contiguity")
	}

	graph := newGraph(ids)
	for k, list := range found {
		for _, j := range list {
			graph.link(shapes[k].pos, j)
		}
	}
	graph.finish()

	islands := graph.Islands()
	if len(islands) > 0 {
		log.Debug("weights: units without neighbors", zap.Int("count", len(islands)), zap.Int64s("ids", islands))
	}
	log.Debug("weights: queen graph built", zap.Int("units", graph.Len()), zap.Int("islands", len(islands)))
	return graph, nil
}
