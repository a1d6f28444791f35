package geometry

import (
	"sort"

	"github.com/rotisserie/eris"
)

// ErrInvalid marks geometry that fails validation.
var ErrInvalid = eris.New("geometry: invalid polygon")

type ringEdge struct {
	ring, idx int
	a, b      Point
}

// Validate checks that every ring is closed over at least three distinct
// finite vertices with non-zero area, that holes lie inside the shell, and
// that no two edges cross or overlap. Rings may touch at single points.
func Validate(p Polygon) error {
	if len(p) == 0 {
		return eris.Wrap(ErrInvalid, "empty polygon")
	}
	var edges []ringEdge
	sizes := make([]int, len(p))
	for ri, r := range p {
		r = r.Clean()
		if len(r) < 3 {
			return eris.Wrapf(ErrInvalid, "ring %d has fewer than 3 distinct vertices", ri)
		}
		for _, q := range r {
			if !q.Finite() {
				return eris.Wrapf(ErrInvalid, "ring %d has a non-finite vertex", ri)
			}
		}
		if r.Area() == 0 {
			return eris.Wrapf(ErrInvalid, "ring %d has zero area", ri)
		}
		if ri > 0 {
			for _, q := range r {
				if LocateRing(q, p[0]) == Exterior {
					return eris.Wrapf(ErrInvalid, "hole %d lies outside the shell", ri)
				}
			}
		}
		sizes[ri] = len(r)
		for i := range r {
			edges = append(edges, ringEdge{ring: ri, idx: i, a: r[i], b: r[(i+1)%len(r)]})
		}
	}

	sort.SliceStable(edges, func(i, j int) bool {
		return minX(edges[i]) < minX(edges[j])
	})
	for i := range edges {
		ei := edges[i]
		bi := segment{a: ei.a, b: ei.b}.bbox()
		for j := i + 1; j < len(edges); j++ {
			ej := edges[j]
			bj := segment{a: ej.a, b: ej.b}.bbox()
			if bj.MinX > bi.MaxX {
				break
			}
			if !bi.Intersects(bj) {
				continue
			}
			if properCrossing(ei.a, ei.b, ej.a, ej.b) {
				return eris.Wrapf(ErrInvalid, "edges cross near (%g, %g)", ei.a.X, ei.a.Y)
			}
			if collinearOverlap(ei.a, ei.b, ej.a, ej.b) {
				return eris.Wrapf(ErrInvalid, "edges overlap near (%g, %g)", ei.a.X, ei.a.Y)
			}
			if ei.ring == ej.ring && !adjacent(ei.idx, ej.idx, sizes[ei.ring]) && tTouch(ei, ej) {
				return eris.Wrapf(ErrInvalid, "ring %d self-touches near (%g, %g)", ei.ring, ei.a.X, ei.a.Y)
			}
		}
	}
	return nil
}

func minX(e ringEdge) float64 {
	if e.a.X < e.b.X {
		return e.a.X
	}
	return e.b.X
}

func adjacent(i, j, n int) bool {
	return (i+1)%n == j || (j+1)%n == i
}

// tTouch reports an endpoint of one edge lying in the interior of the other.
func tTouch(e, f ringEdge) bool {
	interior := func(p, a, b Point) bool {
		return p != a && p != b && orient(a, b, p) == 0 && PointSegmentDistance(p, a, b) == 0
	}
	return interior(e.a, f.a, f.b) || interior(e.b, f.a, f.b) ||
		interior(f.a, e.a, e.b) || interior(f.b, e.a, e.b)
}

// collinearOverlap reports whether ab and cd are collinear and share more
// than a single point.
func collinearOverlap(a, b, c, d Point) bool {
	if orient(a, b, c) != 0 || orient(a, b, d) != 0 {
		return false
	}
	l := segParam(a, b, b)
	if l == 0 {
		return false
	}
	tc, td := segParam(a, b, c), segParam(a, b, d)
	lo, hi := tc, td
	if lo > hi {
		lo, hi = hi, lo
	}
	start, end := lo, hi
	if start < 0 {
		start = 0
	}
	if end > l {
		end = l
	}
	return end > start
}

// ValidateMulti validates every polygon of m.
func ValidateMulti(m MultiPolygon) error {
	if len(m) == 0 {
		return eris.Wrap(ErrInvalid, "empty multipolygon")
	}
	for i, p := range m {
		if err := Validate(p); err != nil {
			return eris.Wrapf(err, "polygon %d", i)
		}
	}
	return nil
}

// Repair rebuilds m from the arrangement of its own rings, resolving
// self-intersections under the even-odd rule.
func Repair(m MultiPolygon) MultiPolygon {
	if len(m) == 0 {
		return nil
	}
	return Overlay([]MultiPolygon{m}, anyCovered)
}
