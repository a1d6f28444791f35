package geometry

import (
	"math"
	"sort"
)

// orient returns twice the signed area of triangle abc: positive when c lies to
// the left of the directed line ab.
func orient(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

func sortPoints(ps []Point) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].X != ps[j].X {
			return ps[i].X < ps[j].X
		}
		return ps[i].Y < ps[j].Y
	})
}

// PointSegmentDistance returns the distance from p to the closed segment ab.
func PointSegmentDistance(p, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return p.Dist(a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return p.Dist(Point{X: a.X + t*dx, Y: a.Y + t*dy})
}

// SegmentsTouch reports whether the closed segments ab and cd come within tol
// of each other.
func SegmentsTouch(a, b, c, d Point, tol float64) bool {
	if properCrossing(a, b, c, d) {
		return true
	}
	return PointSegmentDistance(a, c, d) <= tol ||
		PointSegmentDistance(b, c, d) <= tol ||
		PointSegmentDistance(c, a, b) <= tol ||
		PointSegmentDistance(d, a, b) <= tol
}

// properCrossing reports whether ab and cd cross at a single point interior to
// both segments.
func properCrossing(a, b, c, d Point) bool {
	d1 := orient(c, d, a)
	d2 := orient(c, d, b)
	d3 := orient(a, b, c)
	d4 := orient(a, b, d)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

// crossingPoint returns the intersection of the supporting lines of ab and cd.
// Callers must have established that the segments properly cross.
func crossingPoint(a, b, c, d Point) Point {
	d1 := orient(c, d, a)
	d2 := orient(c, d, b)
	t := d1 / (d1 - d2)
	return Point{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y)}
}

// splitPoints returns the points at which segment ab must be split so that it
// meets cd only at vertices: proper crossings and endpoints of cd lying on ab.
func splitPoints(a, b, c, d Point, tol float64) []Point {
	var out []Point
	if properCrossing(a, b, c, d) {
		p := crossingPoint(a, b, c, d)
		// Near-parallel crossings can drift past the ends; skip those, the
		// endpoint checks below cover them.
		if PointSegmentDistance(p, a, b) <= tol && PointSegmentDistance(p, c, d) <= tol {
			out = append(out, p)
		}
	}
	if PointSegmentDistance(c, a, b) <= tol {
		out = append(out, c)
	}
	if PointSegmentDistance(d, a, b) <= tol {
		out = append(out, d)
	}
	return out
}

// segParam returns the scalar projection of p onto ab, used to order split
// points along a segment.
func segParam(a, b, p Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	return (p.X-a.X)*dx + (p.Y-a.Y)*dy
}
