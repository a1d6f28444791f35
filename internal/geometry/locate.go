package geometry

import "math"

// Location classifies a point against an areal geometry.
type Location int

// Point locations.
const (
	Exterior Location = iota
	Boundary
	Interior
)

func boundaryTol(p Point) float64 {
	return 1e-10 * math.Max(1, math.Abs(p.X)+math.Abs(p.Y))
}

// crossings counts the ring edges crossed by the ray from p towards +X.
func crossings(p Point, r Ring) int {
	n := len(r)
	c := 0
	for i := 0; i < n; i++ {
		a, b := r[i], r[(i+1)%n]
		if (a.Y > p.Y) == (b.Y > p.Y) {
			continue
		}
		x := a.X + (p.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
		if p.X < x {
			c++
		}
	}
	return c
}

func onRing(p Point, r Ring, tol float64) bool {
	n := len(r)
	for i := 0; i < n; i++ {
		if PointSegmentDistance(p, r[i], r[(i+1)%n]) <= tol {
			return true
		}
	}
	return false
}

// LocateRing classifies p against the area enclosed by r.
func LocateRing(p Point, r Ring) Location {
	if len(r) < 3 {
		return Exterior
	}
	if !r.BBox().Expand(boundaryTol(p)).Contains(p) {
		return Exterior
	}
	if onRing(p, r, boundaryTol(p)) {
		return Boundary
	}
	if crossings(p, r)%2 == 1 {
		return Interior
	}
	return Exterior
}

// Locate classifies p against the polygon, honoring holes.
func (poly Polygon) Locate(p Point) Location {
	if len(poly) == 0 {
		return Exterior
	}
	loc := LocateRing(p, poly[0])
	if loc != Interior {
		return loc
	}
	for _, h := range poly[1:] {
		switch LocateRing(p, h) {
		case Interior:
			return Exterior
		case Boundary:
			return Boundary
		}
	}
	return Interior
}

// Locate classifies p against the multipolygon. Interior wins over boundary
// when parts overlap.
func (m MultiPolygon) Locate(p Point) Location {
	best := Exterior
	for _, poly := range m {
		switch poly.Locate(p) {
		case Interior:
			return Interior
		case Boundary:
			best = Boundary
		}
	}
	return best
}

// Contains reports whether p lies in the interior or on the boundary.
func (m MultiPolygon) Contains(p Point) bool {
	return m.Locate(p) != Exterior
}

// coversEvenOdd reports whether any polygon of m contains p under the
// even-odd rule over its rings. It is used to classify arrangement faces,
// whose interior points never lie on an input boundary.
func coversEvenOdd(p Point, m MultiPolygon) bool {
	for _, poly := range m {
		if len(poly) == 0 || !poly.BBox().Contains(p) {
			continue
		}
		c := 0
		for _, r := range poly {
			c += crossings(p, r)
		}
		if c%2 == 1 {
			return true
		}
	}
	return false
}
