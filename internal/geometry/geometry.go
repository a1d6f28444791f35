// Package geometry implements the planar geometry kernel used by the analysis
// engine: rings and polygons in projected coordinates, segment predicates,
// noding, a half-edge arrangement, boolean overlay and buffering.
package geometry

import "math"

// Point is a planar coordinate.
type Point struct {
	X, Y float64
}

// Finite reports whether both coordinates are finite numbers.
func (p Point) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Dist returns the euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Ring is an open ring: the closing edge from the last vertex back to the
// first is implicit and the first vertex is not repeated.
type Ring []Point

// Polygon is a shell followed by zero or more holes.
type Polygon []Ring

// MultiPolygon is a set of polygons.
type MultiPolygon []Polygon

// BBox is an axis-aligned bounding box.
type BBox struct {
	MinX, MinY, MaxX, MaxY float64
}

// EmptyBBox returns a box that contains nothing and grows on Extend.
func EmptyBBox() BBox {
	return BBox{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
}

// Empty reports whether no point was ever added to the box.
func (b BBox) Empty() bool { return b.MinX > b.MaxX || b.MinY > b.MaxY }

// Extend grows the box to include p.
func (b *BBox) Extend(p Point) {
	b.MinX = math.Min(b.MinX, p.X)
	b.MinY = math.Min(b.MinY, p.Y)
	b.MaxX = math.Max(b.MaxX, p.X)
	b.MaxY = math.Max(b.MaxY, p.Y)
}

// Union returns the smallest box containing both b and o.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		MinX: math.Min(b.MinX, o.MinX), MinY: math.Min(b.MinY, o.MinY),
		MaxX: math.Max(b.MaxX, o.MaxX), MaxY: math.Max(b.MaxY, o.MaxY),
	}
}

// Expand grows the box by d on every side.
func (b BBox) Expand(d float64) BBox {
	return BBox{MinX: b.MinX - d, MinY: b.MinY - d, MaxX: b.MaxX + d, MaxY: b.MaxY + d}
}

// Intersects reports whether the two boxes share any point.
func (b BBox) Intersects(o BBox) bool {
	return b.MinX <= o.MaxX && o.MinX <= b.MaxX && b.MinY <= o.MaxY && o.MinY <= b.MaxY
}

// Contains reports whether p lies in the closed box.
func (b BBox) Contains(p Point) bool {
	return p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
}

// SignedArea returns the shoelace area, positive for counter-clockwise rings.
func (r Ring) SignedArea() float64 {
	n := len(r)
	if n < 3 {
		return 0
	}
	var s float64
	for i := 0; i < n; i++ {
		a, b := r[i], r[(i+1)%n]
		s += a.X*b.Y - b.X*a.Y
	}
	return s / 2
}

// Area returns the absolute ring area.
func (r Ring) Area() float64 { return math.Abs(r.SignedArea()) }

// Perimeter returns the length of the closed ring.
func (r Ring) Perimeter() float64 {
	var l float64
	for i := range r {
		l += r[i].Dist(r[(i+1)%len(r)])
	}
	return l
}

// BBox returns the ring's bounding box.
func (r Ring) BBox() BBox {
	b := EmptyBBox()
	for _, p := range r {
		b.Extend(p)
	}
	return b
}

// Reverse returns the ring with opposite orientation.
func (r Ring) Reverse() Ring {
	out := make(Ring, len(r))
	for i, p := range r {
		out[len(r)-1-i] = p
	}
	return out
}

// Clean drops a repeated closing vertex and consecutive duplicates.
func (r Ring) Clean() Ring {
	out := make(Ring, 0, len(r))
	for _, p := range r {
		if len(out) > 0 && out[len(out)-1] == p {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && out[0] == out[len(out)-1] {
		out = out[:len(out)-1]
	}
	return out
}

// Area returns the shell area minus hole areas.
func (p Polygon) Area() float64 {
	if len(p) == 0 {
		return 0
	}
	a := p[0].Area()
	for _, h := range p[1:] {
		a -= h.Area()
	}
	return a
}

// BBox returns the bounding box of the polygon shell.
func (p Polygon) BBox() BBox {
	if len(p) == 0 {
		return EmptyBBox()
	}
	return p[0].BBox()
}

// Normalize orients the shell counter-clockwise and holes clockwise.
func (p Polygon) Normalize() Polygon {
	out := make(Polygon, len(p))
	for i, r := range p {
		r = r.Clean()
		ccw := r.SignedArea() > 0
		if (i == 0) != ccw {
			r = r.Reverse()
		}
		out[i] = r
	}
	return out
}

// NumVertices returns the vertex count over all rings.
func (p Polygon) NumVertices() int {
	n := 0
	for _, r := range p {
		n += len(r)
	}
	return n
}

// Area returns the summed polygon area.
func (m MultiPolygon) Area() float64 {
	var a float64
	for _, p := range m {
		a += p.Area()
	}
	return a
}

// BBox returns the bounding box of all polygons.
func (m MultiPolygon) BBox() BBox {
	b := EmptyBBox()
	for _, p := range m {
		b = b.Union(p.BBox())
	}
	return b
}

// Rings returns every ring of every polygon.
func (m MultiPolygon) Rings() []Ring {
	var out []Ring
	for _, p := range m {
		out = append(out, p...)
	}
	return out
}

// Centroid returns the area-weighted centroid of the polygon. For degenerate
// polygons it falls back to the vertex average of the shell.
func Centroid(p Polygon) Point {
	var cx, cy, area float64
	for i, r := range p {
		sign := 1.0
		if i > 0 {
			sign = -1.0
		}
		ra := r.SignedArea()
		if ra == 0 {
			continue
		}
		rx, ry := ringCentroidSums(r)
		// Hole contributions subtract regardless of stored orientation.
		w := sign * math.Abs(ra) / ra
		cx += w * rx
		cy += w * ry
		area += sign * math.Abs(ra)
	}
	if area == 0 || len(p) == 0 {
		return vertexMean(p)
	}
	return Point{X: cx / (6 * area), Y: cy / (6 * area)}
}

func ringCentroidSums(r Ring) (float64, float64) {
	var sx, sy float64
	n := len(r)
	for i := 0; i < n; i++ {
		a, b := r[i], r[(i+1)%n]
		cross := a.X*b.Y - b.X*a.Y
		sx += (a.X + b.X) * cross
		sy += (a.Y + b.Y) * cross
	}
	return sx, sy
}

func vertexMean(p Polygon) Point {
	if len(p) == 0 || len(p[0]) == 0 {
		return Point{}
	}
	var sx, sy float64
	for _, q := range p[0] {
		sx += q.X
		sy += q.Y
	}
	n := float64(len(p[0]))
	return Point{X: sx / n, Y: sy / n}
}

// Disk returns a regular counter-clockwise polygon with n vertices inscribed in
// the circle of radius r around c.
func Disk(c Point, r float64, n int) Ring {
	if n < 3 {
		n = 3
	}
	ring := make(Ring, n)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		ring[i] = Point{X: c.X + r*math.Cos(a), Y: c.Y + r*math.Sin(a)}
	}
	return ring
}

// ConvexHull returns the counter-clockwise convex hull of pts using the
// monotone chain algorithm. Fewer than three distinct points yield nil.
func ConvexHull(pts []Point) Ring {
	ps := make([]Point, len(pts))
	copy(ps, pts)
	sortPoints(ps)
	uniq := ps[:0]
	for _, p := range ps {
		if len(uniq) > 0 && uniq[len(uniq)-1] == p {
			continue
		}
		uniq = append(uniq, p)
	}
	ps = uniq
	if len(ps) < 3 {
		return nil
	}
	hull := make(Ring, 0, 2*len(ps))
	for _, p := range ps {
		for len(hull) >= 2 && orient(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(ps) - 2; i >= 0; i-- {
		p := ps[i]
		for len(hull) >= lower && orient(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	hull = hull[:len(hull)-1]
	if len(hull) < 3 {
		return nil
	}
	return hull
}
