package geometry

import "math"

// Face is a bounded face of the arrangement formed by the boundaries of a set
// of input geometries.
type Face struct {
	Polygon  Polygon
	Interior Point
	// Cover[k] reports whether input k contains the face.
	Cover []bool
}

// Count returns the number of inputs covering the face.
func (f Face) Count() int {
	n := 0
	for _, c := range f.Cover {
		if c {
			n++
		}
	}
	return n
}

type overlay struct {
	ar      *arrangement
	cycles  []cycle
	cycleOf []int
	faces   []arrangedFace
	faceOf  []int // per cycle
	cover   [][]bool
}

func inputsBBox(inputs []MultiPolygon) BBox {
	b := EmptyBBox()
	for _, m := range inputs {
		b = b.Union(m.BBox())
	}
	return b
}

func newOverlay(inputs []MultiPolygon) *overlay {
	sn := newSnapper(inputsBBox(inputs))
	segs := node(ringSegments(inputs, sn), sn)
	ar := newArrangement(segs, sn)
	cs, cycleOf := ar.cycles()
	fs, faceOf := ar.faces(cs)

	boxes := make([]BBox, len(inputs))
	for k, m := range inputs {
		boxes[k] = m.BBox()
	}
	cover := make([][]bool, len(fs))
	for i, f := range fs {
		cover[i] = make([]bool, len(inputs))
		if !f.ok {
			continue
		}
		for k, m := range inputs {
			if boxes[k].Contains(f.interior) && coversEvenOdd(f.interior, m) {
				cover[i][k] = true
			}
		}
	}
	return &overlay{ar: ar, cycles: cs, cycleOf: cycleOf, faces: fs, faceOf: faceOf, cover: cover}
}

// leftFace returns the bounded face on the left of half-edge e, or -1.
func (o *overlay) leftFace(e int) int {
	return o.faceOf[o.cycleOf[e]]
}

func (o *overlay) facePolygon(f arrangedFace) Polygon {
	w := faceCells * o.ar.sn.grid
	p := Polygon{dropCollinear(o.ar.ring(o.cycles[f.shell]))}
	for _, h := range f.holes {
		r := dropCollinear(o.ar.ring(o.cycles[h]))
		if len(r) >= 3 && !narrow(r, w) {
			p = append(p, r)
		}
	}
	return p
}

// Rings narrower than these many grid cells are snapping debris. Faces use a
// tighter bound than traced boundaries so that partitions keep thin lenses.
const (
	faceCells   = 2
	sliverCells = 64
)

// narrow reports whether the mean width of r, 2A/P, is below w.
func narrow(r Ring, w float64) bool {
	p := r.Perimeter()
	return p == 0 || 2*r.Area() < w*p
}

// Arrange returns the bounded faces of the arrangement of all input
// boundaries, each tagged with the inputs that contain it. Faces not covered
// by any input are included; callers filter on Cover.
func Arrange(inputs []MultiPolygon) []Face {
	if len(inputs) == 0 {
		return nil
	}
	o := newOverlay(inputs)
	out := make([]Face, 0, len(o.faces))
	for i, f := range o.faces {
		if !f.ok {
			continue
		}
		poly := o.facePolygon(f)
		if len(poly[0]) < 3 || narrow(poly[0], faceCells*o.ar.sn.grid) || poly.Area() <= 0 {
			continue
		}
		out = append(out, Face{Polygon: poly, Interior: f.interior, Cover: o.cover[i]})
	}
	return out
}

// Overlay computes the arrangement of the input boundaries, keeps the faces
// whose coverage is accepted by keep and returns the merged boundary of the
// kept region.
func Overlay(inputs []MultiPolygon, keep func(cover []bool) bool) MultiPolygon {
	if len(inputs) == 0 {
		return nil
	}
	o := newOverlay(inputs)
	kept := make([]bool, len(o.faces))
	for i, f := range o.faces {
		kept[i] = f.ok && keep(o.cover[i])
	}
	return o.trace(kept)
}

func (o *overlay) trace(kept []bool) MultiPolygon {
	ar := o.ar
	in := func(e int) bool {
		f := o.leftFace(e)
		return f >= 0 && kept[f]
	}
	boundary := func(e int) bool { return in(e) && !in(e^1) }

	// Kept faces sharing an edge belong to one output polygon.
	uf := newUnionFind(len(o.faces))
	for e := 0; e < ar.numHalfEdges(); e += 2 {
		if in(e) && in(e^1) {
			uf.union(o.leftFace(e), o.leftFace(e^1))
		}
	}

	type region struct {
		shells []Ring
		holes  []Ring
	}
	var order []int
	regions := make(map[int]*region)
	visited := make([]bool, ar.numHalfEdges())
	for start := 0; start < ar.numHalfEdges(); start++ {
		if visited[start] || !boundary(start) {
			continue
		}
		var ring Ring
		e := start
		closed := false
		for steps := 0; steps <= ar.numHalfEdges(); steps++ {
			visited[e] = true
			ring = append(ring, ar.pts[ar.orig[e]])
			e = ar.nextWhere(e, boundary)
			if e < 0 {
				break
			}
			if e == start {
				closed = true
				break
			}
			if visited[e] {
				break
			}
		}
		if !closed {
			continue
		}
		ring = dropCollinear(ring)
		a := ring.SignedArea()
		if len(ring) < 3 || narrow(ring, sliverCells*ar.sn.grid) {
			continue
		}
		id := uf.find(o.leftFace(start))
		r, ok := regions[id]
		if !ok {
			r = &region{}
			regions[id] = r
			order = append(order, id)
		}
		if a > 0 {
			r.shells = append(r.shells, ring)
		} else {
			r.holes = append(r.holes, ring)
		}
	}

	var out MultiPolygon
	for _, id := range order {
		r := regions[id]
		if len(r.shells) == 1 {
			out = append(out, append(Polygon{r.shells[0]}, r.holes...))
			continue
		}
		polys := make([]Polygon, len(r.shells))
		for i, s := range r.shells {
			polys[i] = Polygon{s}
		}
		for _, h := range r.holes {
			best, bestArea := -1, math.Inf(1)
			for i, s := range r.shells {
				if a := s.Area(); a < bestArea && LocateRing(h[0], s) != Exterior {
					best, bestArea = i, a
				}
			}
			if best >= 0 {
				polys[best] = append(polys[best], h)
			}
		}
		out = append(out, polys...)
	}
	return out
}

// dropCollinear removes every vertex exactly collinear with its surviving
// neighbors, zero-width spikes and repeated points included. Removal repeats
// until no such vertex is left, so the enclosed area never changes.
func dropCollinear(r Ring) Ring {
	r = r.Clean()
	n := len(r)
	if n < 4 {
		return r
	}
	prev := make([]int, n)
	next := make([]int, n)
	alive := make([]bool, n)
	queue := make([]int, n)
	for i := range r {
		prev[i], next[i], alive[i], queue[i] = (i+n-1)%n, (i+1)%n, true, i
	}
	left := n
	for len(queue) > 0 && left > 3 {
		i := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if !alive[i] {
			continue
		}
		p, q := prev[i], next[i]
		if orient(r[p], r[i], r[q]) != 0 {
			continue
		}
		alive[i] = false
		left--
		next[p], prev[q] = q, p
		queue = append(queue, p, q)
	}

	start := 0
	for !alive[start] {
		start++
	}
	out := make(Ring, 0, left)
	for i := start; ; {
		out = append(out, r[i])
		i = next[i]
		if i == start {
			break
		}
	}
	return out.Clean()
}

func anyCovered(cover []bool) bool {
	for _, c := range cover {
		if c {
			return true
		}
	}
	return false
}

func allCovered(cover []bool) bool {
	for _, c := range cover {
		if !c {
			return false
		}
	}
	return len(cover) > 0
}

// UnionAll merges parts pairwise, level by level, so that every overlay sees
// two inputs whose inner edges are already dissolved.
func UnionAll(parts []MultiPolygon) MultiPolygon {
	level := make([]MultiPolygon, 0, len(parts))
	for _, m := range parts {
		if len(m) > 0 {
			level = append(level, m)
		}
	}
	switch len(level) {
	case 0:
		return nil
	case 1:
		return Union(level[0])
	}
	for len(level) > 1 {
		next := make([]MultiPolygon, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, Union(level[i], level[i+1]))
		}
		level = next
	}
	return level[0]
}

// Union merges the inputs into non-overlapping polygons.
func Union(inputs ...MultiPolygon) MultiPolygon {
	return Overlay(inputs, anyCovered)
}

// Intersection returns the region covered by every input.
func Intersection(inputs ...MultiPolygon) MultiPolygon {
	return Overlay(inputs, allCovered)
}

// Difference returns the part of a not covered by any of the others.
func Difference(a MultiPolygon, others ...MultiPolygon) MultiPolygon {
	inputs := append([]MultiPolygon{a}, others...)
	return Overlay(inputs, func(cover []bool) bool {
		return cover[0] && !anyCovered(cover[1:])
	})
}
