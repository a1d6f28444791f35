package geometry

import (
	"math"
	"sort"
)

// arrangement is a half-edge graph over noded segments. Half-edge e and e^1
// are twins; e runs from orig[e] to orig[e^1].
type arrangement struct {
	pts  []Point
	orig []int
	out  [][]int // outgoing half-edges per vertex, counter-clockwise by angle
	pos  []int   // index of each half-edge within out[orig[e]]
	sn   snapper
}

func newArrangement(segs []segment, sn snapper) *arrangement {
	ar := &arrangement{sn: sn}
	index := make(map[gridKey]int)
	vertex := func(p Point) int {
		k := sn.key(p)
		if v, ok := index[k]; ok {
			return v
		}
		v := len(ar.pts)
		index[k] = v
		ar.pts = append(ar.pts, sn.snap(p))
		ar.out = append(ar.out, nil)
		return v
	}

	for _, s := range segs {
		u, v := vertex(s.a), vertex(s.b)
		if u == v {
			continue
		}
		e := len(ar.orig)
		ar.orig = append(ar.orig, u, v)
		ar.out[u] = append(ar.out[u], e)
		ar.out[v] = append(ar.out[v], e+1)
	}

	ar.pos = make([]int, len(ar.orig))
	for v, list := range ar.out {
		origin := ar.pts[v]
		angle := func(e int) float64 {
			d := ar.pts[ar.dest(e)]
			return math.Atan2(d.Y-origin.Y, d.X-origin.X)
		}
		sort.SliceStable(list, func(i, j int) bool {
			ai, aj := angle(list[i]), angle(list[j])
			if ai != aj {
				return ai < aj
			}
			return ar.dest(list[i]) < ar.dest(list[j])
		})
		for i, e := range list {
			ar.pos[e] = i
		}
	}
	return ar
}

func (ar *arrangement) numHalfEdges() int { return len(ar.orig) }

func (ar *arrangement) dest(e int) int { return ar.orig[e^1] }

// next returns the half-edge following e around the face on e's left: the
// first outgoing edge clockwise from e's twin at e's destination.
func (ar *arrangement) next(e int) int {
	t := e ^ 1
	list := ar.out[ar.orig[t]]
	i := ar.pos[t] - 1
	if i < 0 {
		i = len(list) - 1
	}
	return list[i]
}

// nextWhere is next restricted to half-edges accepted by ok. It returns -1
// when no accepted edge leaves the destination vertex.
func (ar *arrangement) nextWhere(e int, ok func(int) bool) int {
	t := e ^ 1
	list := ar.out[ar.orig[t]]
	n := len(list)
	for k := 1; k <= n; k++ {
		i := ((ar.pos[t]-k)%n + n) % n
		if ok(list[i]) {
			return list[i]
		}
	}
	return -1
}

type cycle struct {
	edges []int
	area  float64
	comp  int
	bbox  BBox
}

func (ar *arrangement) ring(c cycle) Ring {
	r := make(Ring, len(c.edges))
	for i, e := range c.edges {
		r[i] = ar.pts[ar.orig[e]]
	}
	return r
}

// components labels vertices by connected component.
func (ar *arrangement) components() []int {
	uf := newUnionFind(len(ar.pts))
	for e := 0; e < len(ar.orig); e += 2 {
		uf.union(ar.orig[e], ar.orig[e+1])
	}
	comp := make([]int, len(ar.pts))
	for v := range comp {
		comp[v] = uf.find(v)
	}
	return comp
}

// cycles traces every face boundary cycle. cycleOf maps half-edges to cycles.
func (ar *arrangement) cycles() ([]cycle, []int) {
	comp := ar.components()
	cycleOf := make([]int, len(ar.orig))
	for i := range cycleOf {
		cycleOf[i] = -1
	}
	var cs []cycle
	for start := range ar.orig {
		if cycleOf[start] >= 0 {
			continue
		}
		c := cycle{comp: comp[ar.orig[start]], bbox: EmptyBBox()}
		id := len(cs)
		e := start
		for steps := 0; steps <= len(ar.orig); steps++ {
			cycleOf[e] = id
			c.edges = append(c.edges, e)
			c.bbox.Extend(ar.pts[ar.orig[e]])
			e = ar.next(e)
			if e == start || cycleOf[e] >= 0 {
				break
			}
		}
		c.area = ar.ring(c).SignedArea()
		cs = append(cs, c)
	}
	return cs, cycleOf
}

// arrangedFace is a bounded face: a counter-clockwise shell cycle plus the
// clockwise cycles of components nested directly inside it.
type arrangedFace struct {
	shell    int
	holes    []int
	interior Point
	ok       bool
}

// faces groups cycles into bounded faces. faceOf maps every cycle to the face
// on its left, or -1 for the unbounded face.
func (ar *arrangement) faces(cs []cycle) ([]arrangedFace, []int) {
	faceOf := make([]int, len(cs))
	var fs []arrangedFace
	var shells []int
	for i, c := range cs {
		faceOf[i] = -1
		if c.area > 0 {
			faceOf[i] = len(fs)
			fs = append(fs, arrangedFace{shell: i})
			shells = append(shells, i)
		}
	}

	for i, c := range cs {
		if c.area > 0 {
			continue
		}
		start := ar.pts[ar.orig[c.edges[0]]]
		best, bestArea := -1, math.Inf(1)
		for _, s := range shells {
			sc := cs[s]
			if sc.comp == c.comp || sc.area >= bestArea || !sc.bbox.Contains(start) {
				continue
			}
			if crossings(start, ar.ring(sc))%2 == 1 {
				best, bestArea = s, sc.area
			}
		}
		if best >= 0 {
			f := faceOf[best]
			faceOf[i] = f
			fs[f].holes = append(fs[f].holes, i)
		}
	}

	for i := range fs {
		rings := []Ring{ar.ring(cs[fs[i].shell])}
		for _, h := range fs[i].holes {
			rings = append(rings, ar.ring(cs[h]))
		}
		fs[i].interior, fs[i].ok = interiorPoint(rings)
	}
	return fs, faceOf
}

// interiorPoint returns a point strictly inside the region bounded by rings
// under the even-odd rule. The scanline runs through the middle of the widest
// band free of vertices, so it never meets a vertex.
func interiorPoint(rings []Ring) (Point, bool) {
	var ys []float64
	for _, r := range rings {
		for _, p := range r {
			ys = append(ys, p.Y)
		}
	}
	sort.Float64s(ys)
	bestGap, y := 0.0, 0.0
	for i := 1; i < len(ys); i++ {
		if g := ys[i] - ys[i-1]; g > bestGap {
			bestGap, y = g, (ys[i]+ys[i-1])/2
		}
	}
	if bestGap == 0 {
		return Point{}, false
	}

	var xs []float64
	for _, r := range rings {
		n := len(r)
		for i := 0; i < n; i++ {
			a, b := r[i], r[(i+1)%n]
			if (a.Y > y) == (b.Y > y) {
				continue
			}
			xs = append(xs, a.X+(y-a.Y)*(b.X-a.X)/(b.Y-a.Y))
		}
	}
	sort.Float64s(xs)
	bestW, x := -1.0, 0.0
	for i := 0; i+1 < len(xs); i += 2 {
		if w := xs[i+1] - xs[i]; w > bestW {
			bestW, x = w, (xs[i]+xs[i+1])/2
		}
	}
	if bestW <= 0 {
		return Point{}, false
	}
	return Point{X: x, Y: y}, true
}

// InteriorPoint returns a point guaranteed to lie strictly inside the
// polygon, or false when the polygon has no area.
func InteriorPoint(p Polygon) (Point, bool) {
	return interiorPoint(p)
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		u.parent[rb] = ra
	} else {
		u.parent[ra] = rb
	}
}
