package geometry

import (
	"math"
	"sort"
)

// maxNodingRounds bounds the re-noding passes needed after snapping moves
// split points by up to half a grid cell.
const maxNodingRounds = 4

type segment struct {
	a, b Point
}

func (s segment) bbox() BBox {
	return BBox{
		MinX: math.Min(s.a.X, s.b.X), MinY: math.Min(s.a.Y, s.b.Y),
		MaxX: math.Max(s.a.X, s.b.X), MaxY: math.Max(s.a.Y, s.b.Y),
	}
}

type gridKey [2]int64

// snapper rounds coordinates onto a fixed grid so that independently computed
// intersection points that coincide collapse into one vertex.
type snapper struct {
	grid float64
}

func newSnapper(b BBox) snapper {
	m := 1.0
	if !b.Empty() {
		m = math.Max(m, math.Max(
			math.Max(math.Abs(b.MinX), math.Abs(b.MaxX)),
			math.Max(math.Abs(b.MinY), math.Abs(b.MaxY)),
		))
	}
	return snapper{grid: m * 1e-10}
}

func (s snapper) key(p Point) gridKey {
	return gridKey{int64(math.Round(p.X / s.grid)), int64(math.Round(p.Y / s.grid))}
}

func (s snapper) snap(p Point) Point {
	k := s.key(p)
	return Point{X: float64(k[0]) * s.grid, Y: float64(k[1]) * s.grid}
}

// ringSegments emits the snapped edges of every ring in the inputs.
func ringSegments(inputs []MultiPolygon, sn snapper) []segment {
	var segs []segment
	for _, m := range inputs {
		for _, r := range m.Rings() {
			n := len(r)
			for i := 0; i < n; i++ {
				segs = append(segs, segment{a: sn.snap(r[i]), b: sn.snap(r[(i+1)%n])})
			}
		}
	}
	return segs
}

// dedupeSegments drops zero-length and repeated undirected segments while
// preserving first-occurrence order.
func dedupeSegments(segs []segment, sn snapper) []segment {
	seen := make(map[[4]int64]bool, len(segs))
	out := segs[:0:0]
	for _, s := range segs {
		ka, kb := sn.key(s.a), sn.key(s.b)
		if ka == kb {
			continue
		}
		if kb[0] < ka[0] || (kb[0] == ka[0] && kb[1] < ka[1]) {
			ka, kb = kb, ka
		}
		k := [4]int64{ka[0], ka[1], kb[0], kb[1]}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}

// node splits segments at their mutual intersections until every pair of
// segments meets only at shared endpoints.
func node(segs []segment, sn snapper) []segment {
	cur := dedupeSegments(segs, sn)
	for round := 0; round < maxNodingRounds; round++ {
		next, split := nodeOnce(cur, sn)
		cur = next
		if !split {
			break
		}
	}
	return cur
}

func nodeOnce(segs []segment, sn snapper) ([]segment, bool) {
	n := len(segs)
	boxes := make([]BBox, n)
	order := make([]int, n)
	for i, s := range segs {
		boxes[i] = s.bbox().Expand(sn.grid)
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return boxes[order[i]].MinX < boxes[order[j]].MinX
	})

	splits := make([][]Point, n)
	for oi, i := range order {
		for _, j := range order[oi+1:] {
			if boxes[j].MinX > boxes[i].MaxX {
				break
			}
			if !boxes[i].Intersects(boxes[j]) {
				continue
			}
			si, sj := segs[i], segs[j]
			splits[i] = append(splits[i], splitPoints(si.a, si.b, sj.a, sj.b, sn.grid)...)
			splits[j] = append(splits[j], splitPoints(sj.a, sj.b, si.a, si.b, sn.grid)...)
		}
	}

	out := make([]segment, 0, n)
	split := false
	for i, s := range segs {
		if len(splits[i]) == 0 {
			out = append(out, s)
			continue
		}
		pts := make([]Point, 0, len(splits[i])+2)
		pts = append(pts, s.a)
		for _, p := range splits[i] {
			pts = append(pts, sn.snap(p))
		}
		pts = append(pts, s.b)
		sort.SliceStable(pts, func(x, y int) bool {
			return segParam(s.a, s.b, pts[x]) < segParam(s.a, s.b, pts[y])
		})
		prev := pts[0]
		pieces := 0
		for _, p := range pts[1:] {
			if sn.key(p) == sn.key(prev) {
				continue
			}
			out = append(out, segment{a: prev, b: p})
			prev = p
			pieces++
		}
		if pieces > 1 {
			split = true
		}
	}
	return dedupeSegments(out, sn), split
}
