package adbscan

import (
	"math"

	"github.com/sells-group/hotspot-cli/internal/geometry"
)

type cellKey struct{ x, y int64 }

// grid buckets point indices into square cells of side eps so that every
// eps-neighbor of a point lies in the 3×3 block around its cell.
type grid struct {
	eps   float64
	pts   []geometry.Point
	cells map[cellKey][]int
}

func newGrid(pts []geometry.Point, eps float64, members []int) *grid {
	g := &grid{eps: eps, pts: pts, cells: make(map[cellKey][]int, len(members))}
	for _, i := range members {
		k := g.key(pts[i])
		g.cells[k] = append(g.cells[k], i)
	}
	return g
}

func (g *grid) key(p geometry.Point) cellKey {
	return cellKey{int64(math.Floor(p.X / g.eps)), int64(math.Floor(p.Y / g.eps))}
}

// neighbors appends to buf the indexed points within eps of p, excluding
// self, in cell order.
func (g *grid) neighbors(p geometry.Point, self int, buf []int) []int {
	k := g.key(p)
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for _, j := range g.cells[cellKey{k.x + dx, k.y + dy}] {
				if j != self && p.Dist(g.pts[j]) <= g.eps {
					buf = append(buf, j)
				}
			}
		}
	}
	return buf
}

// nearest returns the indexed point closest to p within eps, preferring the
// lowest index on equal distance, or -1.
func (g *grid) nearest(p geometry.Point) int {
	k := g.key(p)
	best, bestD := -1, math.Inf(1)
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for _, j := range g.cells[cellKey{k.x + dx, k.y + dy}] {
				d := p.Dist(g.pts[j])
				if d > g.eps {
					continue
				}
				if d < bestD || (d == bestD && j < best) {
					best, bestD = j, d
				}
			}
		}
	}
	return best
}
