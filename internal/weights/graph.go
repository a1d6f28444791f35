// Package weights builds spatial contiguity graphs over areal units.
package weights

import "sort"

// Graph is a symmetric adjacency graph over areal units without self loops.
// Units are addressed by their position in the input slice; neighbor lists
// are sorted ascending.
type Graph struct {
	ids   []int64
	index map[int64]int
	nbrs  [][]int
}

func newGraph(ids []int64) *Graph {
	g := &Graph{
		ids:   ids,
		index: make(map[int64]int, len(ids)),
		nbrs:  make([][]int, len(ids)),
	}
	for i, id := range ids {
		g.index[id] = i
	}
	return g
}

// FromAdjacency builds a graph from an explicit id adjacency map. Missing
// reverse edges are added and self loops dropped.
func FromAdjacency(ids []int64, adj map[int64][]int64) *Graph {
	g := newGraph(ids)
	for from, tos := range adj {
		i, ok := g.index[from]
		if !ok {
			continue
		}
		for _, to := range tos {
			if j, ok := g.index[to]; ok && i != j {
				g.link(i, j)
			}
		}
	}
	g.finish()
	return g
}

func (g *Graph) link(i, j int) {
	g.nbrs[i] = append(g.nbrs[i], j)
	g.nbrs[j] = append(g.nbrs[j], i)
}

// finish sorts and deduplicates every neighbor list.
func (g *Graph) finish() {
	for i, list := range g.nbrs {
		sort.Ints(list)
		out := list[:0]
		for k, v := range list {
			if k > 0 && v == list[k-1] {
				continue
			}
			out = append(out, v)
		}
		g.nbrs[i] = out
	}
}

// Len returns the number of units.
func (g *Graph) Len() int { return len(g.ids) }

// IDs returns unit ids in input order.
func (g *Graph) IDs() []int64 { return g.ids }

// Index returns the position of unit id.
func (g *Graph) Index(id int64) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// NeighborIndices returns the neighbor positions of the unit at position i.
func (g *Graph) NeighborIndices(i int) []int { return g.nbrs[i] }

// Neighbors returns the sorted neighbor ids of unit id.
func (g *Graph) Neighbors(id int64) []int64 {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	out := make([]int64, len(g.nbrs[i]))
	for k, j := range g.nbrs[i] {
		out[k] = g.ids[j]
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// Islands returns the ids of units without neighbors.
func (g *Graph) Islands() []int64 {
	var out []int64
	for i, list := range g.nbrs {
		if len(list) == 0 {
			out = append(out, g.ids[i])
		}
	}
	return out
}

// Cardinalities returns the neighbor count of every unit.
func (g *Graph) Cardinalities() map[int64]int {
	out := make(map[int64]int, len(g.ids))
	for i, list := range g.nbrs {
		out[g.ids[i]] = len(list)
	}
	return out
}

// Adjacency returns the graph as an id map.
func (g *Graph) Adjacency() map[int64][]int64 {
	out := make(map[int64][]int64, len(g.ids))
	for _, id := range g.ids {
		out[id] = g.Neighbors(id)
	}
	return out
}
