package adbscan

import (
	"math"
	"sort"

	"github.com/sells-group/hotspot-cli/internal/geometry"
	"github.com/sells-group/hotspot-cli/internal/model"
)

// reference returns the pass with the most clusters, lowest index on ties.
func reference(passes []pass) int {
	best := 0
	for i, p := range passes {
		if p.clusters > passes[best].clusters {
			best = i
		}
	}
	return best
}

func centroids(pts []geometry.Point, labels []int, k int) []geometry.Point {
	sum := make([]geometry.Point, k)
	cnt := make([]int, k)
	for i, l := range labels {
		if l < 0 {
			continue
		}
		sum[l].X += pts[i].X
		sum[l].Y += pts[i].Y
		cnt[l]++
	}
	for l := range sum {
		if cnt[l] > 0 {
			sum[l].X /= float64(cnt[l])
			sum[l].Y /= float64(cnt[l])
		}
	}
	return sum
}

// reconcile rewrites every pass into the label space of the reference pass.
// A cluster maps to the reference cluster sharing the most points, lowest id
// on ties; a cluster sharing none maps to the reference cluster with the
// nearest centroid.
func reconcile(pts []geometry.Point, passes []pass) [][]int {
	out := make([][]int, len(passes))
	ref := reference(passes)
	refLabels := passes[ref].labels
	refK := passes[ref].clusters
	refCent := centroids(pts, refLabels, refK)

	for pi, p := range passes {
		if pi == ref || p.clusters == 0 || refK == 0 {
			out[pi] = p.labels
			continue
		}
		overlap := make([]map[int]int, p.clusters)
		for c := range overlap {
			overlap[c] = make(map[int]int)
		}
		for i, l := range p.labels {
			if l >= 0 && refLabels[i] >= 0 {
				overlap[l][refLabels[i]]++
			}
		}
		cent := centroids(pts, p.labels, p.clusters)
		mapping := make([]int, p.clusters)
		for c := range mapping {
			mapping[c] = bestOverlap(overlap[c])
			if mapping[c] < 0 {
				mapping[c] = nearestCentroid(cent[c], refCent)
			}
		}
		labels := make([]int, len(p.labels))
		for i, l := range p.labels {
			if l < 0 {
				labels[i] = model.Noise
			} else {
				labels[i] = mapping[l]
			}
		}
		out[pi] = labels
	}
	return out
}

func bestOverlap(counts map[int]int) int {
	best, bestN := -1, 0
	for r, n := range counts {
		if n > bestN || (n == bestN && r < best) {
			best, bestN = r, n
		}
	}
	return best
}

func nearestCentroid(c geometry.Point, refs []geometry.Point) int {
	best, bestD := 0, math.Inf(1)
	for r, rc := range refs {
		if d := c.Dist(rc); d < bestD {
			best, bestD = r, d
		}
	}
	return best
}

// vote picks each point's plurality label across passes, lowest label on
// ties. A winner without a strict majority of passes becomes noise.
func vote(passes [][]int, n int) ([]int, []float64) {
	labels := make([]int, n)
	share := make([]float64, n)
	reps := len(passes)
	buf := make([]int, reps)
	for i := 0; i < n; i++ {
		for r, p := range passes {
			buf[r] = p[i]
		}
		sort.Ints(buf)
		win, winN := model.Noise, 0
		noiseN := 0
		for s := 0; s < reps; {
			e := s
			for e < reps && buf[e] == buf[s] {
				e++
			}
			if buf[s] == model.Noise {
				noiseN = e - s
			}
			// Runs ascend by label, so the first maximal run wins ties.
			if e-s > winN {
				win, winN = buf[s], e-s
			}
			s = e
		}
		if winN*2 <= reps {
			win, winN = model.Noise, noiseN
		}
		labels[i] = win
		share[i] = float64(winN) / float64(reps)
	}
	return labels, share
}

// compact renumbers cluster labels to 0..k-1 in order of first appearance
// and returns k.
func compact(labels []int) int {
	next := make(map[int]int)
	for i, l := range labels {
		if l < 0 {
			continue
		}
		id, ok := next[l]
		if !ok {
			id = len(next)
			next[l] = id
		}
		labels[i] = id
	}
	return len(next)
}
