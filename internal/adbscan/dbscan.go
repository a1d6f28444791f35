package adbscan

import "github.com/sells-group/hotspot-cli/internal/geometry"

// dbscan clusters the member points exactly. A member is a core point when at
// least minPts other members lie within eps. Clusters are numbered in order of
// their lowest-index core point; a border point joins the first cluster that
// reaches it. The returned slice has one label per input point, with
// non-members left as noise, plus the set of core members.
func dbscan(pts []geometry.Point, members []int, eps float64, minPts int) (labels []int, core []int, k int) {
	labels = make([]int, len(pts))
	for i := range labels {
		labels[i] = -1
	}
	idx := newGrid(pts, eps, members)

	isCore := make(map[int]bool, len(members))
	var buf []int
	for _, i := range members {
		buf = idx.neighbors(pts[i], i, buf[:0])
		if len(buf) >= minPts {
			isCore[i] = true
			core = append(core, i)
		}
	}

	visited := make(map[int]bool, len(members))
	for _, seed := range core {
		if visited[seed] {
			continue
		}
		id := k
		k++
		queue := []int{seed}
		visited[seed] = true
		labels[seed] = id
		for len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]
			buf = idx.neighbors(pts[p], p, buf[:0])
			for _, q := range buf {
				if labels[q] < 0 {
					labels[q] = id
				}
				if isCore[q] && !visited[q] {
					visited[q] = true
					queue = append(queue, q)
				}
			}
		}
	}
	return labels, core, k
}
