package geometry

import "math"

// DefaultQuadSegs is the number of segments used per quarter circle when
// approximating round joins.
const DefaultQuadSegs = 8

// pinholeRatio is the width, relative to the buffer distance, below which a
// buffered part or hole is overlay debris.
const pinholeRatio = 1e-6

// coverDisk returns the regular n-gon whose edges are tangent to the circle of
// radius d around c, so that it covers the whole disk.
func coverDisk(c Point, d float64, n int) Ring {
	return Disk(c, d/math.Cos(math.Pi/float64(n)), n)
}

// capsule returns segment ab swept by the covering n-gon of radius d.
func capsule(a, b Point, d float64, n int) Ring {
	return ConvexHull(append(coverDisk(a, d, n), coverDisk(b, d, n)...))
}

// boundaryPieces covers every point within d of the boundary of m with one
// capsule per edge. Vertices closer than d/10 to the previously kept vertex
// are merged first.
func boundaryPieces(m MultiPolygon, d float64, quadSegs int) []MultiPolygon {
	if quadSegs < 1 {
		quadSegs = DefaultQuadSegs
	}
	n := 4 * quadSegs
	var pieces []MultiPolygon
	for _, r := range m.Rings() {
		r = decimate(r.Clean(), d/10)
		for i := range r {
			if c := capsule(r[i], r[(i+1)%len(r)], d, n); c != nil {
				pieces = append(pieces, MultiPolygon{{c}})
			}
		}
	}
	return pieces
}

func decimate(r Ring, minDist float64) Ring {
	if len(r) <= 4 || minDist <= 0 {
		return r
	}
	out := Ring{r[0]}
	for _, p := range r[1:] {
		if p.Dist(out[len(out)-1]) < minDist {
			continue
		}
		out = append(out, p)
	}
	if len(out) > 1 && out[len(out)-1].Dist(out[0]) < minDist {
		out = out[:len(out)-1]
	}
	return out
}

// prune drops polygons whose shell is narrower than shellWidth and fills holes
// narrower than holeWidth.
func prune(m MultiPolygon, shellWidth, holeWidth float64) MultiPolygon {
	out := make(MultiPolygon, 0, len(m))
	for _, p := range m {
		if len(p) == 0 || narrow(p[0], shellWidth) {
			continue
		}
		kept := Polygon{p[0]}
		for _, h := range p[1:] {
			if !narrow(h, holeWidth) {
				kept = append(kept, h)
			}
		}
		out = append(out, kept)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Dilate grows m outward by d using round joins. Every part of the result
// holds a disk of radius d, so parts narrower than d/4 are discarded.
func Dilate(m MultiPolygon, d float64, quadSegs int) MultiPolygon {
	if d <= 0 || len(m) == 0 {
		return m
	}
	grown := Union(m, UnionAll(boundaryPieces(m, d, quadSegs)))
	return prune(grown, d/4, d*pinholeRatio)
}

// Erode shrinks m inward by d: the result keeps the points of m farther than
// d from its boundary.
func Erode(m MultiPolygon, d float64, quadSegs int) MultiPolygon {
	if d <= 0 || len(m) == 0 {
		return m
	}
	band := UnionAll(boundaryPieces(m, d, quadSegs))
	return prune(Difference(m, band), d*pinholeRatio, d*pinholeRatio)
}

// Buffer dilates for positive d, erodes for negative d and repairs for zero.
func Buffer(m MultiPolygon, d float64, quadSegs int) MultiPolygon {
	switch {
	case d > 0:
		return Dilate(m, d, quadSegs)
	case d < 0:
		return Erode(m, math.Abs(d), quadSegs)
	default:
		return Repair(m)
	}
}

// Close dilates then erodes by d, removing narrow gaps and spikes. The result
// always covers m.
func Close(m MultiPolygon, d float64, quadSegs int) MultiPolygon {
	if d <= 0 || len(m) == 0 {
		return m
	}
	closed := Union(m, Erode(Dilate(m, d, quadSegs), d, quadSegs))
	return prune(closed, 0, d*pinholeRatio)
}
