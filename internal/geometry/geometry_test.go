package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(x0, y0, size float64) Polygon {
	return Polygon{Ring{
		{X: x0, Y: y0},
		{X: x0 + size, Y: y0},
		{X: x0 + size, Y: y0 + size},
		{X: x0, Y: y0 + size},
	}}
}

func mp(polys ...Polygon) MultiPolygon { return MultiPolygon(polys) }

func TestRingArea(t *testing.T) {
	r := square(0, 0, 2)[0]
	assert.InDelta(t, 4.0, r.SignedArea(), 1e-12)
	assert.InDelta(t, -4.0, r.Reverse().SignedArea(), 1e-12)
}

func TestRingClean(t *testing.T) {
	r := Ring{{0, 0}, {1, 0}, {1, 0}, {1, 1}, {0, 0}}
	assert.Equal(t, Ring{{0, 0}, {1, 0}, {1, 1}}, r.Clean())
}

func TestPolygonNormalize(t *testing.T) {
	p := Polygon{square(0, 0, 4)[0].Reverse(), square(1, 1, 1)[0]}
	n := p.Normalize()
	assert.Greater(t, n[0].SignedArea(), 0.0)
	assert.Less(t, n[1].SignedArea(), 0.0)
	assert.InDelta(t, 15.0, n.Area(), 1e-12)
}

func TestCentroid(t *testing.T) {
	c := Centroid(square(0, 0, 2))
	assert.InDelta(t, 1.0, c.X, 1e-12)
	assert.InDelta(t, 1.0, c.Y, 1e-12)

	// A hole on the right pulls the centroid left.
	withHole := Polygon{square(0, 0, 4)[0], square(2.5, 1.5, 1)[0]}
	c = Centroid(withHole)
	assert.Less(t, c.X, 2.0)
	assert.InDelta(t, 2.0, c.Y, 1e-12)
}

func TestLocate(t *testing.T) {
	p := Polygon{square(0, 0, 4)[0], square(1, 1, 2)[0]}
	tests := []struct {
		name string
		pt   Point
		want Location
	}{
		{"inside shell", Point{0.5, 0.5}, Interior},
		{"inside hole", Point{2, 2}, Exterior},
		{"on shell", Point{0, 2}, Boundary},
		{"on hole", Point{1, 2}, Boundary},
		{"outside", Point{5, 5}, Exterior},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Locate(tt.pt))
		})
	}
}

func TestSegmentsTouch(t *testing.T) {
	assert.True(t, SegmentsTouch(Point{0, 0}, Point{2, 2}, Point{0, 2}, Point{2, 0}, 1e-9))
	assert.True(t, SegmentsTouch(Point{0, 0}, Point{1, 0}, Point{1, 0}, Point{1, 1}, 1e-9))
	assert.False(t, SegmentsTouch(Point{0, 0}, Point{1, 0}, Point{0, 1}, Point{1, 1}, 1e-9))
}

func TestConvexHull(t *testing.T) {
	pts := []Point{{0, 0}, {2, 0}, {1, 1}, {2, 2}, {0, 2}, {1, 0}}
	h := ConvexHull(pts)
	require.Len(t, h, 4)
	assert.InDelta(t, 4.0, h.SignedArea(), 1e-12)

	assert.Nil(t, ConvexHull([]Point{{0, 0}, {1, 1}, {2, 2}}))
}

func TestUnionOverlapping(t *testing.T) {
	u := Union(mp(square(0, 0, 2)), mp(square(1, 1, 2)))
	require.Len(t, u, 1)
	assert.InDelta(t, 7.0, u.Area(), 1e-9)
	require.NoError(t, ValidateMulti(u))
}

func TestUnionDisjoint(t *testing.T) {
	u := Union(mp(square(0, 0, 1)), mp(square(5, 5, 1)))
	require.Len(t, u, 2)
	assert.InDelta(t, 2.0, u.Area(), 1e-9)
}

func TestUnionIdentical(t *testing.T) {
	u := Union(mp(square(0, 0, 2)), mp(square(0, 0, 2)))
	require.Len(t, u, 1)
	assert.InDelta(t, 4.0, u.Area(), 1e-9)
}

func TestUnionSharedEdge(t *testing.T) {
	u := Union(mp(square(0, 0, 1)), mp(square(1, 0, 1)))
	require.Len(t, u, 1)
	assert.InDelta(t, 2.0, u.Area(), 1e-9)
	assert.Len(t, u[0][0], 4)
}

func TestIntersectionAndDifference(t *testing.T) {
	a, b := mp(square(0, 0, 2)), mp(square(1, 1, 2))
	assert.InDelta(t, 1.0, Intersection(a, b).Area(), 1e-9)
	assert.InDelta(t, 3.0, Difference(a, b).Area(), 1e-9)
}

func TestDifferenceCreatesHole(t *testing.T) {
	d := Difference(mp(square(0, 0, 4)), mp(square(1, 1, 2)))
	require.Len(t, d, 1)
	require.Len(t, d[0], 2)
	assert.InDelta(t, 12.0, d.Area(), 1e-9)
	assert.Equal(t, Exterior, d[0].Locate(Point{2, 2}))
	require.NoError(t, Validate(d[0]))
}

func TestArrangeCounts(t *testing.T) {
	faces := Arrange([]MultiPolygon{mp(square(0, 0, 2)), mp(square(1, 1, 2))})
	counts := map[int]float64{}
	for _, f := range faces {
		counts[f.Count()] += f.Polygon.Area()
	}
	assert.InDelta(t, 6.0, counts[1], 1e-9)
	assert.InDelta(t, 1.0, counts[2], 1e-9)
	assert.Len(t, faces, 3)
}

func TestArrangeNested(t *testing.T) {
	faces := Arrange([]MultiPolygon{mp(square(0, 0, 4)), mp(square(1, 1, 2))})
	require.Len(t, faces, 2)
	for _, f := range faces {
		switch f.Count() {
		case 1:
			assert.InDelta(t, 12.0, f.Polygon.Area(), 1e-9)
			assert.Len(t, f.Polygon, 2)
		case 2:
			assert.InDelta(t, 4.0, f.Polygon.Area(), 1e-9)
		default:
			t.Fatalf("unexpected count %d", f.Count())
		}
	}
}

func TestInteriorPoint(t *testing.T) {
	// U shape whose centroid falls outside.
	u := Polygon{Ring{{0, 0}, {3, 0}, {3, 3}, {2, 3}, {2, 1}, {1, 1}, {1, 3}, {0, 3}}}
	c := Centroid(u)
	require.Equal(t, Exterior, u.Locate(c))

	ip, ok := InteriorPoint(u)
	require.True(t, ok)
	assert.Equal(t, Interior, u.Locate(ip))
}

func TestRepairBowtie(t *testing.T) {
	bowtie := Polygon{Ring{{0, 0}, {2, 2}, {2, 0}, {0, 2}}}
	require.Error(t, Validate(bowtie))

	fixed := Repair(MultiPolygon{bowtie})
	require.Len(t, fixed, 2)
	assert.InDelta(t, 2.0, fixed.Area(), 1e-9)
	require.NoError(t, ValidateMulti(fixed))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(square(0, 0, 1)))
	assert.ErrorIs(t, Validate(Polygon{Ring{{0, 0}, {1, 0}}}), ErrInvalid)
	assert.Error(t, Validate(Polygon{Ring{{0, 0}, {1, 0}, {2, 0}}}))
	assert.Error(t, Validate(Polygon{square(0, 0, 1)[0], square(5, 5, 1)[0]}))
}

// coverRadius is the circumradius of the covering polygon used for buffers.
func coverRadius(d float64) float64 {
	return d / math.Cos(math.Pi/float64(4*DefaultQuadSegs))
}

func TestDilateSquare(t *testing.T) {
	d := Dilate(mp(square(0, 0, 2)), 1, DefaultQuadSegs)
	require.Len(t, d, 1)
	n := float64(4 * DefaultQuadSegs)
	r := coverRadius(1)
	disk := n / 2 * r * r * math.Sin(2*math.Pi/n)
	assert.InDelta(t, 4+8*r+disk, d.Area(), 1e-6)
	require.NoError(t, ValidateMulti(d))
}

func TestErodeSquare(t *testing.T) {
	e := Erode(mp(square(0, 0, 4)), 1, DefaultQuadSegs)
	require.Len(t, e, 1)
	side := 4 - 2*coverRadius(1)
	assert.InDelta(t, side*side, e.Area(), 1e-6)

	gone := Erode(mp(square(0, 0, 1)), 1, DefaultQuadSegs)
	assert.Empty(t, gone)
}

func TestCloseKeepsConvexShape(t *testing.T) {
	c := Close(mp(square(0, 0, 4)), 1, DefaultQuadSegs)
	require.Len(t, c, 1)
	assert.InDelta(t, 16.0, c.Area(), 1e-9)
	require.NoError(t, ValidateMulti(c))
}

func TestCloseFillsNarrowGap(t *testing.T) {
	a := mp(square(0, 0, 4))
	b := mp(square(4.2, 0, 4))
	c := Close(Union(a, b), 0.5, DefaultQuadSegs)
	require.Len(t, c, 1)
	assert.Greater(t, c.Area(), 32.0)
}

// blob is the union of small disks scattered around a bent arc, shaped like
// an extracted cluster footprint.
func blob() MultiPolygon {
	var disks []MultiPolygon
	for i := 0; i < 60; i++ {
		a := float64(i) * 0.05
		c := Point{X: math.Cos(a) + 0.03*math.Sin(float64(i)*1.7), Y: math.Sin(a) + 0.03*math.Cos(float64(i)*2.3)}
		disks = append(disks, mp(Polygon{Disk(c, 0.09, 16)}))
	}
	return UnionAll(disks)
}

func TestUnionAll(t *testing.T) {
	u := UnionAll([]MultiPolygon{mp(square(0, 0, 2)), nil, mp(square(1, 1, 2)), mp(square(5, 5, 1))})
	require.Len(t, u, 2)
	assert.InDelta(t, 8.0, u.Area(), 1e-9)
	assert.Nil(t, UnionAll(nil))
}

func TestDropCollinear(t *testing.T) {
	r := Ring{{0, 0}, {1, 0}, {2, 0}, {2, 2}, {2, 3}, {2, 2}, {0, 2}}
	assert.Equal(t, Ring{{0, 0}, {2, 0}, {2, 2}, {0, 2}}, dropCollinear(r))

	// A corner split into two points one grid cell apart keeps its triangle.
	corner := Ring{{1e-10, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}
	out := dropCollinear(corner)
	assert.Equal(t, Ring{{1, 0}, {1, 1}, {0, 1}, {0, 0}}, out)
	assert.InDelta(t, corner.Area(), out.Area(), 1e-15)
}

func TestOverlayNearDuplicateCorner(t *testing.T) {
	sq := Polygon{Ring{{5e-11, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}
	require.NoError(t, Validate(sq))

	u := Union(mp(sq))
	require.Len(t, u, 1)
	assert.InDelta(t, 1.0, u.Area(), 1e-9)
	assert.InDelta(t, 1.0, Repair(mp(sq)).Area(), 1e-9)

	faces := Arrange([]MultiPolygon{mp(sq), mp(sq)})
	require.Len(t, faces, 1)
	assert.Equal(t, 2, faces[0].Count())
	assert.InDelta(t, 1.0, faces[0].Polygon.Area(), 1e-9)
}

func TestDilateLeavesNoSlivers(t *testing.T) {
	g := blob()
	require.NoError(t, ValidateMulti(g))
	for _, d := range []float64{0.02, 1, 10} {
		grown := Dilate(g, d, DefaultQuadSegs)
		require.NoError(t, ValidateMulti(grown), "d=%g", d)
		for i, p := range grown {
			assert.Greater(t, p.Area(), math.Pi*d*d, "d=%g part %d", d, i)
		}
		assert.InDelta(t, 0, Difference(g, grown).Area(), 1e-9*g.Area(), "d=%g", d)
	}
}

func TestCloseCoversInput(t *testing.T) {
	g := blob()
	for _, d := range []float64{0.05, 1, 10, 100} {
		c := Close(g, d, DefaultQuadSegs)
		require.NoError(t, ValidateMulti(c), "d=%g", d)
		assert.GreaterOrEqual(t, c.Area(), g.Area()*(1-1e-9), "d=%g", d)
		assert.InDelta(t, 0, Difference(g, c).Area(), 1e-9*g.Area(), "d=%g", d)
		for _, r := range g.Rings() {
			for _, v := range r {
				assert.NotEqual(t, Exterior, c.Locate(v), "d=%g vertex %v", d, v)
			}
		}
	}
}

func TestGeomRoundTrip(t *testing.T) {
	m := mp(Polygon{square(0, 0, 4)[0], square(1, 1, 1)[0].Reverse()})
	back, err := FromGeom(m.ToGeom())
	require.NoError(t, err)
	assert.Equal(t, m, back)
}
