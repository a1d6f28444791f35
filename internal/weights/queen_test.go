package weights

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hotspot-cli/internal/geometry"
	"github.com/sells-group/hotspot-cli/internal/model"
)

func cell(x, y, size float64) geometry.Polygon {
	return geometry.Polygon{geometry.Ring{
		{X: x, Y: y}, {X: x + size, Y: y}, {X: x + size, Y: y + size}, {X: x, Y: y + size},
	}}
}

// gridUnits returns an n×n grid of unit squares with ids row by row from 1.
func gridUnits(n int) []model.ArealUnit {
	var units []model.ArealUnit
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			units = append(units, model.ArealUnit{
				ID:   int64(r*n + c + 1),
				Geom: geometry.MultiPolygon{cell(float64(c), float64(r), 1)},
			})
		}
	}
	return units
}

func TestQueenGrid(t *testing.T) {
	t.Parallel()

	g, err := Queen(context.Background(), gridUnits(3), DefaultTolerance, 4)
	require.NoError(t, err)

	assert.Equal(t, []int64{2, 4, 5}, g.Neighbors(1))
	assert.Equal(t, []int64{1, 2, 3, 4, 6, 7, 8, 9}, g.Neighbors(5))
	assert.Equal(t, []int64{1, 3, 4, 5, 6}, g.Neighbors(2))
	assert.Empty(t, g.Islands())

	card := g.Cardinalities()
	assert.Equal(t, 3, card[9])
	assert.Equal(t, 8, card[5])
}

func TestQueenSymmetricNoSelfLoops(t *testing.T) {
	t.Parallel()

	g, err := Queen(context.Background(), gridUnits(5), DefaultTolerance, 3)
	require.NoError(t, err)
	for _, id := range g.IDs() {
		for _, n := range g.Neighbors(id) {
			assert.NotEqual(t, id, n)
			assert.Contains(t, g.Neighbors(n), id)
		}
	}
}

func TestQueenDeterministicAcrossWorkers(t *testing.T) {
	t.Parallel()

	units := gridUnits(6)
	a, err := Queen(context.Background(), units, DefaultTolerance, 1)
	require.NoError(t, err)
	b, err := Queen(context.Background(), units, DefaultTolerance, 8)
	require.NoError(t, err)
	assert.Equal(t, a.Adjacency(), b.Adjacency())
}

func TestQueenIslandAndMultiPart(t *testing.T) {
	t.Parallel()

	units := []model.ArealUnit{
		{ID: 10, Geom: geometry.MultiPolygon{cell(0, 0, 1)}},
		// Second part touches unit 10 at a single corner.
		{ID: 20, Geom: geometry.MultiPolygon{cell(50, 50, 1), cell(1, 1, 1)}},
		{ID: 30, Geom: geometry.MultiPolygon{cell(100, 0, 1)}},
		{ID: 40},
	}
	g, err := Queen(context.Background(), units, DefaultTolerance, 2)
	require.NoError(t, err)

	assert.Equal(t, []int64{20}, g.Neighbors(10))
	assert.Equal(t, []int64{10}, g.Neighbors(20))
	assert.ElementsMatch(t, []int64{30, 40}, g.Islands())
}

func TestQueenNearMissBeyondTolerance(t *testing.T) {
	t.Parallel()

	units := []model.ArealUnit{
		{ID: 1, Geom: geometry.MultiPolygon{cell(0, 0, 1)}},
		{ID: 2, Geom: geometry.MultiPolygon{cell(1.001, 0, 1)}},
	}
	g, err := Queen(context.Background(), units, DefaultTolerance, 1)
	require.NoError(t, err)
	assert.Len(t, g.Islands(), 2)

	g, err = Queen(context.Background(), units, 0.01, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, g.Neighbors(1))
}

func TestQueenErrors(t *testing.T) {
	t.Parallel()

	dup := []model.ArealUnit{{ID: 1}, {ID: 1}}
	_, err := Queen(context.Background(), dup, DefaultTolerance, 1)
	assert.ErrorContains(t, err, "duplicate unit id")

	_, err = Queen(context.Background(), nil, -1, 1)
	assert.Error(t, err)
}

func TestFromAdjacency(t *testing.T) {
	t.Parallel()

	g := FromAdjacency([]int64{1, 2, 3}, map[int64][]int64{1: {2, 1, 2}, 3: {99}})
	assert.Equal(t, []int64{2}, g.Neighbors(1))
	assert.Equal(t, []int64{1}, g.Neighbors(2))
	assert.Equal(t, []int64{3}, g.Islands())
	assert.Nil(t, g.Neighbors(42))
}
