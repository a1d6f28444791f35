package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIncidentPeriod(t *testing.T) {
	t.Parallel()

	i := Incident{OccurredAt: time.Date(2019, 12, 31, 23, 30, 0, 0, time.FixedZone("x", -2*3600))}
	assert.Equal(t, "2020", i.Period())
}

func TestIncidentFinite(t *testing.T) {
	t.Parallel()

	assert.True(t, Incident{X: 1, Y: 2}.Finite())
	assert.False(t, Incident{X: math.NaN(), Y: 2}.Finite())
	assert.False(t, Incident{X: 1, Y: math.Inf(1)}.Finite())
}

func TestArealUnitRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		unit ArealUnit
		want float64
	}{
		{"with roads", ArealUnit{IncidentCount: 10, RoadLength: 4}, 2.5},
		{"zero road length", ArealUnit{IncidentCount: 7}, 7},
		{"negative road length", ArealUnit{IncidentCount: 3, RoadLength: -1}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, tt.unit.Rate(), 1e-12)
		})
	}
}

func TestQuadrantString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		q    Quadrant
		want string
	}{
		{QuadrantNS, "NS"},
		{QuadrantHH, "HH"},
		{QuadrantLH, "LH"},
		{QuadrantLL, "LL"},
		{QuadrantHL, "HL"},
		{Quadrant(9), "NS"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.q.String())
	}
	assert.Equal(t, 1, int(QuadrantHH))
	assert.Equal(t, 4, int(QuadrantHL))
}

func TestUnitStatDefined(t *testing.T) {
	t.Parallel()

	assert.False(t, UnitStat{I: math.NaN()}.Defined())
	assert.True(t, UnitStat{I: 0}.Defined())
}

func TestRunMode(t *testing.T) {
	t.Parallel()

	assert.True(t, RunModeAll.Valid())
	assert.False(t, RunMode("bogus").Valid())
	assert.True(t, RunModeAll.Includes(RunModeLISA))
	assert.True(t, RunModeClusters.Includes(RunModeClusters))
	assert.False(t, RunModeLISA.Includes(RunModeClusters))
}

func TestSummaryDrop(t *testing.T) {
	t.Parallel()

	var s Summary
	s.Drop(DroppedFeature{Stage: StageFootprint, Period: "2020", ID: 3, Reason: "too few points"})
	s.Warn("careful")
	assert.Len(t, s.Dropped, 1)
	assert.Equal(t, []string{"careful"}, s.Warnings)
}
