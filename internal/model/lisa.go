package model

import "math"

// Quadrant classifies a unit by the signs of its value and spatial lag.
type Quadrant int

const (
	QuadrantNS Quadrant = iota // not significant
	QuadrantHH                 // high value, high neighbors
	QuadrantLH                 // low value, high neighbors
	QuadrantLL                 // low value, low neighbors
	QuadrantHL                 // high value, low neighbors
)

var quadrantLabels = [...]string{"NS", "HH", "LH", "LL", "HL"}

// String returns the short label used in output tables.
func (q Quadrant) String() string {
	if q < 0 || int(q) >= len(quadrantLabels) {
		return "NS"
	}
	return quadrantLabels[q]
}

// UnitStat holds the local Moran's I result for one areal unit.
type UnitStat struct {
	UnitID      int64    `json:"unit_id"`
	Value       float64  `json:"value"`
	I           float64  `json:"i"` // NaN when the unit has no neighbors
	P           float64  `json:"p"`
	Significant bool     `json:"significant"`
	Quadrant    Quadrant `json:"quadrant"`
	Neighbors   int      `json:"neighbors"`
}

// Defined reports whether the statistic could be computed.
func (s UnitStat) Defined() bool { return !math.IsNaN(s.I) }

// Label returns the quadrant label.
func (s UnitStat) Label() string { return s.Quadrant.String() }
