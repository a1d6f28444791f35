package model

import (
	"strconv"
	"time"

	"github.com/sells-group/hotspot-cli/internal/geometry"
)

// AllTime is the period key of footprints computed over the full history.
const AllTime = "all-time"

// Incident is a geolocated incident record in projected planar coordinates.
type Incident struct {
	ID         int64     `json:"id" db:"id"`
	X          float64   `json:"x" db:"x"`
	Y          float64   `json:"y" db:"y"`
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
}

// Period returns the analysis period key: the UTC year of the incident.
func (i Incident) Period() string {
	return strconv.Itoa(i.OccurredAt.UTC().Year())
}

// Point returns the incident location.
func (i Incident) Point() geometry.Point {
	return geometry.Point{X: i.X, Y: i.Y}
}

// Finite reports whether both coordinates are finite numbers.
func (i Incident) Finite() bool {
	return i.Point().Finite()
}

// ArealUnit is an administrative or analysis polygon. Geometry is never
// mutated by the engine; analysis results are carried separately in UnitStat.
type ArealUnit struct {
	ID            int64                 `json:"id" db:"id"`
	Name          string                `json:"name" db:"name"`
	Geom          geometry.MultiPolygon `json:"-" db:"-"`
	IncidentCount int                   `json:"incident_count" db:"incident_count"`
	RoadLength    float64               `json:"road_length" db:"road_length"`
}

// Rate returns incidents per unit of road length. A missing or zero road
// length counts as 1 so units without road data keep their raw count.
func (u ArealUnit) Rate() float64 {
	l := u.RoadLength
	if l <= 0 {
		l = 1
	}
	return float64(u.IncidentCount) / l
}

// WeeklyCount is the number of incidents in a unit for one week. Week is the
// Monday 00:00 UTC that starts the week.
type WeeklyCount struct {
	UnitID int64     `json:"unit_id" db:"unit_id"`
	Week   time.Time `json:"week" db:"week"`
	Count  int       `json:"count" db:"count"`
}
