package model

import "github.com/sells-group/hotspot-cli/internal/geometry"

// Noise is the label of points that belong to no cluster.
const Noise = -1

// Footprint is the boundary polygon of one cluster within a period.
type Footprint struct {
	Period    string                `json:"period"`
	ClusterID int                   `json:"cluster_id"`
	Points    int                   `json:"points"`
	Geom      geometry.MultiPolygon `json:"-"`
}

// Area returns the footprint area.
func (f Footprint) Area() float64 { return f.Geom.Area() }

// StabilityRegion is a maximal region bounded by footprint edges, tagged with
// the number of period footprints covering it.
type StabilityRegion struct {
	RegionID int              `json:"region_id"`
	Count    int              `json:"stability_count"`
	Geom     geometry.Polygon `json:"-"`
}
