// Package geoio reads and writes incidents, units and analysis outputs as
// GeoJSON, shapefiles and (E)WKB.
package geoio

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/hotspot-cli/internal/geometry"
	"github.com/sells-group/hotspot-cli/internal/model"
)

func decodeCollection(r io.Reader) (*geojson.FeatureCollection, error) {
	var fc geojson.FeatureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, eris.Wrap(err, "geoio: decode feature collection")
	}
	return &fc, nil
}

func featureID(f *geojson.Feature) (int64, bool) {
	if f.ID != "" {
		if id, err := strconv.ParseInt(f.ID, 10, 64); err == nil {
			return id, true
		}
	}
	return propInt(f.Properties, "id")
}

// ReadIncidents decodes point features. Features without an integer id, a
// point geometry or a parseable occurred_at are skipped and reported.
func ReadIncidents(r io.Reader) ([]model.Incident, []model.DroppedFeature, error) {
	fc, err := decodeCollection(r)
	if err != nil {
		return nil, nil, err
	}
	out := make([]model.Incident, 0, len(fc.Features))
	var dropped []model.DroppedFeature
	drop := func(i int, id int64, reason string) {
		if id == 0 {
			id = int64(i)
		}
		dropped = append(dropped, model.DroppedFeature{Stage: model.StageInput, ID: id, Reason: reason})
	}
	for i, f := range fc.Features {
		id, ok := featureID(f)
		if !ok {
			drop(i, 0, fmt.Sprintf("feature %d has no integer id", i))
			continue
		}
		pt, ok := f.Geometry.(*geom.Point)
		if !ok || pt.Empty() {
			drop(i, id, "geometry is not a point")
			continue
		}
		at, ok := propTime(f.Properties, "occurred_at")
		if !ok {
			drop(i, id, "missing or invalid occurred_at")
			continue
		}
		out = append(out, model.Incident{ID: id, X: pt.X(), Y: pt.Y(), OccurredAt: at})
	}
	return out, dropped, nil
}

// ReadUnits decodes polygon and multipolygon features.
func ReadUnits(r io.Reader) ([]model.ArealUnit, []model.DroppedFeature, error) {
	fc, err := decodeCollection(r)
	if err != nil {
		return nil, nil, err
	}
	out := make([]model.ArealUnit, 0, len(fc.Features))
	var dropped []model.DroppedFeature
	for i, f := range fc.Features {
		id, ok := featureID(f)
		if !ok {
			dropped = append(dropped, model.DroppedFeature{
				Stage: model.StageInput, ID: int64(i), Reason: fmt.Sprintf("feature %d has no integer id", i),
			})
			continue
		}
		g, err := geometry.FromGeom(f.Geometry)
		if err != nil {
			dropped = append(dropped, model.DroppedFeature{Stage: model.StageInput, ID: id, Reason: err.Error()})
			continue
		}
		count, _ := propInt(f.Properties, "incident_count")
		road, _ := propFloat(f.Properties, "road_length")
		name, _ := f.Properties["name"].(string)
		out = append(out, model.ArealUnit{
			ID:            id,
			Name:          name,
			Geom:          g,
			IncidentCount: int(count),
			RoadLength:    road,
		})
	}
	return out, dropped, nil
}

func writeCollection(w io.Writer, features []*geojson.Feature) error {
	fc := geojson.FeatureCollection{Features: features}
	enc := json.NewEncoder(w)
	if err := enc.Encode(&fc); err != nil {
		return eris.Wrap(err, "geoio: encode feature collection")
	}
	return nil
}

func encodeFeature(id string, g geom.T, props map[string]any) (*geojson.Feature, error) {
	if g == nil {
		return nil, eris.New("geoio: nil geometry")
	}
	return &geojson.Feature{ID: id, Geometry: g, Properties: props}, nil
}

// WriteFootprints writes footprints as multipolygon features.
func WriteFootprints(w io.Writer, fps []model.Footprint) error {
	features := make([]*geojson.Feature, 0, len(fps))
	for _, fp := range fps {
		f, err := encodeFeature("", fp.Geom.ToGeom(), map[string]any{
			"period":     fp.Period,
			"cluster_id": fp.ClusterID,
			"points":     fp.Points,
			"area":       fp.Area(),
		})
		if err != nil {
			return eris.Wrapf(err, "geoio: footprint %s/%d", fp.Period, fp.ClusterID)
		}
		features = append(features, f)
	}
	return writeCollection(w, features)
}

// WriteRegions writes stability regions as polygon features.
func WriteRegions(w io.Writer, regions []model.StabilityRegion) error {
	features := make([]*geojson.Feature, 0, len(regions))
	for _, r := range regions {
		f, err := encodeFeature(strconv.Itoa(r.RegionID), r.Geom.ToGeom(), map[string]any{
			"region_id": r.RegionID,
			"count":     r.Count,
		})
		if err != nil {
			return eris.Wrapf(err, "geoio: region %d", r.RegionID)
		}
		features = append(features, f)
	}
	return writeCollection(w, features)
}

// WriteUnits writes units with their local Moran's I attributes. Units
// without a stat are written with null statistics.
func WriteUnits(w io.Writer, units []model.ArealUnit, stats []model.UnitStat) error {
	byID := make(map[int64]model.UnitStat, len(stats))
	for _, s := range stats {
		byID[s.UnitID] = s
	}
	features := make([]*geojson.Feature, 0, len(units))
	for _, u := range units {
		props := map[string]any{
			"id":             u.ID,
			"name":           u.Name,
			"incident_count": u.IncidentCount,
			"road_length":    u.RoadLength,
			"rate":           u.Rate(),
			"lisa_i":         nil,
			"lisa_p":         nil,
			"significant":    false,
			"quadrant":       model.QuadrantNS.String(),
		}
		if s, ok := byID[u.ID]; ok {
			if s.Defined() {
				props["lisa_i"] = s.I
			}
			if !math.IsNaN(s.P) {
				props["lisa_p"] = s.P
			}
			props["significant"] = s.Significant
			props["quadrant"] = s.Label()
			props["neighbors"] = s.Neighbors
		}
		f, err := encodeFeature(strconv.FormatInt(u.ID, 10), u.Geom.ToGeom(), props)
		if err != nil {
			return eris.Wrapf(err, "geoio: unit %d", u.ID)
		}
		features = append(features, f)
	}
	return writeCollection(w, features)
}

// WriteIncidents writes incidents as point features.
func WriteIncidents(w io.Writer, incidents []model.Incident) error {
	features := make([]*geojson.Feature, 0, len(incidents))
	for _, inc := range incidents {
		features = append(features, &geojson.Feature{
			ID:       strconv.FormatInt(inc.ID, 10),
			Geometry: PointGeom(inc.Point()),
			Properties: map[string]any{
				"id":          inc.ID,
				"occurred_at": inc.OccurredAt.UTC().Format(time.RFC3339),
			},
		})
	}
	return writeCollection(w, features)
}

func propInt(props map[string]any, key string) (int64, bool) {
	switch v := props[key].(type) {
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

func propFloat(props map[string]any, key string) (float64, bool) {
	switch v := props[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

func propTime(props map[string]any, key string) (time.Time, bool) {
	s, _ := props[key].(string)
	return parseTime(s)
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
