package geoio

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hotspot-cli/internal/geometry"
	"github.com/sells-group/hotspot-cli/internal/model"
)

// ShapefileFields names the DBF attributes mapped onto unit fields. Matching
// is case-insensitive; empty names are not read.
type ShapefileFields struct {
	ID            string
	Name          string
	IncidentCount string
	RoadLength    string
}

// DefaultShapefileFields matches the attribute names written by common
// boundary exports.
var DefaultShapefileFields = ShapefileFields{
	ID:            "id",
	Name:          "name",
	IncidentCount: "incidents",
	RoadLength:    "road_len",
}

// ReadUnitsShapefile reads polygon units from an ESRI shapefile. Records
// without a usable id or polygon are skipped and reported.
func ReadUnitsShapefile(path string, fields ShapefileFields) ([]model.ArealUnit, []model.DroppedFeature, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "geoio: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := make(map[string]int)
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}
	attr := func(name string) string {
		if name == "" {
			return ""
		}
		idx, ok := fieldIdx[strings.ToLower(name)]
		if !ok {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
	}
	if _, ok := fieldIdx[strings.ToLower(fields.ID)]; !ok {
		return nil, nil, eris.Errorf("geoio: shapefile %s has no %q field", path, fields.ID)
	}

	var units []model.ArealUnit
	var dropped []model.DroppedFeature
	for reader.Next() {
		row, shape := reader.Shape()
		id, err := strconv.ParseInt(attr(fields.ID), 10, 64)
		if err != nil {
			dropped = append(dropped, model.DroppedFeature{
				Stage: model.StageInput, ID: int64(row), Reason: fmt.Sprintf("record %d has no integer id", row),
			})
			continue
		}
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			dropped = append(dropped, model.DroppedFeature{Stage: model.StageInput, ID: id, Reason: "shape is not a polygon"})
			continue
		}
		g := shpPolygon(poly)
		if len(g) == 0 {
			dropped = append(dropped, model.DroppedFeature{Stage: model.StageInput, ID: id, Reason: "polygon has no valid rings"})
			continue
		}
		u := model.ArealUnit{ID: id, Name: attr(fields.Name), Geom: g}
		if n, err := strconv.ParseFloat(attr(fields.IncidentCount), 64); err == nil {
			u.IncidentCount = int(n)
		}
		if l, err := strconv.ParseFloat(attr(fields.RoadLength), 64); err == nil {
			u.RoadLength = l
		}
		units = append(units, u)
	}
	if err := reader.Err(); err != nil {
		return nil, nil, eris.Wrapf(err, "geoio: read shapefile %s", path)
	}
	if len(dropped) > 0 {
		zap.L().Debug("geoio: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", len(dropped)),
		)
	}
	return units, dropped, nil
}

// shpPolygon groups shapefile rings into polygons. Clockwise rings are
// shells; each counter-clockwise ring becomes a hole of the smallest shell
// containing it.
func shpPolygon(p *shp.Polygon) geometry.MultiPolygon {
	if p == nil || p.NumParts == 0 {
		return nil
	}
	var shells, holes []geometry.Ring
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		ring := make(geometry.Ring, 0, end-start)
		for _, pt := range p.Points[start:end] {
			ring = append(ring, geometry.Point{X: pt.X, Y: pt.Y})
		}
		ring = ring.Clean()
		if len(ring) < 3 {
			continue
		}
		if ring.SignedArea() < 0 {
			shells = append(shells, ring.Reverse())
		} else {
			holes = append(holes, ring.Reverse())
		}
	}
	out := make(geometry.MultiPolygon, len(shells))
	for i, s := range shells {
		out[i] = geometry.Polygon{s}
	}
	for _, h := range holes {
		best, bestArea := -1, math.Inf(1)
		for i, s := range shells {
			if a := s.Area(); a < bestArea && geometry.LocateRing(h[0], s) != geometry.Exterior {
				best, bestArea = i, a
			}
		}
		if best >= 0 {
			out[best] = append(out[best], h)
		}
	}
	return out
}

// WriteFootprintsShapefile writes footprints as ESRI polygons with PERIOD,
// CLUSTER and POINTS attributes.
func WriteFootprintsShapefile(path string, fps []model.Footprint) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "geoio: create shapefile %s", path)
	}
	defer w.Close()

	if err := w.SetFields([]shp.Field{
		shp.StringField("PERIOD", 16),
		shp.NumberField("CLUSTER", 10),
		shp.NumberField("POINTS", 10),
	}); err != nil {
		return eris.Wrap(err, "geoio: set shapefile fields")
	}

	for _, fp := range fps {
		var parts [][]shp.Point
		for _, poly := range fp.Geom {
			for _, r := range poly.Normalize() {
				// ESRI shells run clockwise.
				parts = append(parts, shpRing(r.Reverse()))
			}
		}
		if len(parts) == 0 {
			continue
		}
		pl := shp.NewPolyLine(parts)
		row := int(w.Write((*shp.Polygon)(pl)))
		for i, v := range []any{fp.Period, fp.ClusterID, fp.Points} {
			if err := w.WriteAttribute(row, i, v); err != nil {
				return eris.Wrapf(err, "geoio: write attribute for %s/%d", fp.Period, fp.ClusterID)
			}
		}
	}
	return nil
}

func shpRing(r geometry.Ring) []shp.Point {
	pts := make([]shp.Point, 0, len(r)+1)
	for _, p := range r {
		pts = append(pts, shp.Point{X: p.X, Y: p.Y})
	}
	if len(r) > 0 {
		pts = append(pts, shp.Point{X: r[0].X, Y: r[0].Y})
	}
	return pts
}
