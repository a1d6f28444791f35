package geoio

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hotspot-cli/internal/geometry"
	"github.com/sells-group/hotspot-cli/internal/model"
)

func square(x0, y0, size float64) geometry.Polygon {
	return geometry.Polygon{geometry.Ring{
		{X: x0, Y: y0},
		{X: x0 + size, Y: y0},
		{X: x0 + size, Y: y0 + size},
		{X: x0, Y: y0 + size},
	}}
}

const incidentsJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": 1, "geometry": {"type": "Point", "coordinates": [1.5, 2.5]},
     "properties": {"occurred_at": "2023-04-01T10:00:00Z"}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [3, 4]},
     "properties": {"id": 2, "occurred_at": "2022-12-31"}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [0, 0]},
     "properties": {"occurred_at": "2022-12-31"}},
    {"type": "Feature", "id": 4, "geometry": {"type": "LineString", "coordinates": [[0, 0], [1, 1]]},
     "properties": {"occurred_at": "2022-12-31"}},
    {"type": "Feature", "id": 5, "geometry": {"type": "Point", "coordinates": [0, 0]},
     "properties": {"occurred_at": "yesterday"}}
  ]
}`

func TestReadIncidents(t *testing.T) {
	incidents, dropped, err := ReadIncidents(strings.NewReader(incidentsJSON))
	require.NoError(t, err)

	require.Len(t, incidents, 2)
	assert.Equal(t, int64(1), incidents[0].ID)
	assert.InDelta(t, 1.5, incidents[0].X, 0)
	assert.InDelta(t, 2.5, incidents[0].Y, 0)
	assert.Equal(t, "2023", incidents[0].Period())
	assert.Equal(t, int64(2), incidents[1].ID)
	assert.Equal(t, time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC), incidents[1].OccurredAt)

	require.Len(t, dropped, 3)
	assert.Contains(t, dropped[0].Reason, "no integer id")
	assert.Equal(t, int64(4), dropped[1].ID)
	assert.Equal(t, "geometry is not a point", dropped[1].Reason)
	assert.Contains(t, dropped[2].Reason, "occurred_at")
}

func TestReadIncidents_Malformed(t *testing.T) {
	_, _, err := ReadIncidents(strings.NewReader(`{"type": "Feature"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geoio: decode feature collection")
}

const unitsJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]},
     "properties": {"id": 10, "name": "North", "incident_count": 4, "road_length": 2.5}},
    {"type": "Feature", "geometry": {"type": "MultiPolygon", "coordinates": [
       [[[2,0],[3,0],[3,1],[2,1],[2,0]]], [[[4,0],[5,0],[5,1],[4,1],[4,0]]]]},
     "properties": {"id": "11"}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [0, 0]},
     "properties": {"id": 12}}
  ]
}`

func TestReadUnits(t *testing.T) {
	units, dropped, err := ReadUnits(strings.NewReader(unitsJSON))
	require.NoError(t, err)

	require.Len(t, units, 2)
	assert.Equal(t, int64(10), units[0].ID)
	assert.Equal(t, "North", units[0].Name)
	assert.Equal(t, 4, units[0].IncidentCount)
	assert.InDelta(t, 2.5, units[0].RoadLength, 0)
	assert.InDelta(t, 1.0, units[0].Geom.Area(), 1e-12)
	require.Len(t, units[0].Geom[0][0], 4)

	assert.Equal(t, int64(11), units[1].ID)
	assert.Len(t, units[1].Geom, 2)

	require.Len(t, dropped, 1)
	assert.Equal(t, int64(12), dropped[0].ID)
	assert.Contains(t, dropped[0].Reason, "unsupported geometry type")
}

type collection struct {
	Features []struct {
		ID         any            `json:"id"`
		Geometry   map[string]any `json:"geometry"`
		Properties map[string]any `json:"properties"`
	} `json:"features"`
}

func decode(t *testing.T, data []byte) collection {
	t.Helper()
	var c collection
	require.NoError(t, json.Unmarshal(data, &c))
	return c
}

func TestWriteFootprints(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFootprints(&buf, []model.Footprint{
		{Period: "2023", ClusterID: 2, Points: 7, Geom: geometry.MultiPolygon{square(0, 0, 2)}},
	})
	require.NoError(t, err)

	c := decode(t, buf.Bytes())
	require.Len(t, c.Features, 1)
	f := c.Features[0]
	assert.Equal(t, "MultiPolygon", f.Geometry["type"])
	assert.Equal(t, "2023", f.Properties["period"])
	assert.InDelta(t, 2, f.Properties["cluster_id"], 0)
	assert.InDelta(t, 4, f.Properties["area"], 1e-12)
}

func TestWriteRegions(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRegions(&buf, []model.StabilityRegion{
		{RegionID: 0, Count: 3, Geom: square(0, 0, 1)},
	}))
	c := decode(t, buf.Bytes())
	require.Len(t, c.Features, 1)
	assert.Equal(t, "Polygon", c.Features[0].Geometry["type"])
	assert.InDelta(t, 3, c.Features[0].Properties["count"], 0)
}

func TestWriteUnits(t *testing.T) {
	units := []model.ArealUnit{
		{ID: 1, Name: "a", Geom: geometry.MultiPolygon{square(0, 0, 1)}, IncidentCount: 4, RoadLength: 2},
		{ID: 2, Name: "b", Geom: geometry.MultiPolygon{square(1, 0, 1)}},
	}
	stats := []model.UnitStat{
		{UnitID: 1, I: 0.8, P: 0.01, Significant: true, Quadrant: model.QuadrantHH, Neighbors: 1},
		{UnitID: 2, I: math.NaN(), P: 1, Quadrant: model.QuadrantNS},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteUnits(&buf, units, stats))
	c := decode(t, buf.Bytes())
	require.Len(t, c.Features, 2)

	assert.Equal(t, "1", c.Features[0].ID)
	assert.Equal(t, "HH", c.Features[0].Properties["quadrant"])
	assert.Equal(t, true, c.Features[0].Properties["significant"])
	assert.InDelta(t, 2, c.Features[0].Properties["rate"], 1e-12)

	assert.Nil(t, c.Features[1].Properties["lisa_i"])
	assert.Equal(t, "NS", c.Features[1].Properties["quadrant"])
}

func TestIncidentsRoundTrip(t *testing.T) {
	in := []model.Incident{
		{ID: 7, X: 10.25, Y: -3.5, OccurredAt: time.Date(2021, 6, 1, 8, 0, 0, 0, time.UTC)},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteIncidents(&buf, in))
	out, dropped, err := ReadIncidents(&buf)
	require.NoError(t, err)
	assert.Empty(t, dropped)
	assert.Equal(t, in, out)
}

func TestWKBRoundTrip(t *testing.T) {
	m := geometry.MultiPolygon{
		geometry.Polygon{square(0, 0, 4)[0], square(1, 1, 1)[0].Reverse()},
		square(10, 10, 1),
	}

	data, err := EWKB(m.ToGeom())
	require.NoError(t, err)
	back, err := DecodeEWKB(data)
	require.NoError(t, err)
	assert.Equal(t, m, back)

	data, err = WKB(m.ToGeom())
	require.NoError(t, err)
	back, err = DecodeWKB(data)
	require.NoError(t, err)
	assert.Equal(t, m, back)

	_, err = DecodeWKB([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestShapefileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "footprints.shp")

	donut := geometry.Polygon{square(0, 0, 4)[0], square(1, 1, 1)[0].Reverse()}
	fps := []model.Footprint{
		{Period: "2023", ClusterID: 0, Points: 12, Geom: geometry.MultiPolygon{donut}},
		{Period: "2023", ClusterID: 1, Points: 5, Geom: geometry.MultiPolygon{square(10, 0, 1), square(12, 0, 1)}},
	}
	require.NoError(t, WriteFootprintsShapefile(path, fps))

	// Read back as units keyed by the CLUSTER attribute.
	units, dropped, err := ReadUnitsShapefile(path, ShapefileFields{ID: "cluster", IncidentCount: "points"})
	require.NoError(t, err)
	assert.Empty(t, dropped)
	require.Len(t, units, 2)

	assert.Equal(t, int64(0), units[0].ID)
	assert.Equal(t, 12, units[0].IncidentCount)
	require.Len(t, units[0].Geom, 1)
	require.Len(t, units[0].Geom[0], 2)
	assert.InDelta(t, 15.0, units[0].Geom.Area(), 1e-9)
	assert.Greater(t, units[0].Geom[0][0].SignedArea(), 0.0)

	assert.Len(t, units[1].Geom, 2)
}

func TestReadUnitsShapefile_MissingIDField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "u.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("NAME", 10)}))
	w.Close()

	_, _, err = ReadUnitsShapefile(path, DefaultShapefileFields)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no "id" field`)
}

func TestReadUnitsFile_Dispatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "units.geojson")
	require.NoError(t, WriteFile(path, func(w io.Writer) error {
		_, err := w.Write([]byte(unitsJSON))
		return err
	}))
	units, _, err := ReadUnitsFile(path)
	require.NoError(t, err)
	assert.Len(t, units, 2)

	_, _, err = ReadUnitsFile(filepath.Join(dir, "missing.geojson"))
	assert.Error(t, err)
}
