package geoio

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/sells-group/hotspot-cli/internal/geometry"
)

// EWKB encodes g for PostGIS. Coordinates are projected and carry no SRID.
func EWKB(g geom.T) ([]byte, error) {
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geoio: encode EWKB")
	}
	return data, nil
}

// WKB encodes g as ISO WKB for SQLite blobs.
func WKB(g geom.T) ([]byte, error) {
	data, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geoio: encode WKB")
	}
	return data, nil
}

// PointGeom returns a go-geom point.
func PointGeom(p geometry.Point) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{p.X, p.Y})
}

// DecodeEWKB decodes a PostGIS polygon or multipolygon.
func DecodeEWKB(data []byte) (geometry.MultiPolygon, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "geoio: decode EWKB")
	}
	return geometry.FromGeom(g)
}

// DecodeWKB decodes a WKB polygon or multipolygon.
func DecodeWKB(data []byte) (geometry.MultiPolygon, error) {
	g, err := wkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "geoio: decode WKB")
	}
	return geometry.FromGeom(g)
}
