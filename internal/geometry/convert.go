package geometry

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// FromGeom converts a go-geom polygon or multipolygon into a MultiPolygon.
// Rings are cleaned of their closing vertex; non-finite coordinates are
// rejected.
func FromGeom(g geom.T) (MultiPolygon, error) {
	switch t := g.(type) {
	case nil:
		return nil, eris.New("geometry: nil geometry")
	case *geom.Polygon:
		p, err := polygonFromGeom(t)
		if err != nil {
			return nil, err
		}
		return MultiPolygon{p}, nil
	case *geom.MultiPolygon:
		out := make(MultiPolygon, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			p, err := polygonFromGeom(t.Polygon(i))
			if err != nil {
				return nil, eris.Wrapf(err, "geometry: part %d", i)
			}
			if len(p) > 0 {
				out = append(out, p)
			}
		}
		return out, nil
	default:
		return nil, eris.Errorf("geometry: unsupported geometry type %T", g)
	}
}

func polygonFromGeom(p *geom.Polygon) (Polygon, error) {
	out := make(Polygon, 0, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		coords := p.LinearRing(i).Coords()
		r := make(Ring, 0, len(coords))
		for _, c := range coords {
			pt := Point{X: c.X(), Y: c.Y()}
			if !pt.Finite() {
				return nil, eris.Wrapf(ErrInvalid, "ring %d has a non-finite coordinate", i)
			}
			r = append(r, pt)
		}
		out = append(out, r.Clean())
	}
	return out, nil
}

func ringCoords(r Ring) []geom.Coord {
	coords := make([]geom.Coord, 0, len(r)+1)
	for _, p := range r {
		coords = append(coords, geom.Coord{p.X, p.Y})
	}
	if len(r) > 0 {
		coords = append(coords, geom.Coord{r[0].X, r[0].Y})
	}
	return coords
}

// ToGeom converts the polygon into a closed-ring go-geom polygon.
func (p Polygon) ToGeom() *geom.Polygon {
	rings := make([][]geom.Coord, len(p))
	for i, r := range p {
		rings[i] = ringCoords(r)
	}
	return geom.NewPolygon(geom.XY).MustSetCoords(rings)
}

// ToGeom converts the multipolygon into a closed-ring go-geom multipolygon.
func (m MultiPolygon) ToGeom() *geom.MultiPolygon {
	polys := make([][][]geom.Coord, len(m))
	for i, p := range m {
		polys[i] = make([][]geom.Coord, len(p))
		for j, r := range p {
			polys[i][j] = ringCoords(r)
		}
	}
	return geom.NewMultiPolygon(geom.XY).MustSetCoords(polys)
}
