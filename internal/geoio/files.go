package geoio

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hotspot-cli/internal/model"
)

// ReadIncidentsFile reads incidents from a GeoJSON file, or from a CSV or
// XLSX table selected by extension.
func ReadIncidentsFile(path string) ([]model.Incident, []model.DroppedFeature, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".xlsx" {
		return ReadIncidentsXLSX(path, "", DefaultTableColumns)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "geoio: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	if ext == ".csv" {
		return ReadIncidentsCSV(f, DefaultTableColumns)
	}
	return ReadIncidents(f)
}

// ReadUnitsFile reads units from a GeoJSON file, or from a shapefile when
// the path ends in .shp.
func ReadUnitsFile(path string) ([]model.ArealUnit, []model.DroppedFeature, error) {
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		return ReadUnitsShapefile(path, DefaultShapefileFields)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "geoio: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ReadUnits(f)
}

// WriteFile creates path, creating parent directories, and passes it to write.
func WriteFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "geoio: create directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "geoio: create %s", path)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "geoio: close %s", path)
}
