// Package report writes run outputs as spreadsheet, YAML summary and GeoJSON
// files.
package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/hotspot-cli/internal/geoio"
	"github.com/sells-group/hotspot-cli/internal/model"
)

// Sheet names of the XLSX workbook.
const (
	SheetLISA       = "lisa"
	SheetFootprints = "footprints"
	SheetStability  = "stability"
	SheetDropped    = "dropped"
)

func addRow(sheet *xlsx.Sheet, values ...any) {
	row := sheet.AddRow()
	for _, v := range values {
		cell := row.AddCell()
		switch t := v.(type) {
		case string:
			cell.SetString(t)
		case int:
			cell.SetInt(t)
		case int64:
			cell.SetInt64(t)
		case float64:
			if math.IsNaN(t) || math.IsInf(t, 0) {
				cell.SetString("")
				continue
			}
			cell.SetFloat(t)
		case bool:
			cell.SetBool(t)
		default:
			cell.SetString(fmt.Sprint(t))
		}
	}
}

// Workbook builds the result workbook. Undefined statistics are left blank.
func Workbook(res *model.Result) (*xlsx.File, error) {
	if res == nil {
		return nil, eris.New("report: nil result")
	}
	f := xlsx.NewFile()

	lisa, err := f.AddSheet(SheetLISA)
	if err != nil {
		return nil, eris.Wrap(err, "report: add lisa sheet")
	}
	addRow(lisa, "unit_id", "name", "incident_count", "rate", "lisa_i", "lisa_p", "significant", "quadrant", "neighbors")
	names := make(map[int64]model.ArealUnit, len(res.Units))
	for _, u := range res.Units {
		names[u.ID] = u
	}
	for _, s := range res.Stats {
		u := names[s.UnitID]
		addRow(lisa, s.UnitID, u.Name, u.IncidentCount, s.Value, s.I, s.P, s.Significant, s.Label(), s.Neighbors)
	}

	fps, err := f.AddSheet(SheetFootprints)
	if err != nil {
		return nil, eris.Wrap(err, "report: add footprints sheet")
	}
	addRow(fps, "period", "cluster_id", "points", "area")
	for _, group := range [][]model.Footprint{res.AllTime, res.Periods} {
		for _, fp := range group {
			addRow(fps, fp.Period, fp.ClusterID, fp.Points, fp.Area())
		}
	}

	stab, err := f.AddSheet(SheetStability)
	if err != nil {
		return nil, eris.Wrap(err, "report: add stability sheet")
	}
	addRow(stab, "region_id", "stability_count", "area")
	for _, r := range res.Regions {
		addRow(stab, r.RegionID, r.Count, r.Geom.Area())
	}

	dropped, err := f.AddSheet(SheetDropped)
	if err != nil {
		return nil, eris.Wrap(err, "report: add dropped sheet")
	}
	addRow(dropped, "stage", "period", "id", "reason")
	if res.Summary != nil {
		for _, d := range res.Summary.Dropped {
			addRow(dropped, d.Stage, d.Period, d.ID, d.Reason)
		}
	}
	return f, nil
}

// WriteXLSX saves the result workbook to path.
func WriteXLSX(path string, res *model.Result) error {
	f, err := Workbook(res)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "report: create %s", dir)
		}
	}
	return eris.Wrapf(f.Save(path), "report: save %s", path)
}

// WriteSummary encodes the run summary as YAML.
func WriteSummary(w io.Writer, s *model.Summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return eris.Wrap(err, "report: encode summary")
	}
	return eris.Wrap(enc.Close(), "report: flush summary")
}

// ReadSummary decodes a YAML run summary.
func ReadSummary(r io.Reader) (*model.Summary, error) {
	var s model.Summary
	if err := yaml.NewDecoder(r).Decode(&s); err != nil {
		return nil, eris.Wrap(err, "report: decode summary")
	}
	return &s, nil
}

// GeoJSON file names written by WriteGeoJSON.
const (
	FileAllTime   = "crnt_clstr_ftprnt.geojson"
	FilePeriods   = "clstr_ts_ftprnt.geojson"
	FileStability = "clstr_union_ftprnt.geojson"
	FileUnits     = "ctu_lisa.geojson"
)

// WriteGeoJSON writes one FeatureCollection per output table into dir,
// skipping the tables of branches the result's mode excludes.
func WriteGeoJSON(dir string, res *model.Result) error {
	if res == nil {
		return eris.New("report: nil result")
	}
	var files []string
	write := func(name string, fn func(io.Writer) error) error {
		files = append(files, name)
		return geoio.WriteFile(filepath.Join(dir, name), fn)
	}
	if res.Mode.Includes(model.RunModeClusters) {
		if err := write(FileAllTime, func(w io.Writer) error { return geoio.WriteFootprints(w, res.AllTime) }); err != nil {
			return err
		}
		if err := write(FilePeriods, func(w io.Writer) error { return geoio.WriteFootprints(w, res.Periods) }); err != nil {
			return err
		}
		if err := write(FileStability, func(w io.Writer) error { return geoio.WriteRegions(w, res.Regions) }); err != nil {
			return err
		}
	}
	if res.Mode.Includes(model.RunModeLISA) {
		if err := write(FileUnits, func(w io.Writer) error { return geoio.WriteUnits(w, res.Units, res.Stats) }); err != nil {
			return err
		}
	}
	zap.L().Info("report: geojson written", zap.String("dir", dir), zap.Strings("files", files))
	return nil
}
