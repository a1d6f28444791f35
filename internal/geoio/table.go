package geoio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/hotspot-cli/internal/model"
)

// TableColumns names the header cells of a tabular incident file.
type TableColumns struct {
	ID         string
	X          string
	Y          string
	OccurredAt string
}

// DefaultTableColumns matches the GeoJSON property names.
var DefaultTableColumns = TableColumns{ID: "id", X: "x", Y: "y", OccurredAt: "occurred_at"}

// ReadIncidentsCSV reads incidents from a CSV table whose first row is a
// header. Rows that do not parse are dropped and reported.
func ReadIncidentsCSV(r io.Reader, cols TableColumns) ([]model.Incident, []model.DroppedFeature, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, eris.Wrap(err, "geoio: read csv row")
		}
		rows = append(rows, record)
	}
	return incidentsFromRows(rows, cols)
}

// ReadIncidentsXLSX reads incidents from the named sheet of a workbook, or
// the first sheet when sheet is empty.
func ReadIncidentsXLSX(path, sheet string, cols TableColumns) ([]model.Incident, []model.DroppedFeature, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "geoio: open xlsx")
	}
	var s *xlsx.Sheet
	switch {
	case sheet != "":
		var ok bool
		if s, ok = f.Sheet[sheet]; !ok {
			return nil, nil, eris.Errorf("geoio: sheet %q not found", sheet)
		}
	case len(f.Sheets) > 0:
		s = f.Sheets[0]
	default:
		return nil, nil, eris.New("geoio: workbook has no sheets")
	}

	rows := make([][]string, 0, len(s.Rows))
	for _, row := range s.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return incidentsFromRows(rows, cols)
}

func incidentsFromRows(rows [][]string, cols TableColumns) ([]model.Incident, []model.DroppedFeature, error) {
	if len(rows) == 0 {
		return nil, nil, eris.New("geoio: table has no header row")
	}
	index := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	pos := make([]int, 4)
	for k, name := range []string{cols.ID, cols.X, cols.Y, cols.OccurredAt} {
		i, ok := index[strings.ToLower(name)]
		if !ok {
			return nil, nil, eris.Errorf("geoio: no %q column", name)
		}
		pos[k] = i
	}

	var out []model.Incident
	var dropped []model.DroppedFeature
	for n, row := range rows[1:] {
		cell := func(k int) string {
			if pos[k] >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[pos[k]])
		}
		if isBlank(row) {
			continue
		}
		drop := func(id int64, reason string) {
			dropped = append(dropped, model.DroppedFeature{
				Stage: model.StageInput, ID: id, Reason: fmt.Sprintf("row %d: %s", n+2, reason),
			})
		}

		id, err := strconv.ParseInt(cell(0), 10, 64)
		if err != nil {
			drop(0, "missing or non-integer id")
			continue
		}
		x, xerr := strconv.ParseFloat(cell(1), 64)
		y, yerr := strconv.ParseFloat(cell(2), 64)
		if xerr != nil || yerr != nil {
			drop(id, "unparseable coordinates")
			continue
		}
		at, ok := parseTime(cell(3))
		if !ok {
			drop(id, "missing or unparseable occurred_at")
			continue
		}
		out = append(out, model.Incident{ID: id, X: x, Y: y, OccurredAt: at})
	}
	return out, dropped, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
