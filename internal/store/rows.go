package store

import (
	"database/sql"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/hotspot-cli/internal/db"
	"github.com/sells-group/hotspot-cli/internal/geometry"
	"github.com/sells-group/hotspot-cli/internal/model"
)

type encodeFunc func(geom.T) ([]byte, error)

type decodeFunc func([]byte) (geometry.MultiPolygon, error)

var (
	incidentColumns  = []string{"id", "occurred_at", "geom"}
	unitColumns      = []string{"id", "name", "incident_count", "road_length", "geom"}
	allTimeColumns   = []string{"cluster_id", "points", "run_id", "geom"}
	periodColumns    = []string{"period", "cluster_id", "points", "run_id", "geom"}
	stabilityColumns = []string{"region_id", "stability_count", "run_id", "geom"}
	unitStatColumns  = []string{
		"unit_id", "name", "incident_count", "rate", "lisa_i", "lisa_p",
		"significant", "quadrant", "neighbors", "run_id", "geom",
	}
	weeklyColumns = []string{"unit_id", "week", "incident_count", "run_id"}
)

// outputTables builds the replacement contents of every output table the
// result's mode includes.
func outputTables(res *model.Result, enc encodeFunc) ([]db.Table, error) {
	if res == nil {
		return nil, eris.New("store: nil result")
	}
	var tables []db.Table

	if res.Mode.Includes(model.RunModeClusters) {
		allTime := make([][]any, 0, len(res.AllTime))
		for _, fp := range res.AllTime {
			g, err := enc(fp.Geom.ToGeom())
			if err != nil {
				return nil, eris.Wrapf(err, "store: encode footprint %d", fp.ClusterID)
			}
			allTime = append(allTime, []any{fp.ClusterID, fp.Points, res.RunID, g})
		}
		periods := make([][]any, 0, len(res.Periods))
		for _, fp := range res.Periods {
			g, err := enc(fp.Geom.ToGeom())
			if err != nil {
				return nil, eris.Wrapf(err, "store: encode footprint %s/%d", fp.Period, fp.ClusterID)
			}
			periods = append(periods, []any{fp.Period, fp.ClusterID, fp.Points, res.RunID, g})
		}
		regions := make([][]any, 0, len(res.Regions))
		for _, r := range res.Regions {
			g, err := enc(r.Geom.ToGeom())
			if err != nil {
				return nil, eris.Wrapf(err, "store: encode region %d", r.RegionID)
			}
			regions = append(regions, []any{r.RegionID, r.Count, res.RunID, g})
		}
		tables = append(tables,
			db.Table{Name: TableAllTime, Columns: allTimeColumns, Rows: allTime},
			db.Table{Name: TablePeriods, Columns: periodColumns, Rows: periods},
			db.Table{Name: TableStability, Columns: stabilityColumns, Rows: regions},
		)
	}

	if res.Mode.Includes(model.RunModeLISA) {
		units := make(map[int64]model.ArealUnit, len(res.Units))
		for _, u := range res.Units {
			units[u.ID] = u
		}
		stats := make([][]any, 0, len(res.Stats))
		for _, s := range res.Stats {
			u, ok := units[s.UnitID]
			if !ok {
				return nil, eris.Errorf("store: stat for unknown unit %d", s.UnitID)
			}
			g, err := enc(u.Geom.ToGeom())
			if err != nil {
				return nil, eris.Wrapf(err, "store: encode unit %d", u.ID)
			}
			stats = append(stats, []any{
				u.ID, u.Name, u.IncidentCount, u.Rate(), nullFloat(s.I), nullFloat(s.P),
				s.Significant, s.Label(), s.Neighbors, res.RunID, g,
			})
		}
		tables = append(tables, db.Table{Name: TableUnitStats, Columns: unitStatColumns, Rows: stats})
	}

	if res.HasWeekly {
		weekly := make([][]any, 0, len(res.Weekly))
		for _, w := range res.Weekly {
			weekly = append(weekly, []any{w.UnitID, w.Week, w.Count, res.RunID})
		}
		tables = append(tables, db.Table{Name: TableWeekly, Columns: weeklyColumns, Rows: weekly})
	}
	return tables, nil
}

func incidentRows(incidents []model.Incident, enc encodeFunc) ([][]any, error) {
	rows := make([][]any, 0, len(incidents))
	for _, inc := range incidents {
		g, err := enc(geom.NewPointFlat(geom.XY, []float64{inc.X, inc.Y}))
		if err != nil {
			return nil, eris.Wrapf(err, "store: encode incident %d", inc.ID)
		}
		rows = append(rows, []any{inc.ID, inc.OccurredAt.UTC(), g})
	}
	return rows, nil
}

func unitRows(units []model.ArealUnit, enc encodeFunc) ([][]any, error) {
	rows := make([][]any, 0, len(units))
	for _, u := range units {
		g, err := enc(u.Geom.ToGeom())
		if err != nil {
			return nil, eris.Wrapf(err, "store: encode unit %d", u.ID)
		}
		rows = append(rows, []any{u.ID, u.Name, u.IncidentCount, u.RoadLength, g})
	}
	return rows, nil
}

func nullFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

func floatOrNaN(f sql.NullFloat64) float64 {
	if !f.Valid {
		return math.NaN()
	}
	return f.Float64
}

func parseQuadrant(label string) model.Quadrant {
	for q := model.QuadrantNS; q <= model.QuadrantHL; q++ {
		if q.String() == label {
			return q
		}
	}
	return model.QuadrantNS
}

// runRow is the stored form of a run, shared by both backends.
type runRow struct {
	ID         string         `db:"id"`
	Mode       string         `db:"mode"`
	Status     string         `db:"status"`
	Seed       string         `db:"seed"`
	Error      sql.NullString `db:"error"`
	Summary    []byte         `db:"summary"`
	StartedAt  time.Time      `db:"started_at"`
	FinishedAt sql.NullTime   `db:"finished_at"`
}

func newRunRow(run *model.Run) (runRow, error) {
	r := runRow{
		ID:        run.ID,
		Mode:      string(run.Mode),
		Status:    string(run.Status),
		Seed:      strconv.FormatUint(run.Seed, 10),
		Error:     sql.NullString{String: run.Error, Valid: run.Error != ""},
		StartedAt: run.StartedAt.UTC(),
	}
	if run.FinishedAt != nil {
		r.FinishedAt = sql.NullTime{Time: run.FinishedAt.UTC(), Valid: true}
	}
	if run.Summary != nil {
		data, err := json.Marshal(run.Summary)
		if err != nil {
			return r, eris.Wrap(err, "store: marshal summary")
		}
		r.Summary = data
	}
	return r, nil
}

func (r runRow) run() (model.Run, error) {
	run := model.Run{
		ID:        r.ID,
		Mode:      model.RunMode(r.Mode),
		Status:    model.RunStatus(r.Status),
		Error:     r.Error.String,
		StartedAt: r.StartedAt.UTC(),
	}
	if r.Seed != "" {
		seed, err := strconv.ParseUint(r.Seed, 10, 64)
		if err != nil {
			return run, eris.Wrapf(err, "store: parse seed of run %s", r.ID)
		}
		run.Seed = seed
	}
	if r.FinishedAt.Valid {
		t := r.FinishedAt.Time.UTC()
		run.FinishedAt = &t
	}
	if len(r.Summary) > 0 {
		run.Summary = &model.Summary{}
		if err := json.Unmarshal(r.Summary, run.Summary); err != nil {
			return run, eris.Wrapf(err, "store: unmarshal summary of run %s", r.ID)
		}
	}
	return run, nil
}
