package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/hotspot-cli/internal/db"
	"github.com/sells-group/hotspot-cli/internal/geoio"
	"github.com/sells-group/hotspot-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Geometry is kept as
// WKB blobs.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	conn, err := sqlx.Open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single connection keeps in-memory databases shared and serializes writers.
	conn.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: conn}, nil
}

// sqliteDSN pins the write time format so stored timestamps sort as text.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_time_format=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_time_format=sqlite"
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS incidents (
	id          INTEGER PRIMARY KEY,
	occurred_at DATETIME NOT NULL,
	x           REAL NOT NULL,
	y           REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS areal_units (
	id             INTEGER PRIMARY KEY,
	name           TEXT NOT NULL DEFAULT '',
	incident_count INTEGER NOT NULL DEFAULT 0,
	road_length    REAL NOT NULL DEFAULT 0,
	geom           BLOB
);

CREATE TABLE IF NOT EXISTS crnt_clstr_ftprnt (
	cluster_id INTEGER NOT NULL,
	points     INTEGER NOT NULL,
	run_id     TEXT NOT NULL,
	geom       BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS clstr_ts_ftprnt (
	period     TEXT NOT NULL,
	cluster_id INTEGER NOT NULL,
	points     INTEGER NOT NULL,
	run_id     TEXT NOT NULL,
	geom       BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS clstr_union_ftprnt (
	region_id       INTEGER NOT NULL,
	stability_count INTEGER NOT NULL,
	run_id          TEXT NOT NULL,
	geom            BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS ctu_lisa (
	unit_id        INTEGER NOT NULL,
	name           TEXT NOT NULL DEFAULT '',
	incident_count INTEGER NOT NULL,
	rate           REAL NOT NULL,
	lisa_i         REAL,
	lisa_p         REAL,
	significant    BOOLEAN NOT NULL,
	quadrant       TEXT NOT NULL,
	neighbors      INTEGER NOT NULL,
	run_id         TEXT NOT NULL,
	geom           BLOB
);

CREATE TABLE IF NOT EXISTS unit_weekly_counts (
	unit_id        INTEGER NOT NULL,
	week           DATETIME NOT NULL,
	incident_count INTEGER NOT NULL,
	run_id         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS analysis_runs (
	id          TEXT PRIMARY KEY,
	mode        TEXT NOT NULL,
	status      TEXT NOT NULL,
	seed        TEXT NOT NULL DEFAULT '0',
	error       TEXT,
	summary     TEXT,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_incidents_occurred_at ON incidents(occurred_at);
CREATE INDEX IF NOT EXISTS idx_analysis_runs_status ON analysis_runs(status);
CREATE INDEX IF NOT EXISTS idx_analysis_runs_started_at ON analysis_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadIncidents(ctx context.Context) ([]model.Incident, error) {
	var out []model.Incident
	err := s.db.SelectContext(ctx, &out, `SELECT id, occurred_at, x, y FROM incidents ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load incidents")
	}
	for i := range out {
		out[i].OccurredAt = out[i].OccurredAt.UTC()
	}
	return out, nil
}

type unitRow struct {
	ID            int64   `db:"id"`
	Name          string  `db:"name"`
	IncidentCount int     `db:"incident_count"`
	RoadLength    float64 `db:"road_length"`
	Geom          []byte  `db:"geom"`
}

func (s *SQLiteStore) LoadUnits(ctx context.Context) ([]model.ArealUnit, error) {
	var rows []unitRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, name, incident_count, road_length, geom FROM areal_units ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load units")
	}
	out := make([]model.ArealUnit, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.ArealUnit{
			ID:            r.ID,
			Name:          r.Name,
			IncidentCount: r.IncidentCount,
			RoadLength:    r.RoadLength,
			Geom:          decodeUnit(r.ID, r.Geom, geoio.DecodeWKB),
		})
	}
	return out, nil
}

func (s *SQLiteStore) SaveIncidents(ctx context.Context, incidents []model.Incident) (int64, error) {
	rows := make([][]any, 0, len(incidents))
	for _, inc := range incidents {
		rows = append(rows, []any{inc.ID, inc.OccurredAt.UTC(), inc.X, inc.Y})
	}
	n, err := s.upsert(ctx, TableIncidents, []string{"id", "occurred_at", "x", "y"}, rows)
	return n, eris.Wrap(err, "sqlite: save incidents")
}

func (s *SQLiteStore) SaveUnits(ctx context.Context, units []model.ArealUnit) (int64, error) {
	rows, err := unitRows(units, geoio.WKB)
	if err != nil {
		return 0, err
	}
	n, err := s.upsert(ctx, TableUnits, unitColumns, rows)
	return n, eris.Wrap(err, "sqlite: save units")
}

// upsert writes rows keyed on the table's id column in one transaction.
func (s *SQLiteStore) upsert(ctx context.Context, table string, cols []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "begin")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PreparexContext(ctx, "INSERT OR REPLACE INTO "+table+
		" ("+strings.Join(cols, ", ")+") VALUES ("+placeholders(len(cols))+")")
	if err != nil {
		return 0, eris.Wrapf(err, "prepare %s", table)
	}
	defer stmt.Close() //nolint:errcheck

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, eris.Wrapf(err, "insert %s", table)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "commit")
	}
	return int64(len(rows)), nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// SaveResult replaces every output table of the result in one transaction.
func (s *SQLiteStore) SaveResult(ctx context.Context, res *model.Result) error {
	tables, err := outputTables(res, geoio.WKB)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save result")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, t := range tables {
		if err := replaceTable(ctx, tx, t); err != nil {
			return eris.Wrapf(err, "sqlite: save result %s", res.RunID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save result")
}

func replaceTable(ctx context.Context, tx *sqlx.Tx, t db.Table) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+t.Name); err != nil {
		return eris.Wrapf(err, "clear %s", t.Name)
	}
	if len(t.Rows) == 0 {
		return nil
	}
	stmt, err := tx.PreparexContext(ctx, "INSERT INTO "+t.Name+
		" ("+strings.Join(t.Columns, ", ")+") VALUES ("+placeholders(len(t.Columns))+")")
	if err != nil {
		return eris.Wrapf(err, "prepare %s", t.Name)
	}
	defer stmt.Close() //nolint:errcheck
	for _, row := range t.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return eris.Wrapf(err, "insert %s", t.Name)
		}
	}
	return nil
}

type footprintRow struct {
	Period    string `db:"period"`
	ClusterID int    `db:"cluster_id"`
	Points    int    `db:"points"`
	RunID     string `db:"run_id"`
	Geom      []byte `db:"geom"`
}

type regionRow struct {
	RegionID int    `db:"region_id"`
	Count    int    `db:"stability_count"`
	Geom     []byte `db:"geom"`
}

type unitStatRow struct {
	UnitID        int64           `db:"unit_id"`
	Name          string          `db:"name"`
	IncidentCount int             `db:"incident_count"`
	Rate          float64         `db:"rate"`
	I             sql.NullFloat64 `db:"lisa_i"`
	P             sql.NullFloat64 `db:"lisa_p"`
	Significant   bool            `db:"significant"`
	Quadrant      string          `db:"quadrant"`
	Neighbors     int             `db:"neighbors"`
	Geom          []byte          `db:"geom"`
}

func (s *SQLiteStore) LoadResult(ctx context.Context) (*model.Result, error) {
	res := &model.Result{Mode: model.RunModeAll}

	var allTime []footprintRow
	if err := s.db.SelectContext(ctx, &allTime,
		`SELECT ? AS period, cluster_id, points, run_id, geom FROM crnt_clstr_ftprnt ORDER BY cluster_id`,
		model.AllTime); err != nil {
		return nil, eris.Wrap(err, "sqlite: load all-time footprints")
	}
	var periods []footprintRow
	if err := s.db.SelectContext(ctx, &periods,
		`SELECT period, cluster_id, points, run_id, geom FROM clstr_ts_ftprnt ORDER BY period, cluster_id`); err != nil {
		return nil, eris.Wrap(err, "sqlite: load period footprints")
	}
	for _, group := range []struct {
		rows []footprintRow
		dst  *[]model.Footprint
	}{{allTime, &res.AllTime}, {periods, &res.Periods}} {
		for _, r := range group.rows {
			g, err := geoio.DecodeWKB(r.Geom)
			if err != nil {
				return nil, eris.Wrapf(err, "sqlite: decode footprint %s/%d", r.Period, r.ClusterID)
			}
			res.RunID = r.RunID
			*group.dst = append(*group.dst, model.Footprint{
				Period: r.Period, ClusterID: r.ClusterID, Points: r.Points, Geom: g,
			})
		}
	}

	var regions []regionRow
	if err := s.db.SelectContext(ctx, &regions,
		`SELECT region_id, stability_count, geom FROM clstr_union_ftprnt ORDER BY region_id`); err != nil {
		return nil, eris.Wrap(err, "sqlite: load stability regions")
	}
	for _, r := range regions {
		g, err := geoio.DecodeWKB(r.Geom)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode region %d", r.RegionID)
		}
		reg := model.StabilityRegion{RegionID: r.RegionID, Count: r.Count}
		if len(g) > 0 {
			reg.Geom = g[0]
		}
		res.Regions = append(res.Regions, reg)
	}

	var stats []unitStatRow
	if err := s.db.SelectContext(ctx, &stats,
		`SELECT unit_id, name, incident_count, rate, lisa_i, lisa_p, significant, quadrant, neighbors, geom
		FROM ctu_lisa ORDER BY unit_id`); err != nil {
		return nil, eris.Wrap(err, "sqlite: load unit stats")
	}
	for _, r := range stats {
		u := model.ArealUnit{ID: r.UnitID, Name: r.Name, IncidentCount: r.IncidentCount}
		if len(r.Geom) > 0 {
			g, err := geoio.DecodeWKB(r.Geom)
			if err != nil {
				return nil, eris.Wrapf(err, "sqlite: decode unit %d", r.UnitID)
			}
			u.Geom = g
		}
		res.Units = append(res.Units, u)
		res.Stats = append(res.Stats, model.UnitStat{
			UnitID:      r.UnitID,
			Value:       r.Rate,
			I:           floatOrNaN(r.I),
			P:           floatOrNaN(r.P),
			Significant: r.Significant,
			Quadrant:    parseQuadrant(r.Quadrant),
			Neighbors:   r.Neighbors,
		})
	}
	return res, nil
}

// LoadWeekly returns the stored weekly series ordered by unit and week.
func (s *SQLiteStore) LoadWeekly(ctx context.Context) ([]model.WeeklyCount, error) {
	var out []model.WeeklyCount
	err := s.db.SelectContext(ctx, &out,
		`SELECT unit_id, week, incident_count AS count FROM unit_weekly_counts ORDER BY unit_id, week`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load weekly counts")
	}
	for i := range out {
		out[i].Week = out[i].Week.UTC()
	}
	return out, nil
}

func (s *SQLiteStore) RecordRun(ctx context.Context, run *model.Run) error {
	r, err := newRunRow(run)
	if err != nil {
		return err
	}
	var summary sql.NullString
	if r.Summary != nil {
		summary = sql.NullString{String: string(r.Summary), Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analysis_runs (id, mode, status, seed, error, summary, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			seed = excluded.seed,
			error = excluded.error,
			summary = excluded.summary,
			finished_at = excluded.finished_at`,
		r.ID, r.Mode, r.Status, r.Seed, r.Error, summary, r.StartedAt, r.FinishedAt,
	)
	return eris.Wrapf(err, "sqlite: record run %s", run.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r runRow
	err := s.db.GetContext(ctx, &r, runSelect+` WHERE id = ?`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	run, err := r.run()
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := runSelect + ` WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Mode != "" {
		query += ` AND mode = ?`
		args = append(args, string(filter.Mode))
	}
	if !filter.StartedAfter.IsZero() {
		query += ` AND started_at >= ?`
		args = append(args, filter.StartedAfter.UTC())
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, filter.limit())
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	runs := make([]model.Run, 0, len(rows))
	for _, r := range rows {
		run, err := r.run()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// PruneRuns deletes finished runs that started before cutoff.
func (s *SQLiteStore) PruneRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM analysis_runs WHERE status != ? AND started_at < ?`,
		string(model.RunStatusRunning), cutoff.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune runs")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: prune runs rows affected")
}
