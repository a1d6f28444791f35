package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hotspot-cli/internal/db"
	"github.com/sells-group/hotspot-cli/internal/geoio"
	"github.com/sells-group/hotspot-cli/internal/geometry"
	"github.com/sells-group/hotspot-cli/internal/model"
	"github.com/sells-group/hotspot-cli/internal/resilience"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationLockID serializes concurrent migrate runs.
const migrationLockID = 7401300

// PostgresStore implements Store on PostGIS using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = min(minConns, maxConns)
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := resilience.Do(ctx, resilience.DefaultPolicy("postgres.ping"), pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// Migrate applies pending embedded migrations in lexicographic order under
// an advisory lock.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "postgres: acquire migration advisory lock")
	}
	defer func() {
		if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Warn("postgres: failed to release migration advisory lock", zap.Error(err))
		}
	}()

	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename   TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return eris.Wrap(err, "postgres: ensure migration table")
	}

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return eris.Wrap(err, "postgres: read migration dir")
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if applied[name] {
			continue
		}
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return eris.Wrapf(err, "postgres: read migration %s", name)
		}
		log.Info("applying migration", zap.String("file", name))
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "postgres: apply migration %s", name)
		}
		if _, err := s.pool.Exec(ctx,
			"INSERT INTO schema_migrations (filename, applied_at) VALUES ($1, now())", name,
		); err != nil {
			return eris.Wrapf(err, "postgres: record migration %s", name)
		}
	}
	return nil
}

func (s *PostgresStore) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan migration row")
		}
		applied[name] = true
	}
	return applied, eris.Wrap(rows.Err(), "postgres: iterate migrations")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) LoadIncidents(ctx context.Context) ([]model.Incident, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, occurred_at, ST_X(geom), ST_Y(geom) FROM incidents ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load incidents")
	}
	defer rows.Close()

	var out []model.Incident
	for rows.Next() {
		var inc model.Incident
		if err := rows.Scan(&inc.ID, &inc.OccurredAt, &inc.X, &inc.Y); err != nil {
			return nil, eris.Wrap(err, "postgres: scan incident")
		}
		inc.OccurredAt = inc.OccurredAt.UTC()
		out = append(out, inc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate incidents")
}

func (s *PostgresStore) LoadUnits(ctx context.Context) ([]model.ArealUnit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, incident_count, road_length, ST_AsEWKB(geom) FROM areal_units ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load units")
	}
	defer rows.Close()

	var out []model.ArealUnit
	for rows.Next() {
		var u model.ArealUnit
		var data []byte
		if err := rows.Scan(&u.ID, &u.Name, &u.IncidentCount, &u.RoadLength, &data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan unit")
		}
		u.Geom = decodeUnit(u.ID, data, geoio.DecodeEWKB)
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate units")
}

// decodeUnit returns nil geometry for undecodable rows; the engine drops
// such units and reports them.
func decodeUnit(id int64, data []byte, dec decodeFunc) geometry.MultiPolygon {
	g, err := dec(data)
	if err != nil {
		zap.L().Warn("store: undecodable unit geometry", zap.Int64("unit_id", id), zap.Error(err))
		return nil
	}
	return g
}

func (s *PostgresStore) SaveIncidents(ctx context.Context, incidents []model.Incident) (int64, error) {
	rows, err := incidentRows(incidents, geoio.EWKB)
	if err != nil {
		return 0, err
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        TableIncidents,
		Columns:      incidentColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	return n, eris.Wrap(err, "postgres: save incidents")
}

func (s *PostgresStore) SaveUnits(ctx context.Context, units []model.ArealUnit) (int64, error) {
	rows, err := unitRows(units, geoio.EWKB)
	if err != nil {
		return 0, err
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        TableUnits,
		Columns:      unitColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	return n, eris.Wrap(err, "postgres: save units")
}

func (s *PostgresStore) SaveResult(ctx context.Context, res *model.Result) error {
	tables, err := outputTables(res, geoio.EWKB)
	if err != nil {
		return err
	}
	if _, err := db.ReplaceTables(ctx, s.pool, tables); err != nil {
		return eris.Wrapf(err, "postgres: save result %s", res.RunID)
	}
	return nil
}

func (s *PostgresStore) LoadResult(ctx context.Context) (*model.Result, error) {
	res := &model.Result{Mode: model.RunModeAll}

	rows, err := s.pool.Query(ctx,
		`SELECT cluster_id, points, run_id, ST_AsEWKB(geom) FROM crnt_clstr_ftprnt ORDER BY cluster_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load all-time footprints")
	}
	err = collect(rows, func(r pgx.Rows) error {
		fp := model.Footprint{Period: model.AllTime}
		var data []byte
		if err := r.Scan(&fp.ClusterID, &fp.Points, &res.RunID, &data); err != nil {
			return err
		}
		g, err := geoio.DecodeEWKB(data)
		fp.Geom = g
		res.AllTime = append(res.AllTime, fp)
		return err
	})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: read all-time footprints")
	}

	rows, err = s.pool.Query(ctx,
		`SELECT period, cluster_id, points, ST_AsEWKB(geom) FROM clstr_ts_ftprnt ORDER BY period, cluster_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load period footprints")
	}
	err = collect(rows, func(r pgx.Rows) error {
		var fp model.Footprint
		var data []byte
		if err := r.Scan(&fp.Period, &fp.ClusterID, &fp.Points, &data); err != nil {
			return err
		}
		g, err := geoio.DecodeEWKB(data)
		fp.Geom = g
		res.Periods = append(res.Periods, fp)
		return err
	})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: read period footprints")
	}

	rows, err = s.pool.Query(ctx,
		`SELECT region_id, stability_count, ST_AsEWKB(geom) FROM clstr_union_ftprnt ORDER BY region_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load stability regions")
	}
	err = collect(rows, func(r pgx.Rows) error {
		var reg model.StabilityRegion
		var data []byte
		if err := r.Scan(&reg.RegionID, &reg.Count, &data); err != nil {
			return err
		}
		g, err := geoio.DecodeEWKB(data)
		if err == nil && len(g) > 0 {
			reg.Geom = g[0]
		}
		res.Regions = append(res.Regions, reg)
		return err
	})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: read stability regions")
	}

	rows, err = s.pool.Query(ctx,
		`SELECT unit_id, name, incident_count, rate, lisa_i, lisa_p, significant, quadrant, neighbors, ST_AsEWKB(geom)
		FROM ctu_lisa ORDER BY unit_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load unit stats")
	}
	err = collect(rows, func(r pgx.Rows) error {
		var u model.ArealUnit
		var st model.UnitStat
		var rate float64
		var i, p sql.NullFloat64
		var quadrant string
		var data []byte
		if err := r.Scan(&u.ID, &u.Name, &u.IncidentCount, &rate, &i, &p,
			&st.Significant, &quadrant, &st.Neighbors, &data); err != nil {
			return err
		}
		g, err := geoio.DecodeEWKB(data)
		u.Geom = g
		st.UnitID, st.Value = u.ID, rate
		st.I, st.P = floatOrNaN(i), floatOrNaN(p)
		st.Quadrant = parseQuadrant(quadrant)
		res.Units = append(res.Units, u)
		res.Stats = append(res.Stats, st)
		return err
	})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: read unit stats")
	}
	return res, nil
}

// collect iterates rows, closing them when done.
func collect(rows pgx.Rows, fn func(pgx.Rows) error) error {
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *PostgresStore) RecordRun(ctx context.Context, run *model.Run) error {
	r, err := newRunRow(run)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO analysis_runs (id, mode, status, seed, error, summary, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			seed = EXCLUDED.seed,
			error = EXCLUDED.error,
			summary = EXCLUDED.summary,
			finished_at = EXCLUDED.finished_at`,
		r.ID, r.Mode, r.Status, r.Seed, r.Error, r.Summary, r.StartedAt, r.FinishedAt,
	)
	return eris.Wrapf(err, "postgres: record run %s", run.ID)
}

const runSelect = `SELECT id, mode, status, seed, error, summary, started_at, finished_at FROM analysis_runs`

func scanRunRow(row pgx.Row) (model.Run, error) {
	var r runRow
	if err := row.Scan(&r.ID, &r.Mode, &r.Status, &r.Seed, &r.Error, &r.Summary, &r.StartedAt, &r.FinishedAt); err != nil {
		return model.Run{}, err
	}
	return r.run()
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	run, err := scanRunRow(s.pool.QueryRow(ctx, runSelect+` WHERE id = $1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return &run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := runSelect + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Mode != "" {
		query += fmt.Sprintf(` AND mode = $%d`, argIdx)
		args = append(args, string(filter.Mode))
		argIdx++
	}
	if !filter.StartedAfter.IsZero() {
		query += fmt.Sprintf(` AND started_at >= $%d`, argIdx)
		args = append(args, filter.StartedAfter.UTC())
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRunRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) LoadWeekly(ctx context.Context) ([]model.WeeklyCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT unit_id, week, incident_count FROM unit_weekly_counts ORDER BY unit_id, week`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load weekly counts")
	}
	var out []model.WeeklyCount
	err = collect(rows, func(r pgx.Rows) error {
		var w model.WeeklyCount
		if err := r.Scan(&w.UnitID, &w.Week, &w.Count); err != nil {
			return err
		}
		w.Week = w.Week.UTC()
		out = append(out, w)
		return nil
	})
	return out, eris.Wrap(err, "postgres: read weekly counts")
}

func (s *PostgresStore) PruneRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM analysis_runs WHERE status <> $1 AND started_at < $2`,
		string(model.RunStatusRunning), cutoff.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "postgres: prune runs")
	}
	return tag.RowsAffected(), nil
}
