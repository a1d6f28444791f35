package store

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hotspot-cli/internal/geoio"
	"github.com/sells-group/hotspot-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var runCols = []string{"id", "mode", "status", "seed", "error", "summary", "started_at", "finished_at"}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, mode, status, seed, error, summary, started_at, finished_at FROM analysis_runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	started := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	finished := started.Add(time.Minute)

	mock.ExpectQuery(`FROM analysis_runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runCols).AddRow(
			"run-1", "all", "complete", "18446744073709551615", nil,
			[]byte(`{"run_id":"run-1","clusters":4}`), started, finished,
		))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, uint64(math.MaxUint64), run.Seed)
	require.NotNil(t, run.FinishedAt)
	assert.True(t, run.FinishedAt.Equal(finished))
	require.NotNil(t, run.Summary)
	assert.Equal(t, 4, run.Summary.Clusters)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	started := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO analysis_runs .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("run-1", "lisa", "running", "42", pgxmock.AnyArg(), pgxmock.AnyArg(), started, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.RecordRun(context.Background(), &model.Run{
		ID: "run-1", Mode: model.RunModeLISA, Status: model.RunStatusRunning, Seed: 42, StartedAt: started,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordRun_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO analysis_runs`).WillReturnError(fmt.Errorf("conn reset"))

	err := s.RecordRun(context.Background(), &model.Run{ID: "run-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record run run-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	after := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE true AND status = \$1 AND mode = \$2 AND started_at >= \$3 ORDER BY started_at DESC LIMIT \$4 OFFSET \$5`).
		WithArgs("failed", "clusters", after, 10, 5).
		WillReturnRows(pgxmock.NewRows(runCols).
			AddRow("b", "clusters", "failed", "1", "boom", nil, after.Add(2*time.Hour), nil).
			AddRow("a", "clusters", "failed", "2", "bust", nil, after.Add(time.Hour), nil))

	runs, err := s.ListRuns(context.Background(), RunFilter{
		Status: model.RunStatusFailed, Mode: model.RunModeClusters, StartedAfter: after, Limit: 10, Offset: 5,
	})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "boom", runs[0].Error)
	assert.Nil(t, runs[0].FinishedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`WHERE true ORDER BY started_at DESC LIMIT \$1$`).
		WithArgs(defaultRunLimit).
		WillReturnRows(pgxmock.NewRows(runCols))

	runs, err := s.ListRuns(context.Background(), RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadIncidents(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2023, 6, 1, 0, 0, 0, 0, time.FixedZone("x", 3600))

	mock.ExpectQuery(`SELECT id, occurred_at, ST_X\(geom\), ST_Y\(geom\) FROM incidents`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "occurred_at", "x", "y"}).
			AddRow(int64(1), at, 1.5, 2.5))

	got, err := s.LoadIncidents(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1.5, got[0].X)
	assert.Equal(t, time.UTC, got[0].OccurredAt.Location())
	assert.Equal(t, "2023", got[0].Period())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadUnits(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	good, err := geoio.EWKB(square(0, 0, 1).ToGeom())
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id, name, incident_count, road_length, ST_AsEWKB\(geom\) FROM areal_units`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "incident_count", "road_length", "geom"}).
			AddRow(int64(1), "a", 3, 2.0, good).
			AddRow(int64(2), "b", 0, 0.0, []byte{0x01}))

	got, err := s.LoadUnits(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 1.0, got[0].Geom.Area(), 1e-12)
	assert.Nil(t, got[1].Geom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveResult_LISAOnly(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS "ctu_lisa__staging"`).WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`CREATE TABLE "ctu_lisa__staging" \(LIKE "ctu_lisa" INCLUDING ALL\)`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"ctu_lisa__staging"}, unitStatColumns).WillReturnResult(2)
	mock.ExpectExec(`DROP TABLE "ctu_lisa"`).WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`ALTER TABLE "ctu_lisa__staging" RENAME TO "ctu_lisa"`).
		WillReturnResult(pgxmock.NewResult("ALTER", 0))
	mock.ExpectCommit()

	err := s.SaveResult(context.Background(), sampleResult("run-1", model.RunModeLISA))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveResult_CopyError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS "crnt_clstr_ftprnt__staging"`).WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`CREATE TABLE "crnt_clstr_ftprnt__staging"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"crnt_clstr_ftprnt__staging"}, allTimeColumns).
		WillReturnError(fmt.Errorf("geometry type mismatch"))
	mock.ExpectRollback()

	err := s.SaveResult(context.Background(), sampleResult("run-9", model.RunModeClusters))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save result run-9")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT pg_advisory_lock`).WithArgs(migrationLockID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(`SELECT filename FROM schema_migrations`).
		WillReturnRows(pgxmock.NewRows([]string{"filename"}).AddRow("001_init.sql"))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS crnt_clstr_ftprnt`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).WithArgs("002_outputs.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`SELECT pg_advisory_unlock`).WithArgs(migrationLockID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate_ApplyError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT pg_advisory_lock`).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(`SELECT filename FROM schema_migrations`).
		WillReturnRows(pgxmock.NewRows([]string{"filename"}))
	mock.ExpectExec(`CREATE EXTENSION IF NOT EXISTS postgis`).
		WillReturnError(fmt.Errorf("extension unavailable"))
	mock.ExpectExec(`SELECT pg_advisory_unlock`).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	err := s.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply migration 001_init.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PruneRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM analysis_runs WHERE status <> \$1 AND started_at < \$2`).
		WithArgs("running", cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	n, err := s.PruneRuns(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadWeekly(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	week := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT unit_id, week, incident_count FROM unit_weekly_counts`).
		WillReturnRows(pgxmock.NewRows([]string{"unit_id", "week", "incident_count"}).
			AddRow(int64(3), week, 5))

	got, err := s.LoadWeekly(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.WeeklyCount{UnitID: 3, Week: week, Count: 5}, got[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}
