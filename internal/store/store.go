// Package store persists incident and unit snapshots, analysis outputs and
// run history in PostGIS or SQLite.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hotspot-cli/internal/config"
	"github.com/sells-group/hotspot-cli/internal/model"
)

// Output and input table names.
const (
	TableIncidents  = "incidents"
	TableUnits      = "areal_units"
	TableAllTime    = "crnt_clstr_ftprnt"
	TablePeriods    = "clstr_ts_ftprnt"
	TableStability  = "clstr_union_ftprnt"
	TableUnitStats  = "ctu_lisa"
	TableWeekly     = "unit_weekly_counts"
	TableRuns       = "analysis_runs"
	defaultRunLimit = 100
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs. Runs are returned newest
// first.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	Mode         model.RunMode   `json:"mode,omitempty"`
	StartedAfter time.Time       `json:"started_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return defaultRunLimit
	}
	return f.Limit
}

// Store defines the persistence interface for the analysis engine.
type Store interface {
	// Inputs
	LoadIncidents(ctx context.Context) ([]model.Incident, error)
	LoadUnits(ctx context.Context) ([]model.ArealUnit, error)
	SaveIncidents(ctx context.Context, incidents []model.Incident) (int64, error)
	SaveUnits(ctx context.Context, units []model.ArealUnit) (int64, error)

	// Outputs. SaveResult replaces the tables of the branches the result's
	// mode includes, all at once; LoadResult reads the current tables back.
	SaveResult(ctx context.Context, res *model.Result) error
	LoadResult(ctx context.Context) (*model.Result, error)
	LoadWeekly(ctx context.Context) ([]model.WeeklyCount, error)

	// Runs
	RecordRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	// PruneRuns deletes finished runs that started before cutoff.
	PruneRuns(ctx context.Context, cutoff time.Time) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns})
	case "sqlite":
		return NewSQLite(cfg.SQLitePath)
	default:
		return nil, eris.Wrapf(model.ErrConfig, "store: unsupported driver %q", cfg.Driver)
	}
}
