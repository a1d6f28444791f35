package model

import "time"

// RunStatus represents the current state of an analysis run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusNoData   RunStatus = "no_data"
	RunStatusFailed   RunStatus = "failed"
)

// RunMode selects which analysis branches execute.
type RunMode string

const (
	RunModeAll      RunMode = "all"
	RunModeLISA     RunMode = "lisa"
	RunModeClusters RunMode = "clusters"
)

// Valid reports whether m is a known mode.
func (m RunMode) Valid() bool {
	switch m {
	case RunModeAll, RunModeLISA, RunModeClusters:
		return true
	}
	return false
}

// Includes reports whether the mode runs the given branch.
func (m RunMode) Includes(branch RunMode) bool {
	return m == RunModeAll || m == branch
}

// Run is the persisted record of one analysis run.
type Run struct {
	ID         string     `json:"id" yaml:"id" db:"id"`
	Mode       RunMode    `json:"mode" yaml:"mode" db:"mode"`
	Status     RunStatus  `json:"status" yaml:"status" db:"status"`
	Seed       uint64     `json:"seed" yaml:"seed" db:"seed"`
	Error      string     `json:"error,omitempty" yaml:"error,omitempty" db:"error"`
	StartedAt  time.Time  `json:"started_at" yaml:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty" db:"finished_at"`
	Summary    *Summary   `json:"summary,omitempty" yaml:"summary,omitempty" db:"-"`
}

// Stage names used in summaries, logs and metrics.
const (
	StageInput     = "input"
	StageWeights   = "weights"
	StageLISA      = "lisa"
	StageCluster   = "cluster"
	StageFootprint = "footprint"
	StageSimplify  = "simplify"
	StageStability = "stability"
	StageAggregate = "aggregate"
)

// DroppedFeature records a record, cluster or footprint skipped during a run.
type DroppedFeature struct {
	Stage  string `json:"stage" yaml:"stage"`
	Period string `json:"period,omitempty" yaml:"period,omitempty"`
	ID     int64  `json:"id" yaml:"id"`
	Reason string `json:"reason" yaml:"reason"`
}

// StageTiming is the wall time spent in one stage.
type StageTiming struct {
	Stage    string        `json:"stage" yaml:"stage"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Summary reports what a run produced and what it skipped.
type Summary struct {
	RunID            string           `json:"run_id" yaml:"run_id"`
	Mode             RunMode          `json:"mode" yaml:"mode"`
	Status           RunStatus        `json:"status" yaml:"status"`
	StartedAt        time.Time        `json:"started_at" yaml:"started_at"`
	FinishedAt       time.Time        `json:"finished_at" yaml:"finished_at"`
	Incidents        int              `json:"incidents" yaml:"incidents"`
	Units            int              `json:"units" yaml:"units"`
	Periods          []string         `json:"periods,omitempty" yaml:"periods,omitempty"`
	Clusters         int              `json:"clusters" yaml:"clusters"`
	Footprints       int              `json:"footprints" yaml:"footprints"`
	PeriodFootprints int              `json:"period_footprints" yaml:"period_footprints"`
	Regions          int              `json:"regions" yaml:"regions"`
	Islands          int              `json:"islands" yaml:"islands"`
	Significant      int              `json:"significant" yaml:"significant"`
	Dropped          []DroppedFeature `json:"dropped,omitempty" yaml:"dropped,omitempty"`
	Warnings         []string         `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Timings          []StageTiming    `json:"timings,omitempty" yaml:"timings,omitempty"`
}

// Drop appends a dropped feature and its warning.
func (s *Summary) Drop(d DroppedFeature) {
	s.Dropped = append(s.Dropped, d)
}

// Warn appends a warning message.
func (s *Summary) Warn(msg string) {
	s.Warnings = append(s.Warnings, msg)
}
