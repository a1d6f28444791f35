package model

// Result holds every output of one analysis run. Only the tables of the
// branches included by Mode are meaningful; the others are left empty and
// must not replace prior results.
type Result struct {
	RunID   string
	Mode    RunMode
	Summary *Summary

	// Units is the cleaned unit snapshot aligned with Stats.
	Units  []ArealUnit
	Stats  []UnitStat
	Weekly []WeeklyCount
	// HasWeekly reports that Weekly was computed and replaces the stored series.
	HasWeekly bool

	AllTime []Footprint
	Periods []Footprint
	Regions []StabilityRegion
}

// Status returns the summary status, or running when no summary is set.
func (r *Result) Status() RunStatus {
	if r == nil || r.Summary == nil {
		return RunStatusRunning
	}
	return r.Summary.Status
}
