// Package aggregate assigns incidents to areal units and builds per-unit
// counts and weekly series.
package aggregate

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/hotspot-cli/internal/geometry"
	"github.com/sells-group/hotspot-cli/internal/model"
)

type indexedUnit struct {
	pos  int
	box  geometry.BBox
	geom geometry.MultiPolygon
}

// Assign returns, for every incident, the position of the first unit that
// contains it (boundary included) or -1.
func Assign(units []model.ArealUnit, incidents []model.Incident) []int {
	idx := make([]indexedUnit, 0, len(units))
	for i, u := range units {
		if len(u.Geom) > 0 {
			idx = append(idx, indexedUnit{pos: i, box: u.Geom.BBox(), geom: u.Geom})
		}
	}
	out := make([]int, len(incidents))
	for k, inc := range incidents {
		out[k] = -1
		if !inc.Finite() {
			continue
		}
		p := inc.Point()
		for _, u := range idx {
			if u.box.Contains(p) && u.geom.Contains(p) {
				out[k] = u.pos
				break
			}
		}
	}
	return out
}

// CountIncidents returns a copy of units with IncidentCount set from the
// incidents they contain. Incidents outside every unit are reported.
func CountIncidents(units []model.ArealUnit, incidents []model.Incident) ([]model.ArealUnit, []model.DroppedFeature) {
	out := make([]model.ArealUnit, len(units))
	copy(out, units)
	for i := range out {
		out[i].IncidentCount = 0
	}
	var dropped []model.DroppedFeature
	for k, pos := range Assign(units, incidents) {
		if pos < 0 {
			dropped = append(dropped, model.DroppedFeature{
				Stage:  model.StageAggregate,
				ID:     incidents[k].ID,
				Reason: "incident outside every unit",
			})
			continue
		}
		out[pos].IncidentCount++
	}
	if len(dropped) > 0 {
		zap.L().Info("aggregate: incidents outside units", zap.Int("count", len(dropped)))
	}
	return out, dropped
}

// WeekStart returns the Monday 00:00 UTC that starts the week of t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// WeeklySeries returns zero-filled weekly incident counts for every unit
// between the first and last incident week, ordered by unit then week.
func WeeklySeries(units []model.ArealUnit, incidents []model.Incident) []model.WeeklyCount {
	assigned := Assign(units, incidents)
	var first, last time.Time
	counts := make(map[int]map[time.Time]int)
	for k, pos := range assigned {
		if pos < 0 {
			continue
		}
		w := WeekStart(incidents[k].OccurredAt)
		if first.IsZero() || w.Before(first) {
			first = w
		}
		if w.After(last) {
			last = w
		}
		if counts[pos] == nil {
			counts[pos] = make(map[time.Time]int)
		}
		counts[pos][w]++
	}
	if first.IsZero() {
		return nil
	}

	var out []model.WeeklyCount
	for pos, u := range units {
		for w := first; !w.After(last); w = w.AddDate(0, 0, 7) {
			out = append(out, model.WeeklyCount{UnitID: u.ID, Week: w, Count: counts[pos][w]})
		}
	}
	return out
}
