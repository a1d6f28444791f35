package engine

import (
	"fmt"

	"github.com/sells-group/hotspot-cli/internal/geometry"
	"github.com/sells-group/hotspot-cli/internal/model"
)

// CleanIncidents drops incidents with non-finite coordinates or a repeated
// id. The first occurrence of an id claims it even when it is dropped.
func CleanIncidents(in []model.Incident) ([]model.Incident, []model.DroppedFeature) {
	out := make([]model.Incident, 0, len(in))
	seen := make(map[int64]bool, len(in))
	var dropped []model.DroppedFeature
	for _, inc := range in {
		dup := seen[inc.ID]
		seen[inc.ID] = true
		switch {
		case dup:
			dropped = append(dropped, model.DroppedFeature{
				Stage: model.StageInput, ID: inc.ID, Reason: "duplicate incident id",
			})
		case !inc.Finite():
			dropped = append(dropped, model.DroppedFeature{
				Stage: model.StageInput, ID: inc.ID, Reason: "non-finite coordinates",
			})
		default:
			out = append(out, inc)
		}
	}
	return out, dropped
}

// CleanUnits drops units without geometry or with a repeated id. Invalid
// geometry is repaired once; units that stay invalid are dropped. The input
// units are not modified.
func CleanUnits(in []model.ArealUnit) ([]model.ArealUnit, []model.DroppedFeature) {
	out := make([]model.ArealUnit, 0, len(in))
	seen := make(map[int64]bool, len(in))
	var dropped []model.DroppedFeature
	drop := func(id int64, reason string) {
		dropped = append(dropped, model.DroppedFeature{Stage: model.StageInput, ID: id, Reason: reason})
	}
	for _, u := range in {
		if seen[u.ID] {
			drop(u.ID, "duplicate unit id")
			continue
		}
		seen[u.ID] = true
		if len(u.Geom) == 0 {
			drop(u.ID, "missing geometry")
			continue
		}
		if err := geometry.ValidateMulti(u.Geom); err != nil {
			repaired := geometry.Repair(u.Geom)
			if rerr := geometry.ValidateMulti(repaired); rerr != nil {
				drop(u.ID, fmt.Sprintf("invalid geometry: %v", err))
				continue
			}
			u.Geom = repaired
		}
		out = append(out, u)
	}
	return out, dropped
}
