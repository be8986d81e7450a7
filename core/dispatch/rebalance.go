package dispatch

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/geodispatch/core/metrics"
	"github.com/kilianp07/geodispatch/core/model"
	"github.com/kilianp07/geodispatch/core/store"
)

// underloadedBelow is the load under which an online driver receives
// rebalanced work.
const underloadedBelow = 2

// overloaded reports whether drv is at or one below its capacity.
func overloaded(drv model.Driver) bool {
	return drv.CurrentLoad >= drv.MaxLoad-1
}

// rebalance computes fleet load statistics and, when enabled, hints that steer
// deliveries from overloaded zones toward lightly loaded drivers in the same
// or an adjacent zone. Hints only add a score bonus on the next tick and never
// touch accepted deliveries.
func (e *Engine) rebalance(now time.Time, snap store.Snapshot, enabled bool, res *TickResult) {
	var loads []float64
	over := map[model.Zone]bool{}
	var light []model.Driver
	for _, drv := range snap.Drivers {
		if !drv.Online {
			continue
		}
		loads = append(loads, float64(drv.CurrentLoad))
		if overloaded(drv) {
			over[drv.Zone] = true
			res.Load.Overloaded++
		}
		if drv.CurrentLoad < underloadedBelow && Eligible(drv) && !overloaded(drv) {
			light = append(light, drv)
		}
	}
	res.Load.Online = len(loads)
	res.Load.Time = now
	if len(loads) > 0 {
		res.Load.MeanLoad = stat.Mean(loads, nil)
	}
	if len(loads) > 1 {
		_, res.Load.StdDevLoad = stat.MeanStdDev(loads, nil)
	}
	if r, ok := e.sink.(metrics.FleetLoadRecorder); ok {
		if err := r.RecordFleetLoad(res.Load); err != nil {
			e.log.Warnf("record fleet load: %v", err)
		}
	}

	hints := map[model.Zone]map[string]bool{}
	if enabled {
		for zone := range over {
			for _, drv := range light {
				if e.cfg.adjacent(zone, drv.Zone) {
					if hints[zone] == nil {
						hints[zone] = map[string]bool{}
					}
					hints[zone][drv.ID] = true
				}
			}
		}
	}
	e.hints = hints
	res.Hints = hintList(hints)
}

func hintList(h map[model.Zone]map[string]bool) map[string][]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string][]string, len(h))
	for zone, set := range h {
		ids := make([]string, 0, len(set))
		for drv := range set {
			ids = append(ids, drv)
		}
		sort.Strings(ids)
		out[string(zone)] = ids
	}
	return out
}
