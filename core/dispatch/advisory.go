package dispatch

import (
	"context"
	"time"

	"github.com/kilianp07/geodispatch/core/events"
	"github.com/kilianp07/geodispatch/core/model"
	"github.com/kilianp07/geodispatch/core/store"
)

// AdvisedETA shortens eta by pct percent, rounded to the minute with a one
// minute floor.
func AdvisedETA(eta time.Duration, pct float64) time.Duration {
	out := time.Duration(float64(eta) * (1 - pct/100)).Round(time.Minute)
	if out < time.Minute {
		out = time.Minute
	}
	return out
}

func advisable(d model.Delivery) bool {
	switch d.Status {
	case model.StatusAccepted, model.StatusPickedUp, model.StatusInTransit:
		return d.ETA > 0 && !d.RouteOptimized
	}
	return false
}

// advise applies the route advisory once per delivery. It is a numeric ETA
// adjustment only.
func (e *Engine) advise(ctx context.Context, now time.Time, snap store.Snapshot, res *TickResult) {
	for _, d := range snap.Deliveries {
		if !advisable(d) {
			continue
		}
		var ev events.RouteOptimized
		changed := false
		err := e.store.Update(ctx, func(tx store.Tx) error {
			cur, err := tx.Delivery(d.ID)
			if err != nil {
				return err
			}
			if !advisable(cur) {
				return nil
			}
			after := AdvisedETA(cur.ETA, e.cfg.AdvisoryReductionPercent)
			ev = events.RouteOptimized{DeliveryID: cur.ID, Before: cur.ETA, After: after, Time: now}
			cur.ETA = after
			cur.RouteOptimized = true
			changed = true
			return tx.PutDelivery(cur)
		})
		if err != nil {
			e.log.Warnf("route advisory %s: %v", d.ID, err)
			continue
		}
		if changed {
			res.Advisories = append(res.Advisories, ev)
			e.pub.Publish(ev)
		}
	}
}
