package dispatch

import (
	"context"
	"time"

	"github.com/kilianp07/geodispatch/core/events"
	"github.com/kilianp07/geodispatch/core/model"
	"github.com/kilianp07/geodispatch/core/store"
)

// targetPriority applies both thresholds in sequence so a delivery older than
// the urgent threshold reaches urgent within one tick. It never lowers p.
func (e *Engine) targetPriority(p model.Priority, age time.Duration) model.Priority {
	high := time.Duration(e.cfg.EscalateHighAfterMinutes) * time.Minute
	urgent := time.Duration(e.cfg.EscalateUrgentAfterMinutes) * time.Minute
	if age > high && p == model.PriorityNormal {
		p = model.PriorityHigh
	}
	if age > urgent && p == model.PriorityHigh {
		p = model.PriorityUrgent
	}
	return p
}

func (e *Engine) escalate(ctx context.Context, now time.Time, snap *store.Snapshot, res *TickResult) {
	for _, d := range snap.Deliveries {
		if d.Status.Terminal() {
			continue
		}
		age := now.Sub(d.CreatedAt)
		target := e.targetPriority(d.Priority, age)
		if target <= d.Priority {
			continue
		}
		var from model.Priority
		var updated model.Delivery
		err := e.store.Update(ctx, func(tx store.Tx) error {
			cur, err := tx.Delivery(d.ID)
			if err != nil {
				return err
			}
			from = cur.Priority
			if target <= cur.Priority || cur.Status.Terminal() {
				updated = cur
				return nil
			}
			cur.Priority = target
			updated = cur
			return tx.PutDelivery(cur)
		})
		if err != nil {
			e.log.Warnf("escalate %s: %v", d.ID, err)
			continue
		}
		e.replaceDelivery(snap, updated)
		for p := from + 1; p <= updated.Priority; p++ {
			ev := events.PriorityEscalated{DeliveryID: d.ID, From: p - 1, To: p, Age: age, Time: now}
			res.Escalations = append(res.Escalations, ev)
			priorityEscalations.WithLabelValues(p.String()).Inc()
			e.pub.Publish(ev)
		}
	}
}
