package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/kilianp07/geodispatch/core/dispatch/logging"
	"github.com/kilianp07/geodispatch/core/events"
	"github.com/kilianp07/geodispatch/core/metrics"
	"github.com/kilianp07/geodispatch/core/model"
	"github.com/kilianp07/geodispatch/core/monitoring"
	"github.com/kilianp07/geodispatch/core/store"
)

// pendingOrder sorts by priority desc, then createdAt asc, then id asc.
func pendingOrder(ds []model.Delivery) {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i], ds[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

type candidate struct {
	driver     model.Driver
	score      float64
	rebalanced bool
}

// pick returns the best eligible driver in pool. drivers are scanned in id
// order and only a strictly higher score replaces the current best, so ties go
// to the lowest id.
func (e *Engine) pick(d model.Delivery, pool []model.Driver) (candidate, map[string]float64, bool) {
	var best candidate
	found := false
	scores := make(map[string]float64, len(pool))
	hinted := e.hints[d.Zone]
	for _, drv := range pool {
		if !Eligible(drv) {
			continue
		}
		s := e.scorer.Score(d, drv)
		boosted := hinted[drv.ID]
		if boosted {
			s += e.cfg.RebalanceBonus
		}
		scores[drv.ID] = s
		if !found || s > best.score {
			best = candidate{driver: drv, score: s, rebalanced: boosted}
			found = true
		}
	}
	return best, scores, found
}

func (e *Engine) assign(ctx context.Context, now time.Time, snap *store.Snapshot, res *TickResult) {
	var pending []model.Delivery
	for _, d := range snap.Deliveries {
		if d.Unassigned() {
			pending = append(pending, d)
		}
	}
	if len(pending) == 0 {
		return
	}
	pendingOrder(pending)
	// snap.Drivers is sorted by id
	pool := append([]model.Driver(nil), snap.Drivers...)

	for _, d := range pending {
		c, scores, ok := e.pick(d, pool)
		if !ok {
			e.log.Debugf("delivery %s: %v", d.ID, ErrNoEligibleDriver)
			res.Unassigned = append(res.Unassigned, d.ID)
			continue
		}
		a, dl, drv, err := e.commit(ctx, now, d.ID, c.driver.ID, c.score, false, c.rebalanced, scores)
		if err != nil {
			if errors.Is(err, ErrAssignmentConflict) {
				res.Conflicts++
				assignmentConflicts.Inc()
				e.log.Errorf("skipping commit: %v", err)
				monitoring.CaptureException(err, map[string]string{"delivery_id": d.ID, "driver_id": c.driver.ID})
			} else {
				e.log.Warnf("commit %s: %v", d.ID, err)
			}
			res.Unassigned = append(res.Unassigned, d.ID)
			continue
		}
		res.Assignments = append(res.Assignments, a)
		e.replaceDelivery(snap, dl)
		e.replaceDriver(snap, drv)
		for i := range pool {
			if pool[i].ID == drv.ID {
				pool[i] = drv
			}
		}
	}
}

// commit assigns driverID to deliveryID in one store transaction. The
// delivery must still be pending and unassigned and the driver eligible.
func (e *Engine) commit(ctx context.Context, now time.Time, deliveryID, driverID string, score float64, manual, rebalanced bool, scores map[string]float64) (Assignment, model.Delivery, model.Driver, error) {
	var dl model.Delivery
	var drv model.Driver
	err := e.store.Update(ctx, func(tx store.Tx) error {
		var err error
		dl, err = tx.Delivery(deliveryID)
		if err != nil {
			return err
		}
		if !dl.Unassigned() {
			return fmt.Errorf("%w: delivery %s is %s (driver %q)", ErrAssignmentConflict, dl.ID, dl.Status, dl.AssignedDriver)
		}
		drv, err = tx.Driver(driverID)
		if err != nil {
			return err
		}
		if !Eligible(drv) {
			if manual {
				return fmt.Errorf("%w: %s online=%t load %d/%d", ErrDriverUnavailable, drv.ID, drv.Online, drv.CurrentLoad, drv.MaxLoad)
			}
			return fmt.Errorf("%w: driver %s no longer eligible", ErrAssignmentConflict, drv.ID)
		}
		dl.AssignedDriver = drv.ID
		dl.Status = model.StatusAccepted
		drv.CurrentLoad++
		if err := tx.PutDriver(drv); err != nil {
			return err
		}
		return tx.PutDelivery(dl)
	})
	if err != nil {
		return Assignment{}, model.Delivery{}, model.Driver{}, err
	}
	a := Assignment{DeliveryID: dl.ID, DriverID: drv.ID, Score: score, Manual: manual, Rebalanced: rebalanced, At: now}
	deliveriesAssigned.WithLabelValues(string(dl.Zone), strconv.FormatBool(manual)).Inc()
	e.pub.Publish(events.DeliveryAssigned{DeliveryID: dl.ID, DriverID: drv.ID, Score: score, Manual: manual, Time: now})
	e.pub.Publish(events.StatusChanged{DeliveryID: dl.ID, DriverID: drv.ID, From: model.StatusPending, To: model.StatusAccepted, Time: now})
	if err := e.sink.RecordAssignment(metrics.AssignmentEvent{
		DeliveryID: dl.ID,
		DriverID:   drv.ID,
		Zone:       dl.Zone,
		Priority:   dl.Priority,
		Score:      score,
		Manual:     manual,
		Wait:       now.Sub(dl.CreatedAt),
		Time:       now,
	}); err != nil {
		e.log.Warnf("record assignment: %v", err)
	}
	if e.commits != nil {
		rec := logging.CommitRecord{
			Timestamp:  now,
			DeliveryID: dl.ID,
			DriverID:   drv.ID,
			Zone:       dl.Zone,
			Priority:   dl.Priority,
			Score:      score,
			Manual:     manual,
			Rebalanced: rebalanced,
			Candidates: scores,
		}
		if err := e.commits.Append(ctx, rec); err != nil {
			e.log.Warnf("commit log: %v", err)
		}
	}
	e.log.Debugw("delivery assigned", map[string]any{
		"delivery_id": dl.ID,
		"driver_id":   drv.ID,
		"score":       score,
		"manual":      manual,
	})
	for _, fn := range e.onCommit {
		fn(ctx, a)
	}
	return a, dl, drv, nil
}

// Assign is the dispatcher override. It is serialized with ticks and obeys
// the same at-most-one rule: a delivery that is no longer pending yields
// ErrAssignmentConflict.
func (e *Engine) Assign(ctx context.Context, deliveryID, driverID string) (Assignment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	dl, err := e.store.Delivery(ctx, deliveryID)
	if err != nil {
		return Assignment{}, err
	}
	drv, err := e.store.Driver(ctx, driverID)
	if err != nil {
		return Assignment{}, err
	}
	score := e.scorer.Score(dl, drv)
	a, _, _, err := e.commit(ctx, e.now(), deliveryID, driverID, score, true, false, map[string]float64{driverID: score})
	return a, err
}
