// Package gate owns driver-side status transitions and decides whether a
// delivery may become delivered, based on the geofence state of its driver.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/geodispatch/core/events"
	"github.com/kilianp07/geodispatch/core/geo"
	"github.com/kilianp07/geodispatch/core/geofence"
	"github.com/kilianp07/geodispatch/core/logger"
	"github.com/kilianp07/geodispatch/core/model"
	"github.com/kilianp07/geodispatch/core/store"
)

// Config holds gate settings.
type Config struct {
	RadiusM float64 `json:"radius_m"`
}

// SetDefaults applies the reference completion radius.
func (c *Config) SetDefaults() {
	if c.RadiusM == 0 {
		c.RadiusM = 100
	}
}

// ZoneMonitor is the part of the geofence monitor the gate relies on.
type ZoneMonitor interface {
	AddZone(z model.GeofenceZone) error
	RemoveZone(zoneID string)
	State(subjectID, zoneID string) (geofence.State, bool)
}

// TrackingStopper stops location acquisition for a subject.
type TrackingStopper interface {
	StopTracking(subjectID string)
}

// Archiver stores terminal deliveries outside the live store.
type Archiver interface {
	Archive(ctx context.Context, d model.Delivery) error
}

// Gate guards the delivered transition.
type Gate struct {
	store    store.Store
	monitor  ZoneMonitor
	tracker  TrackingStopper
	archiver Archiver
	pub      events.Publisher
	log      logger.Logger
	radiusM  float64
	now      func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithTracker stops driver tracking after the last active delivery completes.
func WithTracker(t TrackingStopper) Option { return func(g *Gate) { g.tracker = t } }

// WithArchiver archives terminal deliveries.
func WithArchiver(a Archiver) Option { return func(g *Gate) { g.archiver = a } }

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option { return func(g *Gate) { g.pub = p } }

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(g *Gate) { g.log = logger.OrNop(l) } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(g *Gate) { g.now = now } }

// New creates a gate.
func New(s store.Store, m ZoneMonitor, cfg Config, opts ...Option) *Gate {
	cfg.SetDefaults()
	g := &Gate{
		store:   s,
		monitor: m,
		pub:     events.NopPublisher{},
		log:     logger.Nop{},
		radiusM: cfg.RadiusM,
		now:     time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// CompletionZone is the zone attached to a delivery once in transit.
func (g *Gate) CompletionZone(d model.Delivery) model.GeofenceZone {
	return model.GeofenceZone{
		ID:      model.DeliveryZoneID(d.ID),
		Name:    "delivery " + d.ID,
		Center:  d.Destination,
		RadiusM: g.radiusM,
		Kind:    model.KindDelivery,
	}
}

// Transition applies a driver-side status change. Cancelling a delivery that
// holds a driver slot releases it.
func (g *Gate) Transition(ctx context.Context, deliveryID string, to model.Status) (model.Delivery, error) {
	if to == model.StatusDelivered {
		return model.Delivery{}, ErrDeliveredViaTransition
	}
	var before, after model.Delivery
	err := g.store.Update(ctx, func(tx store.Tx) error {
		d, err := tx.Delivery(deliveryID)
		if err != nil {
			return err
		}
		if d.Status == model.StatusPending && to != model.StatusCancelled {
			return fmt.Errorf("%w: %s -> %s is a dispatch decision", model.ErrInvalidTransition, d.Status, to)
		}
		if err := model.CheckTransition(d.Status, to); err != nil {
			return fmt.Errorf("delivery %s: %w", d.ID, err)
		}
		before = d
		if to == model.StatusCancelled && d.Status.Active() {
			if err := releaseSlot(tx, d.AssignedDriver); err != nil {
				return err
			}
		}
		d.Status = to
		after = d
		return tx.PutDelivery(d)
	})
	if err != nil {
		return model.Delivery{}, err
	}
	now := g.now()
	switch to {
	case model.StatusInTransit:
		if err := g.monitor.AddZone(g.CompletionZone(after)); err != nil {
			g.log.Errorf("attach completion zone for %s: %v", after.ID, err)
		}
	case model.StatusCancelled:
		g.monitor.RemoveZone(model.DeliveryZoneID(after.ID))
		g.release(ctx, after)
		g.archive(ctx, after)
	}
	g.pub.Publish(events.StatusChanged{DeliveryID: after.ID, DriverID: after.AssignedDriver, From: before.Status, To: to, Time: now})
	return after, nil
}

// CanComplete reports whether AttemptComplete would succeed right now and the
// current distance of the driver to the destination, or -1 when unknown.
func (g *Gate) CanComplete(ctx context.Context, deliveryID string) (bool, float64, error) {
	d, err := g.store.Delivery(ctx, deliveryID)
	if err != nil {
		return false, -1, err
	}
	v := g.check(ctx, d)
	if v != nil {
		return false, v.DistanceM, nil
	}
	st, _ := g.monitor.State(d.AssignedDriver, model.DeliveryZoneID(d.ID))
	return true, st.DistanceM, nil
}

// AttemptComplete marks the delivery delivered when it is in transit and its
// driver is inside the completion zone. Otherwise it returns a
// *GeofenceViolation and leaves state unchanged.
func (g *Gate) AttemptComplete(ctx context.Context, deliveryID string) (model.Delivery, error) {
	d, err := g.store.Delivery(ctx, deliveryID)
	if err != nil {
		return model.Delivery{}, err
	}
	if v := g.check(ctx, d); v != nil {
		return model.Delivery{}, g.reject(v)
	}
	st, _ := g.monitor.State(d.AssignedDriver, model.DeliveryZoneID(d.ID))

	var done model.Delivery
	err = g.store.Update(ctx, func(tx store.Tx) error {
		cur, err := tx.Delivery(deliveryID)
		if err != nil {
			return err
		}
		if cur.Status != model.StatusInTransit || cur.AssignedDriver != d.AssignedDriver {
			return &GeofenceViolation{DeliveryID: cur.ID, DriverID: cur.AssignedDriver, DistanceM: st.DistanceM, RadiusM: g.radiusM, Reason: ReasonNotInTransit}
		}
		// the driver may have moved since the first check
		now, known := g.monitor.State(cur.AssignedDriver, model.DeliveryZoneID(cur.ID))
		if !known || !now.Inside {
			v := &GeofenceViolation{DeliveryID: cur.ID, DriverID: cur.AssignedDriver, DistanceM: now.DistanceM, RadiusM: g.radiusM, Reason: ReasonOutsideZone}
			if !known {
				v.DistanceM, v.Reason = -1, ReasonLocationUnknown
			}
			return v
		}
		st = now
		if err := releaseSlot(tx, cur.AssignedDriver); err != nil {
			return err
		}
		cur.Status = model.StatusDelivered
		cur.Progress = 100
		done = cur
		return tx.PutDelivery(cur)
	})
	if err != nil {
		var v *GeofenceViolation
		if errors.As(err, &v) {
			return model.Delivery{}, g.reject(v)
		}
		return model.Delivery{}, err
	}

	now := g.now()
	g.monitor.RemoveZone(model.DeliveryZoneID(done.ID))
	g.release(ctx, done)
	g.log.Infof("delivery %s completed by %s at %.0f m", done.ID, done.AssignedDriver, st.DistanceM)
	g.pub.Publish(events.StatusChanged{DeliveryID: done.ID, DriverID: done.AssignedDriver, From: model.StatusInTransit, To: model.StatusDelivered, Time: now})
	g.pub.Publish(events.DeliveryDelivered{DeliveryID: done.ID, DriverID: done.AssignedDriver, DistanceM: st.DistanceM, Time: now})
	g.archive(ctx, done)
	return done, nil
}

func (g *Gate) check(ctx context.Context, d model.Delivery) *GeofenceViolation {
	v := &GeofenceViolation{DeliveryID: d.ID, DriverID: d.AssignedDriver, DistanceM: -1, RadiusM: g.radiusM}
	if d.AssignedDriver == "" {
		v.Reason = ReasonNoDriver
		return v
	}
	st, known := g.monitor.State(d.AssignedDriver, model.DeliveryZoneID(d.ID))
	if known {
		v.DistanceM = st.DistanceM
	} else if drv, err := g.store.Driver(ctx, d.AssignedDriver); err == nil && drv.LastKnownLocation != nil {
		v.DistanceM = geo.DistanceMeters(drv.LastKnownLocation.Position, d.Destination)
	}
	switch {
	case d.Status != model.StatusInTransit:
		v.Reason = ReasonNotInTransit
	case !known:
		v.Reason = ReasonLocationUnknown
	case !st.Inside:
		v.Reason = ReasonOutsideZone
	default:
		return nil
	}
	return v
}

func (g *Gate) reject(v *GeofenceViolation) error {
	g.log.Warnf("%v", v)
	g.pub.Publish(events.GeofenceViolation{
		DeliveryID: v.DeliveryID,
		DriverID:   v.DriverID,
		DistanceM:  v.DistanceM,
		RadiusM:    v.RadiusM,
		Reason:     v.Reason,
		Time:       g.now(),
	})
	return v
}

// release stops tracking the driver of d once no other delivery needs it.
func (g *Gate) release(ctx context.Context, d model.Delivery) {
	if g.tracker == nil || d.AssignedDriver == "" {
		return
	}
	snap, err := g.store.Snapshot(ctx)
	if err != nil {
		g.log.Warnf("snapshot after %s: %v", d.ID, err)
		return
	}
	if len(snap.ActiveFor(d.AssignedDriver)) == 0 {
		g.tracker.StopTracking(d.AssignedDriver)
	}
}

func (g *Gate) archive(ctx context.Context, d model.Delivery) {
	if g.archiver == nil {
		return
	}
	if err := g.archiver.Archive(ctx, d); err != nil {
		g.log.Errorf("archive delivery %s: %v", d.ID, err)
	}
}

func releaseSlot(tx store.Tx, driverID string) error {
	drv, err := tx.Driver(driverID)
	if err != nil {
		return err
	}
	if drv.CurrentLoad > 0 {
		drv.CurrentLoad--
	}
	return tx.PutDriver(drv)
}
