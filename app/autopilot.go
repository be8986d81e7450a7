package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/geodispatch/core/dispatch"
	"github.com/kilianp07/geodispatch/core/events"
	"github.com/kilianp07/geodispatch/core/gate"
	"github.com/kilianp07/geodispatch/core/model"
	coremon "github.com/kilianp07/geodispatch/core/monitoring"
	"github.com/kilianp07/geodispatch/core/store"
	"github.com/kilianp07/geodispatch/infra/logger"
	"github.com/kilianp07/geodispatch/simulator"
)

// autopilot plays the driver app for the simulated fleet: it picks up every
// accepted delivery, drives to the destination and asks the gate to complete
// it once the driver is inside the completion zone. New orders arrive on
// OrderIntervalSeconds.
//
// Work reaches it through an unbounded queue fed by the engine commit hook and
// the tracker sample sink, so no assignment or arrival is lost.
type autopilot struct {
	gate  *gate.Gate
	store store.Store
	src   *simulator.Source
	gen   *simulator.Generator
	every time.Duration
	log   logger.Logger

	mu       sync.Mutex
	departs  []events.DeliveryAssigned
	arrivals map[string]bool
	wake     chan struct{}
}

func newAutopilot(g *gate.Gate, s store.Store, src *simulator.Source, cfg simulator.Config) *autopilot {
	cfg.SetDefaults()
	return &autopilot{
		gate:     g,
		store:    s,
		src:      src,
		gen:      simulator.NewGenerator(cfg),
		every:    time.Duration(cfg.OrderIntervalSeconds) * time.Second,
		log:      logger.New("autopilot"),
		arrivals: make(map[string]bool),
		wake:     make(chan struct{}, 1),
	}
}

// seed fills an empty store with the generated roster and initial orders.
func (a *autopilot) seed(ctx context.Context) error {
	snap, err := a.store.Snapshot(ctx)
	if err != nil {
		return err
	}
	if len(snap.Drivers) > 0 {
		return nil
	}
	for _, d := range a.gen.Drivers(a.src) {
		if err := a.store.UpsertDriver(ctx, d); err != nil {
			return err
		}
	}
	for _, d := range a.gen.Deliveries(time.Now()) {
		if err := a.store.UpsertDelivery(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (a *autopilot) generate(ctx context.Context) {
	if a.every <= 0 {
		return
	}
	ticker := time.NewTicker(a.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d := a.gen.Delivery(now)
			if err := a.store.UpsertDelivery(ctx, d); err != nil {
				a.log.Errorf("new order: %v", err)
				continue
			}
			a.log.Infof("new order %s in %s", d.ID, d.Zone)
		}
	}
}

// assigned queues the departure of a freshly committed delivery.
func (a *autopilot) assigned(_ context.Context, as dispatch.Assignment) {
	a.mu.Lock()
	a.departs = append(a.departs, events.DeliveryAssigned{DeliveryID: as.DeliveryID, DriverID: as.DriverID})
	a.mu.Unlock()
	a.signal()
}

// HandleSample queues an arrival check for the sampled driver. It runs after
// the geofence monitor has seen the sample.
func (a *autopilot) HandleSample(_ context.Context, s model.LocationSample) error {
	a.mu.Lock()
	a.arrivals[s.SubjectID] = true
	a.mu.Unlock()
	a.signal()
	return nil
}

func (a *autopilot) signal() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// run works the queue until ctx is done.
func (a *autopilot) run(ctx context.Context) {
	defer coremon.Recover()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.wake:
			a.drain(ctx)
		}
	}
}

// drain processes everything queued so far, departures first.
func (a *autopilot) drain(ctx context.Context) {
	a.mu.Lock()
	departs := a.departs
	a.departs = nil
	arrivals := make([]string, 0, len(a.arrivals))
	for id := range a.arrivals {
		arrivals = append(arrivals, id)
	}
	clear(a.arrivals)
	a.mu.Unlock()

	for _, d := range departs {
		a.depart(ctx, d.DeliveryID, d.DriverID)
	}
	sort.Strings(arrivals)
	for _, id := range arrivals {
		a.arrive(ctx, id)
	}
}

// arrive completes every in transit delivery of driverID whose completion
// zone the driver is currently inside, then routes it to the next one.
func (a *autopilot) arrive(ctx context.Context, driverID string) {
	snap, err := a.store.Snapshot(ctx)
	if err != nil {
		a.log.Errorf("snapshot: %v", err)
		return
	}
	done := false
	for _, d := range snap.ActiveFor(driverID) {
		if d.Status != model.StatusInTransit {
			continue
		}
		ok, _, err := a.gate.CanComplete(ctx, d.ID)
		if err != nil || !ok {
			continue
		}
		if _, err := a.gate.AttemptComplete(ctx, d.ID); err != nil {
			a.log.Warnf("complete %s: %v", d.ID, err)
			continue
		}
		done = true
	}
	if done {
		a.next(ctx, driverID)
	}
}

// depart moves an accepted delivery to in transit. The driver heads to it
// unless it is already on its way to another destination.
func (a *autopilot) depart(ctx context.Context, deliveryID, driverID string) {
	for _, st := range []model.Status{model.StatusPickedUp, model.StatusInTransit} {
		if _, err := a.gate.Transition(ctx, deliveryID, st); err != nil {
			a.log.Warnf("advance %s: %v", deliveryID, err)
			return
		}
	}
	snap, err := a.store.Snapshot(ctx)
	if err != nil {
		a.log.Errorf("snapshot: %v", err)
		return
	}
	if active := snap.ActiveFor(driverID); len(active) == 1 {
		a.target(driverID, active[0])
	}
}

func (a *autopilot) next(ctx context.Context, driverID string) {
	snap, err := a.store.Snapshot(ctx)
	if err != nil {
		a.log.Errorf("snapshot: %v", err)
		return
	}
	active := snap.ActiveFor(driverID)
	if len(active) == 0 {
		a.src.ClearTarget(driverID)
		return
	}
	a.target(driverID, active[0])
}

func (a *autopilot) target(driverID string, d model.Delivery) {
	if err := a.src.SetTarget(driverID, d.Destination); err != nil {
		a.log.Warnf("route %s to %s: %v", driverID, d.ID, err)
	}
}
