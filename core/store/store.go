// Package store defines the roster and delivery persistence contract used by
// the dispatch core, together with an in-memory implementation.
package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/kilianp07/geodispatch/core/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Snapshot is a consistent view of the roster and the delivery list.
type Snapshot struct {
	Drivers    []model.Driver
	Deliveries []model.Delivery
	TakenAt    time.Time
}

// Driver looks up a driver in the snapshot.
func (s Snapshot) Driver(id string) (model.Driver, bool) {
	i := sort.Search(len(s.Drivers), func(i int) bool { return s.Drivers[i].ID >= id })
	if i < len(s.Drivers) && s.Drivers[i].ID == id {
		return s.Drivers[i], true
	}
	return model.Driver{}, false
}

// ActiveFor returns the non-terminal deliveries assigned to driverID.
func (s Snapshot) ActiveFor(driverID string) []model.Delivery {
	var out []model.Delivery
	for _, d := range s.Deliveries {
		if d.AssignedDriver == driverID && !d.Status.Terminal() {
			out = append(out, d)
		}
	}
	return out
}

// Tx is the read/write view handed to Update callbacks. Writes become visible
// only if the callback returns nil.
type Tx interface {
	Driver(id string) (model.Driver, error)
	Delivery(id string) (model.Delivery, error)
	PutDriver(d model.Driver) error
	PutDelivery(d model.Delivery) error
}

// Store persists drivers and deliveries.
type Store interface {
	// Snapshot returns drivers and deliveries sorted by identifier, read
	// atomically with respect to Update.
	Snapshot(ctx context.Context) (Snapshot, error)
	Driver(ctx context.Context, id string) (model.Driver, error)
	Delivery(ctx context.Context, id string) (model.Delivery, error)
	UpsertDriver(ctx context.Context, d model.Driver) error
	UpsertDelivery(ctx context.Context, d model.Delivery) error
	RemoveDelivery(ctx context.Context, id string) error
	// UpdateDriverLocation only touches LastKnownLocation.
	UpdateDriverLocation(ctx context.Context, driverID string, s model.LocationSample) error
	// Update runs fn atomically.
	Update(ctx context.Context, fn func(Tx) error) error
	Close() error
}

func sortSnapshot(s *Snapshot) {
	sort.Slice(s.Drivers, func(i, j int) bool { return s.Drivers[i].ID < s.Drivers[j].ID })
	sort.Slice(s.Deliveries, func(i, j int) bool { return s.Deliveries[i].ID < s.Deliveries[j].ID })
}
