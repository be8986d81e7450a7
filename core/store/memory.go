package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/geodispatch/core/model"
)

// MemoryStore keeps the roster and deliveries in process memory.
type MemoryStore struct {
	mu         sync.RWMutex
	drivers    map[string]model.Driver
	deliveries map[string]model.Delivery
	now        func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		drivers:    map[string]model.Driver{},
		deliveries: map[string]model.Delivery{},
		now:        time.Now,
	}
}

func cloneDriver(d model.Driver) model.Driver {
	if d.LastKnownLocation != nil {
		loc := *d.LastKnownLocation
		d.LastKnownLocation = &loc
	}
	return d
}

func (s *MemoryStore) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s.mu.RLock()
	snap := Snapshot{
		Drivers:    make([]model.Driver, 0, len(s.drivers)),
		Deliveries: make([]model.Delivery, 0, len(s.deliveries)),
		TakenAt:    s.now(),
	}
	for _, d := range s.drivers {
		snap.Drivers = append(snap.Drivers, cloneDriver(d))
	}
	for _, d := range s.deliveries {
		snap.Deliveries = append(snap.Deliveries, d)
	}
	s.mu.RUnlock()
	sortSnapshot(&snap)
	return snap, nil
}

func (s *MemoryStore) Driver(_ context.Context, id string) (model.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drivers[id]
	if !ok {
		return model.Driver{}, fmt.Errorf("driver %s: %w", id, ErrNotFound)
	}
	return cloneDriver(d), nil
}

func (s *MemoryStore) Delivery(_ context.Context, id string) (model.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deliveries[id]
	if !ok {
		return model.Delivery{}, fmt.Errorf("delivery %s: %w", id, ErrNotFound)
	}
	return d, nil
}

func (s *MemoryStore) UpsertDriver(_ context.Context, d model.Driver) error {
	if err := d.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.drivers[d.ID] = cloneDriver(d)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) UpsertDelivery(_ context.Context, d model.Delivery) error {
	if err := d.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.deliveries[d.ID] = d
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) RemoveDelivery(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deliveries[id]; !ok {
		return fmt.Errorf("delivery %s: %w", id, ErrNotFound)
	}
	delete(s.deliveries, id)
	return nil
}

func (s *MemoryStore) UpdateDriverLocation(_ context.Context, driverID string, sample model.LocationSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[driverID]
	if !ok {
		return fmt.Errorf("driver %s: %w", driverID, ErrNotFound)
	}
	d.LastKnownLocation = &sample
	s.drivers[driverID] = d
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memoryTx{
		store:      s,
		drivers:    map[string]model.Driver{},
		deliveries: map[string]model.Delivery{},
	}
	if err := fn(tx); err != nil {
		return err
	}
	for id, d := range tx.drivers {
		s.drivers[id] = d
	}
	for id, d := range tx.deliveries {
		s.deliveries[id] = d
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// memoryTx stages writes until the Update callback succeeds. The store lock
// is held for its whole lifetime.
type memoryTx struct {
	store      *MemoryStore
	drivers    map[string]model.Driver
	deliveries map[string]model.Delivery
}

func (t *memoryTx) Driver(id string) (model.Driver, error) {
	if d, ok := t.drivers[id]; ok {
		return cloneDriver(d), nil
	}
	d, ok := t.store.drivers[id]
	if !ok {
		return model.Driver{}, fmt.Errorf("driver %s: %w", id, ErrNotFound)
	}
	return cloneDriver(d), nil
}

func (t *memoryTx) Delivery(id string) (model.Delivery, error) {
	if d, ok := t.deliveries[id]; ok {
		return d, nil
	}
	d, ok := t.store.deliveries[id]
	if !ok {
		return model.Delivery{}, fmt.Errorf("delivery %s: %w", id, ErrNotFound)
	}
	return d, nil
}

func (t *memoryTx) PutDriver(d model.Driver) error {
	if err := d.Validate(); err != nil {
		return err
	}
	t.drivers[d.ID] = cloneDriver(d)
	return nil
}

func (t *memoryTx) PutDelivery(d model.Delivery) error {
	if err := d.Validate(); err != nil {
		return err
	}
	t.deliveries[d.ID] = d
	return nil
}
