package scenarios

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/geodispatch/core/dispatch"
	"github.com/kilianp07/geodispatch/core/model"
	"github.com/kilianp07/geodispatch/core/store"
	"github.com/kilianp07/geodispatch/infra/metrics"
	"github.com/kilianp07/geodispatch/internal/eventbus"
)

func RunScenario(t *testing.T, sc *Scenario) {
	t.Helper()
	ctx := context.Background()
	sink, err := metrics.NewPromSinkWithRegistry(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("prom sink: %v", err)
	}
	st := store.NewMemoryStore()
	if err := sc.Seed.Apply(ctx, st); err != nil {
		t.Fatalf("seed: %v", err)
	}
	bus := eventbus.New()
	defer bus.Close()
	cfg := dispatch.Config{Automation: sc.Automation.ToModel()}
	engine, err := dispatch.NewEngine(st, cfg, dispatch.WithMetrics(sink), dispatch.WithPublisher(bus))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	now := sc.Now
	for i := 0; i < sc.Ticks; i++ {
		if _, err := engine.Tick(ctx, now); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		now = now.Add(time.Duration(sc.TickMinutes) * time.Minute)
	}

	snap, err := st.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	byID := map[string]model.Delivery{}
	for _, d := range snap.Deliveries {
		byID[d.ID] = d
	}
	find := func(id string) (model.Delivery, bool) {
		d, ok := byID[id]
		if !ok {
			t.Errorf("scenario %s: delivery %s missing", sc.Name, id)
		}
		return d, ok
	}
	for id, want := range sc.Expected.Assignments {
		if d, ok := find(id); ok && d.AssignedDriver != want {
			t.Errorf("scenario %s: %s assigned to %q, want %q", sc.Name, id, d.AssignedDriver, want)
		}
	}
	for _, id := range sc.Expected.Unassigned {
		if d, ok := find(id); ok && !d.Unassigned() {
			t.Errorf("scenario %s: %s should be unassigned, got %s/%s", sc.Name, id, d.Status, d.AssignedDriver)
		}
	}
	for id, want := range sc.Expected.Priorities {
		if d, ok := find(id); ok && d.Priority.String() != want {
			t.Errorf("scenario %s: %s priority %s, want %s", sc.Name, id, d.Priority, want)
		}
	}
	if sc.Expected.Hints != nil {
		hints := engine.Hints()
		for zone, want := range sc.Expected.Hints {
			if !sameSet(hints[zone], want) {
				t.Errorf("scenario %s: hints for %s = %v, want %v", sc.Name, zone, hints[zone], want)
			}
		}
	}
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		if seen[s] == 0 {
			return false
		}
		seen[s]--
	}
	return true
}
