package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/geodispatch/core/dispatch/logging"
	"github.com/kilianp07/geodispatch/core/events"
	"github.com/kilianp07/geodispatch/core/logger"
	"github.com/kilianp07/geodispatch/core/metrics"
	"github.com/kilianp07/geodispatch/core/model"
	"github.com/kilianp07/geodispatch/core/monitoring"
	"github.com/kilianp07/geodispatch/core/store"
)

// Assignment is one committed delivery to driver decision.
type Assignment struct {
	DeliveryID string    `json:"delivery_id"`
	DriverID   string    `json:"driver_id"`
	Score      float64   `json:"score"`
	Manual     bool      `json:"manual"`
	Rebalanced bool      `json:"rebalanced"`
	At         time.Time `json:"at"`
}

// TickResult summarizes the work done by one tick.
type TickResult struct {
	At          time.Time                  `json:"at"`
	Escalations []events.PriorityEscalated `json:"escalations,omitempty"`
	Assignments []Assignment               `json:"assignments,omitempty"`
	Unassigned  []string                   `json:"unassigned,omitempty"`
	Conflicts   int                        `json:"conflicts"`
	// Hints maps an overloaded zone to the drivers favored on the next tick.
	Hints      map[string][]string     `json:"hints,omitempty"`
	Advisories []events.RouteOptimized `json:"advisories,omitempty"`
	Load       metrics.FleetLoadEvent  `json:"load"`
}

// Engine is the periodic dispatch scheduler.
type Engine struct {
	store    store.Store
	scorer   Scorer
	cfg      Config
	pub      events.Publisher
	log      logger.Logger
	sink     metrics.MetricsSink
	commits  logging.LogStore
	onCommit []func(context.Context, Assignment)
	now      func() time.Time
	// interval is the ticker period of Start.
	interval time.Duration

	// mu serializes ticks and manual commits.
	mu    sync.Mutex
	hints map[model.Zone]map[string]bool

	tmu     sync.RWMutex
	toggles Toggles

	lmu    sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option { return func(e *Engine) { e.pub = p } }

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(e *Engine) { e.log = logger.OrNop(l) } }

// WithMetrics sets the metrics sink.
func WithMetrics(s metrics.MetricsSink) Option { return func(e *Engine) { e.sink = s } }

// WithCommitLog appends every commit to the store.
func WithCommitLog(s logging.LogStore) Option { return func(e *Engine) { e.commits = s } }

// WithOnCommit registers fn to run after every successful commit, manual or
// not. fn runs synchronously under the engine lock and must not call back into
// the engine.
func WithOnCommit(fn func(context.Context, Assignment)) Option {
	return func(e *Engine) { e.onCommit = append(e.onCommit, fn) }
}

// WithClock overrides the time source used by the ticker loop.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine builds an engine over s. cfg defaults are applied.
func NewEngine(s store.Store, cfg Config, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("dispatch store is required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		store:    s,
		scorer:   NewScorer(*cfg.Weights),
		cfg:      cfg,
		pub:      events.NopPublisher{},
		log:      logger.Nop{},
		sink:     metrics.NopSink{},
		now:      time.Now,
		interval: cfg.tickInterval(),
		hints:    map[model.Zone]map[string]bool{},
		toggles:  cfg.Automation,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// SetAutomation replaces the pass toggles. A tick already running keeps the
// toggles it started with.
func (e *Engine) SetAutomation(t Toggles) {
	e.tmu.Lock()
	e.toggles = t
	e.tmu.Unlock()
	e.log.Infof("dispatch automation: %+v", t)
}

// Automation returns the current toggles.
func (e *Engine) Automation() Toggles {
	e.tmu.RLock()
	defer e.tmu.RUnlock()
	return e.toggles
}

// Tick runs one scheduling round against a consistent snapshot. Ticks never
// overlap.
func (e *Engine) Tick(ctx context.Context, now time.Time) (TickResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	t := e.Automation()
	res := TickResult{At: now}

	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return res, fmt.Errorf("snapshot: %w", err)
	}
	if t.Escalation {
		e.escalate(ctx, now, &snap, &res)
	}
	if t.Assignment {
		e.assign(ctx, now, &snap, &res)
	}
	e.rebalance(now, snap, t.RebalanceHints && t.Assignment, &res)
	if t.RouteAdvisory {
		e.advise(ctx, now, snap, &res)
	}

	pending := 0
	for _, d := range snap.Deliveries {
		if d.Unassigned() {
			pending++
		}
	}
	elapsed := time.Since(start)
	tickDuration.Observe(elapsed.Seconds())
	pendingDeliveries.Set(float64(pending))
	e.record(metrics.TickEvent{
		Duration:  elapsed,
		Pending:   pending,
		Escalated: len(res.Escalations),
		Assigned:  len(res.Assignments),
		Conflicts: res.Conflicts,
		Hints:     len(res.Hints),
		Advised:   len(res.Advisories),
		Time:      now,
	})
	if len(res.Assignments) > 0 || len(res.Escalations) > 0 {
		e.log.Infof("tick: %d assigned, %d escalated, %d pending", len(res.Assignments), len(res.Escalations), pending)
	}
	return res, nil
}

func (e *Engine) record(ev metrics.TickEvent) {
	if r, ok := e.sink.(metrics.TickRecorder); ok {
		if err := r.RecordTick(ev); err != nil {
			e.log.Warnf("record tick: %v", err)
		}
	}
}

// Start runs ticks on the configured interval until Stop is called or ctx is
// canceled. Calling Start twice is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.lmu.Lock()
	defer e.lmu.Unlock()
	if e.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.loop(ctx, e.done)
	e.log.Infof("dispatch engine started, tick every %s", e.interval)
}

func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer monitoring.Recover()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	// ticks are not interrupted by Stop
	tickCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.Tick(tickCtx, e.now()); err != nil {
				e.log.Errorf("dispatch tick: %v", err)
			}
		}
	}
}

// Stop cancels the loop and waits for an in-progress tick to finish.
func (e *Engine) Stop() {
	e.lmu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.lmu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	e.log.Infof("dispatch engine stopped")
}

// Hints returns the rebalancing hints computed by the last tick.
func (e *Engine) Hints() map[string][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return hintList(e.hints)
}

func (e *Engine) replaceDelivery(snap *store.Snapshot, d model.Delivery) {
	for i := range snap.Deliveries {
		if snap.Deliveries[i].ID == d.ID {
			snap.Deliveries[i] = d
			return
		}
	}
}

func (e *Engine) replaceDriver(snap *store.Snapshot, d model.Driver) {
	for i := range snap.Drivers {
		if snap.Drivers[i].ID == d.ID {
			snap.Drivers[i] = d
			return
		}
	}
}
