package tracking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/geodispatch/core/events"
	"github.com/kilianp07/geodispatch/core/geo"
	"github.com/kilianp07/geodispatch/core/logger"
	"github.com/kilianp07/geodispatch/core/model"
	"github.com/kilianp07/geodispatch/core/monitoring"
)

// Reasons carried by LocationUnavailable events.
const (
	ReasonPermissionDenied = "permission_denied"
	ReasonUnavailable      = "unavailable"
)

type subject struct {
	cancel   context.CancelFunc
	throttle *throttle
	// unknown is set while the subject has no fresh location.
	unknown bool
}

// Tracker runs one acquisition loop per tracked subject.
type Tracker struct {
	src   Source
	pub   events.Publisher
	log   logger.Logger
	sinks []SampleSink

	ladder            []AcquireOptions
	pollInterval      time.Duration
	minInterval       time.Duration
	permissionTimeout time.Duration
	staleAfter        time.Duration
	area              *ServiceArea
	now               func() time.Time

	mu         sync.Mutex
	subjects   map[string]*subject
	last       map[string]model.LocationSample
	permission Permission
	// denied holds subjects whose acquisition reported a denial. It is
	// cleared by RequestPermission.
	denied map[string]bool
	wg     sync.WaitGroup
}

// New returns a tracker reading from src. cfg defaults are applied.
func New(src Source, cfg Config, pub events.Publisher, log logger.Logger, sinks ...SampleSink) (*Tracker, error) {
	if src == nil {
		return nil, fmt.Errorf("tracking source is required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if pub == nil {
		pub = events.NopPublisher{}
	}
	ladder := make([]AcquireOptions, len(cfg.Ladder))
	for i, s := range cfg.Ladder {
		ladder[i] = s.options()
	}
	return &Tracker{
		src:               src,
		pub:               pub,
		log:               logger.OrNop(log),
		sinks:             sinks,
		ladder:            ladder,
		pollInterval:      time.Duration(cfg.PollIntervalSeconds) * time.Second,
		minInterval:       time.Duration(cfg.MinIntervalSeconds) * time.Second,
		permissionTimeout: time.Duration(cfg.PermissionTimeoutSeconds) * time.Second,
		staleAfter:        time.Duration(cfg.StaleAfterSeconds) * time.Second,
		area:              cfg.ServiceArea,
		now:               time.Now,
		subjects:          make(map[string]*subject),
		last:              make(map[string]model.LocationSample),
		denied:            make(map[string]bool),
	}, nil
}

// AddSink registers an additional consumer of accepted samples. It must be
// called before tracking starts.
func (t *Tracker) AddSink(s SampleSink) {
	t.mu.Lock()
	t.sinks = append(t.sinks, s)
	t.mu.Unlock()
}

// RequestPermission asks the platform for location access. A request that
// does not answer within the permission timeout yields PermissionUnavailable.
func (t *Tracker) RequestPermission(ctx context.Context) (Permission, error) {
	ctx, cancel := context.WithTimeout(ctx, t.permissionTimeout)
	defer cancel()
	p, err := t.src.RequestPermission(ctx)
	if err != nil {
		p = PermissionUnavailable
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			err = nil
		}
	}
	t.mu.Lock()
	t.permission = p
	clear(t.denied)
	t.mu.Unlock()
	t.log.Infof("location permission: %s", p)
	return p, err
}

// StartTracking begins continuous acquisition for subjectID. Calling it for
// an already tracked subject is a no-op. A platform-wide denial refuses every
// subject; a denial reported for one subject refuses only that subject.
func (t *Tracker) StartTracking(ctx context.Context, subjectID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.permission == PermissionDenied || t.denied[subjectID] {
		return fmt.Errorf("%s: %w", subjectID, ErrPermissionDenied)
	}
	if _, ok := t.subjects[subjectID]; ok {
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s := &subject{cancel: cancel, throttle: newThrottle(t.minInterval)}
	t.subjects[subjectID] = s
	t.wg.Add(1)
	go t.run(loopCtx, subjectID, s)
	t.log.Debugf("tracking started for %s", subjectID)
	return nil
}

// StopTracking cancels the loop of subjectID. It is safe to call for a
// subject that is not tracked.
func (t *Tracker) StopTracking(subjectID string) {
	t.mu.Lock()
	s, ok := t.subjects[subjectID]
	if ok {
		delete(t.subjects, subjectID)
	}
	t.mu.Unlock()
	if ok {
		s.cancel()
		t.log.Debugf("tracking stopped for %s", subjectID)
	}
}

// Tracking reports whether subjectID has an active loop.
func (t *Tracker) Tracking(subjectID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.subjects[subjectID]
	return ok
}

// Subjects lists the tracked subject identifiers.
func (t *Tracker) Subjects() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.subjects))
	for id := range t.subjects {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Last returns the most recent acquired sample for subjectID.
func (t *Tracker) Last(subjectID string) (model.LocationSample, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.last[subjectID]
	return s, ok
}

// Close stops every loop and waits for them to exit.
func (t *Tracker) Close() {
	t.mu.Lock()
	for id, s := range t.subjects {
		s.cancel()
		delete(t.subjects, id)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

// Locate performs one pass over the fallback ladder. When every step fails it
// falls back to the last sample younger than the staleness ceiling.
func (t *Tracker) Locate(ctx context.Context, subjectID string) (model.LocationSample, error) {
	s, err := t.acquire(ctx, subjectID)
	if err == nil {
		t.accept(ctx, subjectID, s, t.throttleFor(subjectID))
		return s, nil
	}
	if errors.Is(err, ErrPermissionDenied) {
		return model.LocationSample{}, err
	}
	if last, ok := t.fresh(subjectID); ok {
		return last, nil
	}
	return model.LocationSample{}, err
}

func (t *Tracker) throttleFor(subjectID string) *throttle {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.subjects[subjectID]; ok {
		return s.throttle
	}
	return nil
}

func (t *Tracker) fresh(subjectID string) (model.LocationSample, bool) {
	last, ok := t.Last(subjectID)
	if !ok || last.Age(t.now()) > t.staleAfter {
		return model.LocationSample{}, false
	}
	return last, true
}

// acquire walks the ladder once. It never retries a step.
func (t *Tracker) acquire(ctx context.Context, subjectID string) (model.LocationSample, error) {
	var lastErr error
	for _, opts := range t.ladder {
		if ctx.Err() != nil {
			return model.LocationSample{}, ctx.Err()
		}
		stepCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		s, err := t.src.Acquire(stepCtx, subjectID, opts)
		cancel()
		if err == nil {
			err = t.check(s, opts)
		}
		if err == nil {
			if s.SubjectID == "" {
				s.SubjectID = subjectID
			}
			return s, nil
		}
		if errors.Is(err, ErrPermissionDenied) {
			return model.LocationSample{}, err
		}
		t.log.Debugw("location attempt failed", map[string]any{
			"subject":       subjectID,
			"high_accuracy": opts.HighAccuracy,
			"error":         err.Error(),
		})
		lastErr = err
	}
	return model.LocationSample{}, fmt.Errorf("%w: %v", ErrLocationUnavailable, lastErr)
}

func (t *Tracker) check(s model.LocationSample, opts AcquireOptions) error {
	if err := s.Position.Validate(); err != nil {
		return err
	}
	if opts.MaxAge > 0 && s.Age(t.now()) > opts.MaxAge {
		return fmt.Errorf("fix older than %s", opts.MaxAge)
	}
	return nil
}

func (t *Tracker) run(ctx context.Context, subjectID string, s *subject) {
	defer t.wg.Done()
	defer monitoring.Recover()
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()
	for {
		if !t.poll(ctx, subjectID, s) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll runs one iteration of a subject loop and reports whether it should
// continue.
func (t *Tracker) poll(ctx context.Context, subjectID string, s *subject) bool {
	sample, err := t.acquire(ctx, subjectID)
	if ctx.Err() != nil {
		return false
	}
	switch {
	case err == nil:
		s.unknown = false
		t.accept(ctx, subjectID, sample, s.throttle)
	case errors.Is(err, ErrPermissionDenied):
		t.mu.Lock()
		t.denied[subjectID] = true
		if cur, ok := t.subjects[subjectID]; ok && cur == s {
			delete(t.subjects, subjectID)
		}
		t.mu.Unlock()
		t.log.Warnf("location permission denied for %s, tracking stopped", subjectID)
		t.pub.Publish(events.LocationUnavailable{SubjectID: subjectID, Reason: ReasonPermissionDenied, Terminal: true, Time: t.now()})
		return false
	default:
		if out, ok := s.throttle.flush(t.now()); ok {
			t.deliver(ctx, out)
		}
		if _, ok := t.fresh(subjectID); ok {
			return true
		}
		if !s.unknown {
			s.unknown = true
			t.log.Warnf("location unknown for %s: %v", subjectID, err)
			t.pub.Publish(events.LocationUnavailable{SubjectID: subjectID, Reason: ReasonUnavailable, Time: t.now()})
		}
	}
	return true
}

// accept records the sample as the latest and publishes it when the throttle
// allows. th may be nil for untracked one-shot lookups.
func (t *Tracker) accept(ctx context.Context, subjectID string, s model.LocationSample, th *throttle) {
	t.mu.Lock()
	t.last[subjectID] = s
	t.mu.Unlock()
	if th == nil {
		t.deliver(ctx, s)
		return
	}
	if out, ok := th.offer(t.now(), s); ok {
		t.deliver(ctx, out)
	}
}

func (t *Tracker) deliver(ctx context.Context, s model.LocationSample) {
	t.mu.Lock()
	sinks := append([]SampleSink(nil), t.sinks...)
	t.mu.Unlock()
	for _, sink := range sinks {
		if err := sink.HandleSample(ctx, s); err != nil {
			t.log.Warnf("sample sink for %s: %v", s.SubjectID, err)
		}
	}
	t.pub.Publish(events.LocationUpdated{Sample: s, InServiceArea: t.inServiceArea(s.Position)})
}

func (t *Tracker) inServiceArea(p model.Coordinate) bool {
	if t.area == nil {
		return true
	}
	return geo.Within(t.area.Center, t.area.RadiusM, p)
}
