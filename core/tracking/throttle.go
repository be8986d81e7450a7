package tracking

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kilianp07/geodispatch/core/model"
)

// throttle lets through at most one sample per interval. A throttled sample is
// kept as pending and replaced by any newer one.
type throttle struct {
	mu      sync.Mutex
	lim     *rate.Limiter
	pending *model.LocationSample
}

func newThrottle(interval time.Duration) *throttle {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &throttle{lim: rate.NewLimiter(limit, 1)}
}

func (t *throttle) offer(now time.Time, s model.LocationSample) (model.LocationSample, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = &s
	return t.take(now)
}

func (t *throttle) flush(now time.Time) (model.LocationSample, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.take(now)
}

func (t *throttle) take(now time.Time) (model.LocationSample, bool) {
	if t.pending == nil || !t.lim.AllowN(now, 1) {
		return model.LocationSample{}, false
	}
	s := *t.pending
	t.pending = nil
	return s, true
}
