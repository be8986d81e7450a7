package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/geodispatch/core/metrics"
)

// PromSink records dispatch, tracking and gate events in Prometheus metrics.
type PromSink struct {
	assignments *prometheus.CounterVec
	wait        *prometheus.HistogramVec
	score       prometheus.Histogram
	online      prometheus.Gauge
	overloaded  prometheus.Gauge
	loadMean    prometheus.Gauge
	loadStdDev  prometheus.Gauge
	fixes       *prometheus.CounterVec
	accuracy    prometheus.Histogram
	transitions *prometheus.CounterVec
	completions *prometheus.CounterVec
}

// NewPromSink registers metrics on the default Prometheus registerer.
// The HTTP endpoint is served separately by StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_assignments_total",
			Help: "Assignments committed by zone, priority and origin",
		}, []string{"zone", "priority", "manual"}),
		wait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "delivery_wait_seconds",
			Help:    "Delivery age when a driver was committed",
			Buckets: []float64{60, 300, 600, 1800, 3600, 5400, 7200},
		}, []string{"priority"}),
		score: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_assignment_score",
			Help:    "Score of the winning driver",
			Buckets: prometheus.LinearBuckets(0, 20, 8),
		}),
		online:     prometheus.NewGauge(prometheus.GaugeOpts{Name: "fleet_online_drivers", Help: "Online drivers seen by the last tick"}),
		overloaded: prometheus.NewGauge(prometheus.GaugeOpts{Name: "fleet_overloaded_drivers", Help: "Online drivers at capacity"}),
		loadMean:   prometheus.NewGauge(prometheus.GaugeOpts{Name: "fleet_load_mean", Help: "Mean load over online drivers"}),
		loadStdDev: prometheus.NewGauge(prometheus.GaugeOpts{Name: "fleet_load_stddev", Help: "Load standard deviation over online drivers"}),
		fixes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "location_fixes_total",
			Help: "Accepted location fixes",
		}, []string{"in_service_area"}),
		accuracy: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "location_accuracy_meters",
			Help:    "Reported accuracy of accepted fixes",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 1000},
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geofence_transitions_total",
			Help: "Geofence transitions by zone kind and direction",
		}, []string{"kind", "direction"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "delivery_completion_attempts_total",
			Help: "Completion attempts at the delivery gate",
		}, []string{"outcome", "reason"}),
	}
	var err error
	if s.assignments, err = registerOrExisting(reg, s.assignments); err != nil {
		return nil, err
	}
	if s.wait, err = registerOrExisting(reg, s.wait); err != nil {
		return nil, err
	}
	if s.score, err = registerOrExisting(reg, s.score); err != nil {
		return nil, err
	}
	if s.online, err = registerOrExisting(reg, s.online); err != nil {
		return nil, err
	}
	if s.overloaded, err = registerOrExisting(reg, s.overloaded); err != nil {
		return nil, err
	}
	if s.loadMean, err = registerOrExisting(reg, s.loadMean); err != nil {
		return nil, err
	}
	if s.loadStdDev, err = registerOrExisting(reg, s.loadStdDev); err != nil {
		return nil, err
	}
	if s.fixes, err = registerOrExisting(reg, s.fixes); err != nil {
		return nil, err
	}
	if s.accuracy, err = registerOrExisting(reg, s.accuracy); err != nil {
		return nil, err
	}
	if s.transitions, err = registerOrExisting(reg, s.transitions); err != nil {
		return nil, err
	}
	if s.completions, err = registerOrExisting(reg, s.completions); err != nil {
		return nil, err
	}
	return s, nil
}

// registerOrExisting returns the already registered collector when a sink is
// built twice against the same registerer.
func registerOrExisting[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordAssignment counts the commit and observes wait and score.
func (s *PromSink) RecordAssignment(ev coremetrics.AssignmentEvent) error {
	s.assignments.WithLabelValues(string(ev.Zone), ev.Priority.String(), strconv.FormatBool(ev.Manual)).Inc()
	s.wait.WithLabelValues(ev.Priority.String()).Observe(ev.Wait.Seconds())
	s.score.Observe(ev.Score)
	return nil
}

// RecordFleetLoad sets the fleet gauges.
func (s *PromSink) RecordFleetLoad(ev coremetrics.FleetLoadEvent) error {
	s.online.Set(float64(ev.Online))
	s.overloaded.Set(float64(ev.Overloaded))
	s.loadMean.Set(ev.MeanLoad)
	s.loadStdDev.Set(ev.StdDevLoad)
	return nil
}

// RecordLocation counts an accepted fix.
func (s *PromSink) RecordLocation(ev coremetrics.LocationEvent) error {
	s.fixes.WithLabelValues(strconv.FormatBool(ev.InServiceArea)).Inc()
	s.accuracy.Observe(ev.AccuracyM)
	return nil
}

// RecordGeofenceTransition counts a transition.
func (s *PromSink) RecordGeofenceTransition(ev coremetrics.GeofenceTransitionEvent) error {
	dir := "exited"
	if ev.Entered {
		dir = "entered"
	}
	s.transitions.WithLabelValues(string(ev.Kind), dir).Inc()
	return nil
}

// RecordCompletion counts a gate decision.
func (s *PromSink) RecordCompletion(ev coremetrics.CompletionEvent) error {
	outcome := "rejected"
	if ev.Delivered {
		outcome = "delivered"
	}
	s.completions.WithLabelValues(outcome, ev.Reason).Inc()
	return nil
}
