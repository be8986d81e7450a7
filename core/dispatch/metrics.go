package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	tickDuration        prometheus.Histogram
	deliveriesAssigned  *prometheus.CounterVec
	priorityEscalations *prometheus.CounterVec
	assignmentConflicts prometheus.Counter
	pendingDeliveries   prometheus.Gauge
)

// newCollectors creates new metric collectors.
func newCollectors() (prometheus.Histogram, *prometheus.CounterVec, *prometheus.CounterVec, prometheus.Counter, prometheus.Gauge) {
	dur := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_tick_duration_seconds",
			Help:    "Duration of dispatch engine ticks",
			Buckets: prometheus.DefBuckets,
		},
	)
	asg := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliveries_assigned_total",
			Help: "Number of committed delivery assignments",
		},
		[]string{"zone", "manual"},
	)
	esc := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_priority_escalations_total",
			Help: "Number of priority escalations by target priority",
		},
		[]string{"priority"},
	)
	conf := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_assignment_conflicts_total",
			Help: "Number of skipped commits due to store conflicts",
		},
	)
	pend := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "deliveries_pending",
			Help: "Pending deliveries left unassigned after the last tick",
		},
	)
	return dur, asg, esc, conf, pend
}

func init() {
	tickDuration, deliveriesAssigned, priorityEscalations, assignmentConflicts, pendingDeliveries = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(tickDuration, deliveriesAssigned, priorityEscalations, assignmentConflicts, pendingDeliveries)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	tickDuration, deliveriesAssigned, priorityEscalations, assignmentConflicts, pendingDeliveries = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
