package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/geodispatch/core/metrics"
	"github.com/kilianp07/geodispatch/core/model"
)

type lineServer struct {
	mu     sync.Mutex
	bodies []string
	srv    *httptest.Server
}

func newLineServer(t *testing.T) *lineServer {
	ls := &lineServer{}
	ls.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		ls.mu.Lock()
		ls.bodies = append(ls.bodies, strings.TrimSpace(string(data)))
		ls.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(ls.srv.Close)
	return ls
}

func (ls *lineServer) sink() *InfluxSink {
	return NewInfluxSink(InfluxConfig{URL: ls.srv.URL, Token: "token", Org: "org", Bucket: "bucket"})
}

func (ls *lineServer) expect(t *testing.T, p *write.Point) {
	t.Helper()
	exp := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if len(ls.bodies) != 1 || ls.bodies[0] != exp {
		t.Errorf("unexpected bodies: %#v, want %s", ls.bodies, exp)
	}
}

func TestInfluxSink_RecordAssignment(t *testing.T) {
	ls := newLineServer(t)
	now := time.Now()
	ev := coremetrics.AssignmentEvent{DeliveryID: "d1", DriverID: "drv1", Zone: "north", Priority: model.PriorityUrgent, Score: 115.25, Wait: 95 * time.Minute, Time: now}
	if err := ls.sink().RecordAssignment(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	ls.expect(t, write.NewPointWithMeasurement("delivery_assignment").
		AddTag("delivery_id", "d1").
		AddTag("driver_id", "drv1").
		AddTag("zone", "north").
		AddTag("priority", "urgent").
		AddTag("manual", "false").
		AddField("score", 115.25).
		AddField("wait_s", 5700.0).
		SetTime(now))
}

func TestInfluxSink_RecordGeofenceTransition(t *testing.T) {
	ls := newLineServer(t)
	now := time.Now()
	ev := coremetrics.GeofenceTransitionEvent{SubjectID: "drv1", ZoneID: "delivery:d1", Kind: model.KindDelivery, Entered: true, DistanceM: 11.1194, Time: now}
	if err := ls.sink().RecordGeofenceTransition(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	ls.expect(t, write.NewPointWithMeasurement("geofence_transition").
		AddTag("subject_id", "drv1").
		AddTag("zone_id", "delivery:d1").
		AddTag("kind", "delivery_zone").
		AddField("entered", true).
		AddField("distance_m", 11.119).
		SetTime(now))
}

func TestInfluxSink_RecordCompletionRejected(t *testing.T) {
	ls := newLineServer(t)
	now := time.Now()
	ev := coremetrics.CompletionEvent{DeliveryID: "d1", DriverID: "drv1", Reason: "outside_zone", DistanceM: 311.2, Time: now}
	if err := ls.sink().RecordCompletion(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	ls.expect(t, write.NewPointWithMeasurement("delivery_completion").
		AddTag("delivery_id", "d1").
		AddTag("driver_id", "drv1").
		AddTag("reason", "outside_zone").
		AddField("delivered", false).
		AddField("distance_m", 311.2).
		SetTime(now))
}

func TestInfluxSink_RecordTick(t *testing.T) {
	ls := newLineServer(t)
	now := time.Now()
	ev := coremetrics.TickEvent{Duration: 1500 * time.Microsecond, Pending: 3, Assigned: 2, Time: now}
	if err := ls.sink().RecordTick(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	ls.expect(t, write.NewPointWithMeasurement("dispatch_tick").
		AddTag("component", "dispatch_engine").
		AddField("duration_ms", 1.5).
		AddField("pending", 3).
		AddField("escalated", 0).
		AddField("assigned", 2).
		AddField("conflicts", 0).
		AddField("hints", 0).
		AddField("advised", 0).
		SetTime(now))
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "tok", Org: "org", Bucket: "bucket"})
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
