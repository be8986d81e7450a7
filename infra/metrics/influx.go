package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/geodispatch/core/metrics"
	"github.com/kilianp07/geodispatch/infra/logger"
)

// InfluxConfig locates the InfluxDB bucket.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes dispatch and geofencing events to InfluxDB using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordAssignment writes one point per committed assignment.
func (s *InfluxSink) RecordAssignment(ev coremetrics.AssignmentEvent) error {
	p := write.NewPointWithMeasurement("delivery_assignment").
		AddTag("delivery_id", ev.DeliveryID).
		AddTag("driver_id", ev.DriverID).
		AddTag("zone", string(ev.Zone)).
		AddTag("priority", ev.Priority.String()).
		AddTag("manual", strconv.FormatBool(ev.Manual)).
		AddField("score", round3(ev.Score)).
		AddField("wait_s", round3(ev.Wait.Seconds())).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordTick writes the tick summary.
func (s *InfluxSink) RecordTick(ev coremetrics.TickEvent) error {
	p := write.NewPointWithMeasurement("dispatch_tick").
		AddTag("component", "dispatch_engine").
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		AddField("pending", ev.Pending).
		AddField("escalated", ev.Escalated).
		AddField("assigned", ev.Assigned).
		AddField("conflicts", ev.Conflicts).
		AddField("hints", ev.Hints).
		AddField("advised", ev.Advised).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordFleetLoad writes the load statistics.
func (s *InfluxSink) RecordFleetLoad(ev coremetrics.FleetLoadEvent) error {
	p := write.NewPointWithMeasurement("fleet_load").
		AddField("online", ev.Online).
		AddField("overloaded", ev.Overloaded).
		AddField("mean", round3(ev.MeanLoad)).
		AddField("stddev", round3(ev.StdDevLoad)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordLocation writes an accepted fix without its coordinates.
func (s *InfluxSink) RecordLocation(ev coremetrics.LocationEvent) error {
	p := write.NewPointWithMeasurement("location_fix").
		AddTag("subject_id", ev.SubjectID).
		AddTag("in_service_area", strconv.FormatBool(ev.InServiceArea)).
		AddField("accuracy_m", round3(ev.AccuracyM)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordGeofenceTransition writes an entered or exited transition.
func (s *InfluxSink) RecordGeofenceTransition(ev coremetrics.GeofenceTransitionEvent) error {
	p := write.NewPointWithMeasurement("geofence_transition").
		AddTag("subject_id", ev.SubjectID).
		AddTag("zone_id", ev.ZoneID).
		AddTag("kind", string(ev.Kind)).
		AddField("entered", ev.Entered).
		AddField("distance_m", round3(ev.DistanceM)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordCompletion writes a gate decision.
func (s *InfluxSink) RecordCompletion(ev coremetrics.CompletionEvent) error {
	p := write.NewPointWithMeasurement("delivery_completion").
		AddTag("delivery_id", ev.DeliveryID).
		AddTag("driver_id", ev.DriverID)
	if ev.Reason != "" {
		p = p.AddTag("reason", ev.Reason)
	}
	p = p.AddField("delivered", ev.Delivered).
		AddField("distance_m", round3(ev.DistanceM)).
		SetTime(ev.Time)
	return s.write(p)
}

// Close releases the HTTP client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
