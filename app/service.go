package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kilianp07/geodispatch/app/plugins"
	"github.com/kilianp07/geodispatch/config"
	"github.com/kilianp07/geodispatch/core/dispatch"
	dispatchlog "github.com/kilianp07/geodispatch/core/dispatch/logging"
	"github.com/kilianp07/geodispatch/core/events"
	"github.com/kilianp07/geodispatch/core/gate"
	"github.com/kilianp07/geodispatch/core/geofence"
	coremetrics "github.com/kilianp07/geodispatch/core/metrics"
	"github.com/kilianp07/geodispatch/core/model"
	coremon "github.com/kilianp07/geodispatch/core/monitoring"
	"github.com/kilianp07/geodispatch/core/store"
	"github.com/kilianp07/geodispatch/core/tracking"
	"github.com/kilianp07/geodispatch/infra/archive"
	"github.com/kilianp07/geodispatch/infra/logger"
	"github.com/kilianp07/geodispatch/infra/metrics"
	"github.com/kilianp07/geodispatch/infra/monitoring"
	"github.com/kilianp07/geodispatch/infra/mqtt"
	"github.com/kilianp07/geodispatch/infra/postgres"
	"github.com/kilianp07/geodispatch/internal/eventbus"
	"github.com/kilianp07/geodispatch/simulator"
)

// Service wires the store, dispatch engine, tracker, geofence monitor and
// delivery gate to the configured transports.
type Service struct {
	Store   store.Store
	Engine  *dispatch.Engine
	Gate    *gate.Gate
	Monitor *geofence.Monitor
	// Tracker is nil when the location source is "none".
	Tracker *tracking.Tracker
	// Sim is set when the simulator provides driver positions.
	Sim *simulator.Source

	cfg        *config.Config
	bus        *eventbus.EventBus
	log        logger.Logger
	sink       coremetrics.MetricsSink
	commits    dispatchlog.LogStore
	mqtt       *mqtt.Client
	forwarder  *eventbus.Forwarder
	hub        http.Handler
	forwarding bool
	promAddr   string
	autopilot  *autopilot
	// life bounds the tracking loops started on commit; Close cancels it.
	life     context.Context
	stopLife context.CancelFunc
}

// New creates a Service from the configuration.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	s := &Service{cfg: cfg, log: logg, bus: eventbus.New()}
	s.life, s.stopLife = context.WithCancel(context.Background())
	ok := false
	defer func() {
		if !ok {
			_ = s.Close()
		}
	}()

	if s.Store, err = openStore(ctx, cfg.Store); err != nil {
		return nil, err
	}
	s.Monitor = geofence.NewMonitor(s.bus, logger.New("geofence"))
	zones := cfg.Zones
	if cfg.Store.SeedPath != "" {
		seed, err := store.LoadSeedFile(cfg.Store.SeedPath)
		if err != nil {
			return nil, fmt.Errorf("seed: %w", err)
		}
		if err := seed.Apply(ctx, s.Store); err != nil {
			return nil, err
		}
		zones = append(zones, seed.Zones...)
	}
	for _, z := range zones {
		if err := s.Monitor.AddZone(z); err != nil {
			return nil, fmt.Errorf("zone %s: %w", z.ID, err)
		}
	}

	if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	for _, m := range cfg.Metrics.Sinks {
		if m.Type == "prometheus" {
			s.promAddr = cfg.Metrics.ListenAddr
		}
	}
	if s.commits, err = dispatchlog.New(cfg.CommitLog); err != nil {
		return nil, fmt.Errorf("commit log: %w", err)
	}

	if err := s.buildTracker(cfg); err != nil {
		return nil, err
	}

	opts := []dispatch.Option{
		dispatch.WithPublisher(s.bus),
		dispatch.WithLogger(logger.New("dispatch")),
		dispatch.WithMetrics(s.sink),
		dispatch.WithOnCommit(s.onCommit),
	}
	if s.commits != nil {
		opts = append(opts, dispatch.WithCommitLog(s.commits))
	}
	if s.Engine, err = dispatch.NewEngine(s.Store, cfg.Dispatch, opts...); err != nil {
		return nil, fmt.Errorf("dispatch engine: %w", err)
	}

	gopts := []gate.Option{gate.WithPublisher(s.bus), gate.WithLogger(logger.New("gate"))}
	if s.Tracker != nil {
		gopts = append(gopts, gate.WithTracker(s.Tracker))
	}
	if cfg.Archive != nil {
		a, err := archive.NewS3Archiver(ctx, *cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		gopts = append(gopts, gate.WithArchiver(a))
	}
	s.Gate = gate.New(s.Store, s.Monitor, cfg.Gate, gopts...)

	if err := s.buildTransports(cfg); err != nil {
		return nil, err
	}
	if s.Sim != nil {
		s.autopilot = newAutopilot(s.Gate, s.Store, s.Sim, cfg.Simulator)
		s.Tracker.AddSink(s.autopilot)
	}
	ok = true
	return s, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "postgres":
		st, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		return st, nil
	default:
		return store.NewMemoryStore(), nil
	}
}

func (s *Service) buildTracker(cfg *config.Config) error {
	var src tracking.Source
	switch cfg.Location.Source {
	case "mqtt":
		c, err := mqtt.Dial(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("mqtt client: %w", err)
		}
		s.mqtt = c
		ls, err := mqtt.NewLocationSource(c, cfg.MQTT)
		if err != nil {
			return fmt.Errorf("mqtt location source: %w", err)
		}
		src = ls
	case "simulator":
		s.Sim = simulator.NewSource(cfg.Simulator)
		src = s.Sim
	default:
		return nil
	}
	t, err := tracking.New(src, cfg.Tracking, s.bus, logger.New("tracking"),
		tracking.SinkFunc(s.storeLocation), s.Monitor)
	if err != nil {
		return fmt.Errorf("tracker: %w", err)
	}
	s.Tracker = t
	return nil
}

// storeLocation writes the driver position before the monitor sees it so the
// gate can fall back to it for distance reporting.
func (s *Service) storeLocation(ctx context.Context, sample model.LocationSample) error {
	err := s.Store.UpdateDriverLocation(ctx, sample.SubjectID, sample)
	if errors.Is(err, store.ErrNotFound) {
		s.log.Debugf("location for unknown driver %s", sample.SubjectID)
		return nil
	}
	return err
}

func (s *Service) buildTransports(cfg *config.Config) error {
	var sinks []events.Sink
	for _, tc := range cfg.Transports {
		var (
			sink events.Sink
			err  error
		)
		if tc.Type == "mqtt" && len(tc.Conf) == 0 && s.mqtt != nil {
			sink = mqtt.NewPublisherWithClient(s.mqtt, cfg.MQTT)
		} else {
			sink, err = plugins.NewTransport(tc)
		}
		if err != nil {
			for _, prev := range sinks {
				_ = prev.Close()
			}
			return fmt.Errorf("transport %s: %w", tc.Type, err)
		}
		if h, ok := sink.(http.Handler); ok {
			s.hub = h
		}
		sinks = append(sinks, sink)
	}
	if len(sinks) > 0 {
		s.forwarder = eventbus.NewForwarder(s.bus, logger.New("forwarder"), sinks...)
	}
	return nil
}

// Bus returns the in-process event bus.
func (s *Service) Bus() *eventbus.EventBus { return s.bus }

// Run starts every component and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.Tracker != nil {
		if _, err := s.Tracker.RequestPermission(ctx); err != nil {
			s.log.Warnf("location permission: %v", err)
		}
	}
	if s.forwarder != nil {
		s.forwarding = true
		go s.forwarder.Run(ctx)
	}
	metrics.StartEventCollector(ctx, s.bus, s.sink)
	if s.promAddr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	s.resumeTracking(ctx)
	if s.autopilot != nil {
		go s.autopilot.run(ctx)
		go s.autopilot.generate(ctx)
	}
	s.Engine.Start(ctx)

	srv := &http.Server{Addr: s.cfg.API.ListenAddr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		s.log.Infof("serving api on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("api shutdown: %v", err)
	}
	s.Engine.Stop()
	return runErr
}

// onCommit starts tracking the driver of every committed delivery. It runs
// inside the engine commit path so an assignment can never be missed.
func (s *Service) onCommit(_ context.Context, a dispatch.Assignment) {
	if s.Tracker != nil {
		if err := s.Tracker.StartTracking(s.life, a.DriverID); err != nil {
			s.log.Warnf("start tracking %s: %v", a.DriverID, err)
		}
	}
	if s.autopilot != nil {
		s.autopilot.assigned(s.life, a)
	}
}

// resumeTracking restores tracking and completion zones for deliveries that
// were active before a restart.
func (s *Service) resumeTracking(ctx context.Context) {
	snap, err := s.Store.Snapshot(ctx)
	if err != nil {
		s.log.Errorf("snapshot: %v", err)
		return
	}
	if s.Sim != nil {
		for _, d := range snap.Drivers {
			if d.LastKnownLocation != nil {
				s.Sim.Place(d.ID, d.LastKnownLocation.Position)
			}
		}
	}
	for _, d := range snap.Deliveries {
		if !d.Status.Active() {
			continue
		}
		if d.Status == model.StatusInTransit {
			if err := s.Monitor.AddZone(s.Gate.CompletionZone(d)); err != nil {
				s.log.Errorf("completion zone %s: %v", d.ID, err)
			}
		}
		if s.Tracker != nil {
			if err := s.Tracker.StartTracking(s.life, d.AssignedDriver); err != nil {
				s.log.Warnf("resume tracking %s: %v", d.AssignedDriver, err)
			}
		}
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if s.Engine != nil {
		s.Engine.Stop()
	}
	s.stopLife()
	if s.Tracker != nil {
		s.Tracker.Close()
	}
	s.bus.Close()
	if s.forwarder != nil {
		if s.forwarding {
			s.forwarder.Wait()
		}
		errs = append(errs, s.forwarder.Close())
	}
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	if s.commits != nil {
		errs = append(errs, s.commits.Close())
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}

// SeedSimulation fills an empty store with a generated roster and orders. It
// is a no-op unless the simulator is the location source.
func (s *Service) SeedSimulation(ctx context.Context) error {
	if s.autopilot == nil {
		return nil
	}
	return s.autopilot.seed(ctx)
}
