package metrics

// MultiSink fans out records to multiple sinks. Optional recorder interfaces
// are forwarded only to sinks implementing them.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordAssignment forwards the record to all sinks, returning the first error encountered.
func (m *MultiSink) RecordAssignment(ev AssignmentEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordAssignment(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordTick(ev TickEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(TickRecorder); ok {
			if err := rec.RecordTick(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordFleetLoad(ev FleetLoadEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(FleetLoadRecorder); ok {
			if err := rec.RecordFleetLoad(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordLocation(ev LocationEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(LocationRecorder); ok {
			if err := rec.RecordLocation(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordGeofenceTransition(ev GeofenceTransitionEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(GeofenceRecorder); ok {
			if err := rec.RecordGeofenceTransition(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordCompletion(ev CompletionEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(CompletionRecorder); ok {
			if err := rec.RecordCompletion(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
