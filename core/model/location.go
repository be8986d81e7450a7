package model

import "time"

// LocationSample is one normalized position fix for a subject (driver or
// customer). Only the most recent sample per subject is retained.
type LocationSample struct {
	SubjectID string     `json:"subject_id" yaml:"subject_id"`
	Position  Coordinate `json:"position" yaml:"position"`
	AccuracyM float64    `json:"accuracy_m" yaml:"accuracy_m"`
	Timestamp time.Time  `json:"timestamp" yaml:"timestamp"`
	Heading   *float64   `json:"heading,omitempty" yaml:"heading,omitempty"`
	Speed     *float64   `json:"speed,omitempty" yaml:"speed,omitempty"`
}

// Age returns how old the sample is relative to now.
func (s LocationSample) Age(now time.Time) time.Duration {
	return now.Sub(s.Timestamp)
}
