// Package logging persists the dispatch commit log. Every assignment the
// engine commits, automatic or manual, is appended as one CommitRecord.
package logging

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/geodispatch/core/model"
)

// CommitRecord captures one assignment decision.
type CommitRecord struct {
	Timestamp  time.Time      `json:"timestamp"`
	DeliveryID string         `json:"delivery_id"`
	DriverID   string         `json:"driver_id"`
	Zone       model.Zone     `json:"zone"`
	Priority   model.Priority `json:"priority"`
	Score      float64        `json:"score"`
	Manual     bool           `json:"manual"`
	// Rebalanced is set when a rebalancing hint contributed to the choice.
	Rebalanced bool `json:"rebalanced,omitempty"`
	// Candidates holds the score of every eligible driver considered.
	Candidates map[string]float64 `json:"candidates,omitempty"`
}

// CommitQuery defines filters for retrieving records.
type CommitQuery struct {
	Start      time.Time
	End        time.Time
	DriverID   string
	DeliveryID string
}

func (q CommitQuery) matches(r CommitRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.DriverID != "" && r.DriverID != q.DriverID {
		return false
	}
	if q.DeliveryID != "" && r.DeliveryID != q.DeliveryID {
		return false
	}
	return true
}

// LogStore persists CommitRecords and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec CommitRecord) error
	Query(ctx context.Context, q CommitQuery) ([]CommitRecord, error)
	Close() error
}

// Config selects the commit log backend.
type Config struct {
	// Backend is one of "jsonl", "rotating", "sqlite" or empty for none.
	Backend    string `json:"backend"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// New opens the configured backend. A nil store is returned when no backend
// is configured or when opening fails.
func New(cfg Config) (LogStore, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "jsonl":
		st, err := NewJSONLStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "rotating":
		size := cfg.MaxSizeMB
		if size == 0 {
			size = 10
		}
		st, err := NewRotatingJSONLStore(cfg.Path, size, cfg.MaxBackups, cfg.MaxAgeDays)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "sqlite":
		st, err := NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown commit log backend %q", cfg.Backend)
	}
}
