package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Priority expresses the urgency of a delivery. It only ever increases.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

// Valid reports whether p is one of the defined levels.
func (p Priority) Valid() bool { return p >= PriorityNormal && p <= PriorityUrgent }

// ParsePriority converts the textual representation into a Priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "urgent":
		return PriorityUrgent, nil
	default:
		return PriorityNormal, fmt.Errorf("unknown priority %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Status is the lifecycle state of a delivery.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusAccepted  Status = "accepted"
	StatusPickedUp  Status = "picked_up"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// ErrInvalidTransition is returned when a status change is not permitted.
var ErrInvalidTransition = errors.New("invalid status transition")

var nextStatus = map[Status]Status{
	StatusPending:   StatusAssigned,
	StatusAssigned:  StatusAccepted,
	StatusAccepted:  StatusPickedUp,
	StatusPickedUp:  StatusInTransit,
	StatusInTransit: StatusDelivered,
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool { return s == StatusDelivered || s == StatusCancelled }

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := nextStatus[s]
	return ok || s.Terminal()
}

// Active reports whether the delivery occupies a driver slot.
func (s Status) Active() bool {
	switch s {
	case StatusAssigned, StatusAccepted, StatusPickedUp, StatusInTransit:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a single forward step or a
// cancellation of a non-terminal delivery.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	return nextStatus[from] == to
}

// CheckTransition returns ErrInvalidTransition wrapped with context when the
// move is not allowed.
func CheckTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Delivery is a customer order moving through the dispatch lifecycle.
type Delivery struct {
	ID             string     `json:"id" yaml:"id"`
	Zone           Zone       `json:"zone" yaml:"zone"`
	Priority       Priority   `json:"priority" yaml:"priority"`
	Status         Status     `json:"status" yaml:"status"`
	AssignedDriver string     `json:"assigned_driver,omitempty" yaml:"assigned_driver,omitempty"`
	Destination    Coordinate `json:"destination" yaml:"destination"`
	CreatedAt      time.Time  `json:"created_at" yaml:"created_at"`
	// Progress is advisory only (0-100).
	Progress float64 `json:"progress" yaml:"progress"`
	// ETA is an advisory estimate to arrival.
	ETA            time.Duration `json:"eta,omitempty" yaml:"eta,omitempty"`
	RouteOptimized bool          `json:"route_optimized,omitempty" yaml:"route_optimized,omitempty"`
}

// Unassigned reports whether the delivery is waiting for a driver.
func (d Delivery) Unassigned() bool {
	return d.Status == StatusPending && d.AssignedDriver == ""
}

// Validate checks the record invariants.
func (d Delivery) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("delivery id is required")
	}
	if !d.Status.Valid() {
		return fmt.Errorf("delivery %s: unknown status %q", d.ID, d.Status)
	}
	if !d.Priority.Valid() {
		return fmt.Errorf("delivery %s: unknown priority %d", d.ID, int(d.Priority))
	}
	if d.Status.Active() && d.AssignedDriver == "" {
		return fmt.Errorf("delivery %s: status %s requires a driver", d.ID, d.Status)
	}
	if err := d.Destination.Validate(); err != nil {
		return fmt.Errorf("delivery %s: %w", d.ID, err)
	}
	return nil
}
