package gate

import (
	"errors"
	"fmt"
)

// Violation reasons.
const (
	ReasonNotInTransit    = "not_in_transit"
	ReasonNoDriver        = "no_driver"
	ReasonLocationUnknown = "location_unknown"
	ReasonOutsideZone     = "outside_zone"
)

// ErrDeliveredViaTransition is returned when Transition is asked for the
// delivered status. Completion goes through AttemptComplete.
var ErrDeliveredViaTransition = errors.New("delivered is only reachable through AttemptComplete")

// GeofenceViolation is returned when a delivery may not be completed. It
// carries the current distance so the driver can be told why.
type GeofenceViolation struct {
	DeliveryID string
	DriverID   string
	// DistanceM is negative when no position is known.
	DistanceM float64
	RadiusM   float64
	Reason    string
}

func (e *GeofenceViolation) Error() string {
	switch e.Reason {
	case ReasonOutsideZone:
		return fmt.Sprintf("delivery %s: driver %s is %.0f m from destination (limit %.0f m)", e.DeliveryID, e.DriverID, e.DistanceM, e.RadiusM)
	case ReasonLocationUnknown:
		return fmt.Sprintf("delivery %s: position of driver %s is unknown", e.DeliveryID, e.DriverID)
	default:
		return fmt.Sprintf("delivery %s: cannot complete (%s)", e.DeliveryID, e.Reason)
	}
}
