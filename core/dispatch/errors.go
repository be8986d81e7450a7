package dispatch

import "errors"

var (
	// ErrNoEligibleDriver is a normal outcome: the delivery stays pending.
	ErrNoEligibleDriver = errors.New("no eligible driver")
	// ErrAssignmentConflict means the store no longer matches the state the
	// decision was made on. The commit is skipped.
	ErrAssignmentConflict = errors.New("assignment conflict")
	// ErrDriverUnavailable is returned by manual assignment when the chosen
	// driver is offline or full.
	ErrDriverUnavailable = errors.New("driver unavailable")
)
