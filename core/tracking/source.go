package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/geodispatch/core/model"
)

var (
	// ErrPermissionDenied is terminal until permission is requested again.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrLocationUnavailable is returned once the fallback ladder is exhausted
	// and no fresh enough sample can be reused.
	ErrLocationUnavailable = errors.New("location unavailable")
)

// Permission is the outcome of a permission request.
type Permission int

const (
	PermissionUnavailable Permission = iota
	PermissionGranted
	PermissionDenied
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "unavailable"
	}
}

// AcquireOptions tunes a single acquisition attempt.
type AcquireOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	// MaxAge is the oldest cached fix the attempt may return.
	MaxAge time.Duration
}

// Source is the host platform positioning service.
type Source interface {
	RequestPermission(ctx context.Context) (Permission, error)
	// Acquire returns one fix for the subject. It must honor ctx
	// cancellation and may return ErrPermissionDenied.
	Acquire(ctx context.Context, subjectID string, opts AcquireOptions) (model.LocationSample, error)
}

// SampleSink consumes accepted samples. Implementations must not block on
// dispatch state.
type SampleSink interface {
	HandleSample(ctx context.Context, s model.LocationSample) error
}

// SinkFunc adapts a function to SampleSink.
type SinkFunc func(ctx context.Context, s model.LocationSample) error

func (f SinkFunc) HandleSample(ctx context.Context, s model.LocationSample) error { return f(ctx, s) }
