package events

import "context"

// Sink forwards serialized events to an external transport.
type Sink interface {
	Send(ctx context.Context, env Envelope) error
	Close() error
}

// SinkFunc adapts a function to Sink. Close is a no-op.
type SinkFunc func(ctx context.Context, env Envelope) error

func (f SinkFunc) Send(ctx context.Context, env Envelope) error { return f(ctx, env) }
func (SinkFunc) Close() error                                   { return nil }
