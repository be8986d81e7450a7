package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremon "github.com/kilianp07/geodispatch/core/monitoring"
)

func TestEmptyDSNIsNop(t *testing.T) {
	m, err := NewSentryMonitor(Config{})
	require.NoError(t, err)
	assert.IsType(t, coremon.NopMonitor{}, m)
}

func TestCaptureExceptionTags(t *testing.T) {
	var captured []*sentry.Event
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn: "https://key@sentry.example.com/1",
		BeforeSend: func(e *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			captured = append(captured, e)
			return nil
		},
	})
	require.NoError(t, err)
	m := &sentryMonitor{hub: sentry.NewHub(client, sentry.NewScope())}

	m.CaptureException(errors.New("commit conflict"), map[string]string{"module": "dispatch"})
	m.CaptureException(nil, nil)
	m.CapturePanic("boom")
	m.Flush(time.Millisecond)

	require.Len(t, captured, 2)
	assert.Equal(t, "dispatch", captured[0].Tags["module"])
	assert.Equal(t, "boom", captured[1].Message)
}
