package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/geodispatch/core/events"
	"github.com/kilianp07/geodispatch/core/model"
)

type fakeRedis struct {
	channels []string
	keys     map[string]string
	ttl      time.Duration
	err      error
}

func (f *fakeRedis) Publish(_ context.Context, channel string, _ any) *goredis.IntCmd {
	f.channels = append(f.channels, channel)
	return goredis.NewIntResult(1, f.err)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, exp time.Duration) *goredis.StatusCmd {
	if f.keys == nil {
		f.keys = map[string]string{}
	}
	f.keys[key] = string(value.([]byte))
	f.ttl = exp
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Close() error { return nil }

func TestSendPublishesOnPrefixedChannel(t *testing.T) {
	fr := &fakeRedis{}
	cfg := Config{}
	cfg.SetDefaults()
	p := newPublisher(fr, cfg)
	env, err := events.Wrap(events.DeliveryAssigned{DeliveryID: "d1", DriverID: "drv1"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, p.Send(context.Background(), env))
	assert.Equal(t, []string{"geodispatch:delivery.assigned"}, fr.channels)
	assert.Empty(t, fr.keys)
}

func TestSendCachesLatestLocation(t *testing.T) {
	fr := &fakeRedis{}
	cfg := Config{LocationKeyPrefix: "loc:", LocationTTLSeconds: 30}
	cfg.SetDefaults()
	p := newPublisher(fr, cfg)
	sample := model.LocationSample{SubjectID: "drv7", Position: model.Coordinate{Lat: 30.2, Lng: -97.7}, Timestamp: time.Unix(100, 0).UTC()}
	env, err := events.Wrap(events.LocationUpdated{Sample: sample, InServiceArea: true}, time.Now())
	require.NoError(t, err)
	require.NoError(t, p.Send(context.Background(), env))

	raw, ok := fr.keys["loc:drv7"]
	require.True(t, ok)
	var back model.LocationSample
	require.NoError(t, json.Unmarshal([]byte(raw), &back))
	assert.Equal(t, sample.Position, back.Position)
	assert.Equal(t, 30*time.Second, fr.ttl)
}

func TestSendReportsPublishError(t *testing.T) {
	fr := &fakeRedis{err: errors.New("conn refused")}
	cfg := Config{}
	cfg.SetDefaults()
	p := newPublisher(fr, cfg)
	err := p.Send(context.Background(), events.Envelope{Topic: events.TopicGeofenceExited})
	assert.ErrorContains(t, err, "conn refused")
}

func TestNewPublisherRejectsBadURL(t *testing.T) {
	_, err := NewPublisher(Config{URL: "http://nope"})
	assert.Error(t, err)
}
