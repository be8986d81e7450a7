package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeofenceEventTopic(t *testing.T) {
	assert.Equal(t, TopicGeofenceEntered, GeofenceEvent{Entered: true}.Topic())
	assert.Equal(t, TopicGeofenceExited, GeofenceEvent{}.Topic())
}

func TestWrapEnvelope(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("CST", -6*3600))
	env, err := Wrap(DeliveryAssigned{DeliveryID: "d1", DriverID: "drv1", Score: 72.5}, now)
	require.NoError(t, err)
	_, err = uuid.Parse(env.ID)
	assert.NoError(t, err)
	assert.Equal(t, TopicDeliveryAssigned, env.Topic)
	assert.Equal(t, time.UTC, env.Time.Location())

	var back DeliveryAssigned
	require.NoError(t, json.Unmarshal(env.Payload, &back))
	assert.Equal(t, "drv1", back.DriverID)
}
