package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionForwardOnly(t *testing.T) {
	chain := []Status{StatusPending, StatusAssigned, StatusAccepted, StatusPickedUp, StatusInTransit, StatusDelivered}
	for i := 0; i < len(chain)-1; i++ {
		if !CanTransition(chain[i], chain[i+1]) {
			t.Fatalf("%s -> %s should be allowed", chain[i], chain[i+1])
		}
		if CanTransition(chain[i+1], chain[i]) {
			t.Fatalf("%s -> %s should be refused", chain[i+1], chain[i])
		}
	}
	if CanTransition(StatusAccepted, StatusInTransit) {
		t.Fatalf("skipping picked_up must be refused")
	}
}

func TestCancelFromNonTerminal(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusAssigned, StatusAccepted, StatusPickedUp, StatusInTransit} {
		assert.True(t, CanTransition(s, StatusCancelled), s)
	}
	assert.False(t, CanTransition(StatusDelivered, StatusCancelled))
	assert.False(t, CanTransition(StatusCancelled, StatusCancelled))
}

func TestCheckTransitionWrapsSentinel(t *testing.T) {
	err := CheckTransition(StatusDelivered, StatusPending)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition got %v", err)
	}
}

func TestPriorityText(t *testing.T) {
	var p Priority
	assert.NoError(t, p.UnmarshalText([]byte("URGENT")))
	assert.Equal(t, PriorityUrgent, p)
	b, err := PriorityHigh.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "high", string(b))
	assert.Error(t, p.UnmarshalText([]byte("asap")))
}

func TestDeliveryValidate(t *testing.T) {
	d := Delivery{ID: "d1", Status: StatusAccepted, Destination: Coordinate{Lat: 30.2, Lng: -97.7}, CreatedAt: time.Now()}
	if err := d.Validate(); err == nil {
		t.Fatalf("accepted delivery without driver must be invalid")
	}
	d.AssignedDriver = "drv"
	assert.NoError(t, d.Validate())
	d.Priority = PriorityUrgent + 1
	assert.Error(t, d.Validate())
	d.Priority = -1
	assert.Error(t, d.Validate())
	d.Priority = PriorityHigh
	d.Status = "lost"
	assert.Error(t, d.Validate())
}

func TestTimeWindowContains(t *testing.T) {
	start := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	w := TimeWindow{Start: start, End: start.Add(time.Hour)}
	assert.False(t, w.Contains(start.Add(-time.Second)))
	assert.True(t, w.Contains(start))
	assert.False(t, w.Contains(start.Add(time.Hour)))
	open := TimeWindow{Start: start}
	assert.True(t, open.Contains(start.Add(1000*time.Hour)))
}

func TestDriverValidate(t *testing.T) {
	d := Driver{ID: "a", MaxLoad: 2, CurrentLoad: 3}
	assert.Error(t, d.Validate())
	d.CurrentLoad = 1
	d.Rating = 4.5
	d.Efficiency = 0.9
	d.BatteryLevel = 80
	assert.NoError(t, d.Validate())
	assert.Equal(t, 1, d.SpareCapacity())
}
