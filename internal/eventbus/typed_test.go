package eventbus

import (
	"testing"

	"github.com/kilianp07/geodispatch/core/events"
)

func TestTypedBusPublishSubscribe(t *testing.T) {
	bus := NewTyped[string]()
	ch := bus.Subscribe()
	bus.Publish("hello")
	v := <-ch
	if v != "hello" {
		t.Fatalf("expected hello got %v", v)
	}
	bus.Unsubscribe(ch)
}

func TestTypedBusClose(t *testing.T) {
	bus := NewTyped[int]()
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	bus.Close()
	if _, ok := <-ch1; ok {
		t.Fatalf("expected ch1 closed")
	}
	if _, ok := <-ch2; ok {
		t.Fatalf("expected ch2 closed")
	}
	bus.Publish(1)
}

func TestTypedBusUnsubscribeAfterClose(t *testing.T) {
	bus := NewTyped[float64]()
	ch := bus.Subscribe()
	bus.Close()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic on Unsubscribe after Close: %v", r)
		}
	}()
	bus.Unsubscribe(ch)
}

func TestTypedBusDropsWhenFull(t *testing.T) {
	bus := NewTypedBuffered[int](2)
	ch := bus.Subscribe()
	for i := 0; i < 5; i++ {
		bus.Publish(i)
	}
	if bus.Dropped() != 3 {
		t.Fatalf("expected 3 drops got %d", bus.Dropped())
	}
	if first := <-ch; first != 0 {
		t.Fatalf("expected in-order delivery, got %d first", first)
	}
	if second := <-ch; second != 1 {
		t.Fatalf("expected 1 got %d", second)
	}
}

func TestEventBusCarriesCoreEvents(t *testing.T) {
	bus := New()
	var pub events.Publisher = bus
	ch := bus.Subscribe()
	pub.Publish(events.DeliveryAssigned{DeliveryID: "d1"})
	ev := <-ch
	if ev.Topic() != events.TopicDeliveryAssigned {
		t.Fatalf("unexpected topic %s", ev.Topic())
	}
}
