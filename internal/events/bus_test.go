package events_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micro-nova/ibeacon-go/internal/events"
	"github.com/micro-nova/ibeacon-go/internal/models"
)

func TestBusSubscribePublish(t *testing.T) {
	bus := events.NewBus()

	ch := bus.Subscribe("test1")

	cfg := models.DefaultConfiguration()
	cfg.Major = 5
	bus.Publish(events.Event{Kind: events.KindConfigured, Config: cfg})

	select {
	case got := <-ch:
		assert.Equal(t, uint16(5), got.Config.Major)
		assert.False(t, got.Time.IsZero(), "expected Publish to stamp the event time")
	case <-time.After(100 * time.Millisecond):
		require.FailNow(t, "timed out waiting for event")
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := events.NewBus()
	ch := bus.Subscribe("test-unsub")

	bus.Unsubscribe("test-unsub")

	// Channel should be closed
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "expected channel to be closed after unsubscribe")
	case <-time.After(100 * time.Millisecond):
		require.FailNow(t, "timed out waiting for channel close")
	}
}

func TestBusDropsEventsWhenFull(t *testing.T) {
	bus := events.NewBus()
	bus.Subscribe("slow-reader")
	defer bus.Unsubscribe("slow-reader")

	// Publish many events without reading; should not block
	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			bus.Publish(events.Event{Kind: events.KindRejected})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		require.FailNow(t, "Publish blocked for too long (should drop events)")
	}
}

func TestBusSubscriberCount(t *testing.T) {
	bus := events.NewBus()
	assert.Equal(t, 0, bus.SubscriberCount())
	bus.Subscribe("s1")
	bus.Subscribe("s2")
	assert.Equal(t, 2, bus.SubscriberCount())
	bus.Unsubscribe("s1")
	assert.Equal(t, 1, bus.SubscriberCount())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "configured", events.KindConfigured.String())
	assert.Equal(t, "rejected", events.KindRejected.String())
}
