// Package events provides a simple publish-subscribe bus that carries
// configuration changes from the dispatcher to the radio, indicator,
// telemetry and SSE subscribers.
package events

import (
	"sync"
	"time"

	"github.com/micro-nova/ibeacon-go/internal/models"
)

const subBufferSize = 8

// Kind tells subscribers what happened to a configure request.
type Kind int

const (
	// KindConfigured means a new configuration was saved and is live.
	KindConfigured Kind = iota
	// KindRejected means the backend refused the configuration.
	KindRejected
)

func (k Kind) String() string {
	if k == KindRejected {
		return "rejected"
	}
	return "configured"
}

// Event is one configure outcome.
type Event struct {
	Kind   Kind
	Config models.Configuration
	Err    error
	Time   time.Time
}

// Bus is a non-blocking publish-subscribe event bus.
// Subscribers that are slow to consume events will have events dropped rather
// than blocking publishers.
type Bus struct {
	mu   sync.Mutex
	subs map[string]chan Event
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]chan Event),
	}
}

// Subscribe creates a new subscription with the given ID.
// Call Unsubscribe when done to clean up.
func (b *Bus) Subscribe(id string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, subBufferSize)
	b.subs[id] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish sends an event to all subscribers.
// If a subscriber's channel is full, the event is dropped (non-blocking).
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Drop if subscriber is slow
		}
	}
}

// SubscriberCount returns the current number of subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
