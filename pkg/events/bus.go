package events

import (
	"sync"

	"github.com/jscyril/supersonic/api"
)

// EventBus handles event distribution using channels
type EventBus struct {
	subscribers map[api.EventType][]chan api.Event
	mu          sync.RWMutex
	closed      bool
}

// Subscription is a live registration on the bus. Call Unsubscribe to
// stop delivery and release the channel.
type Subscription struct {
	C    <-chan api.Event
	bus  *EventBus
	ch   chan api.Event
	once sync.Once
}

// Unsubscribe removes the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s.ch)
	})
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[api.EventType][]chan api.Event),
	}
}

// Subscribe returns a subscription receiving events of the given types.
// With no types it receives every event the engine publishes.
func (b *EventBus) Subscribe(types ...api.EventType) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := 10
	if len(types) == 0 {
		types = api.AllEventTypes
		size = 32
	}

	ch := make(chan api.Event, size)
	sub := &Subscription{C: ch, bus: b, ch: ch}
	if b.closed {
		close(ch)
		return sub
	}
	for _, eventType := range types {
		b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	}
	return sub
}

// Publish broadcasts an event to all subscribers of that event type
func (b *EventBus) Publish(event api.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
			// Channel full, skip to prevent blocking
		}
	}
}

func (b *EventBus) remove(ch chan api.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	found := false
	for eventType, subs := range b.subscribers {
		for i, sub := range subs {
			if sub == ch {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				found = true
				break
			}
		}
	}
	if found {
		close(ch)
	}
}

// Close closes all subscriber channels
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Track closed channels to avoid closing the same channel twice
	closed := make(map[chan api.Event]bool)

	for _, subs := range b.subscribers {
		for _, ch := range subs {
			if !closed[ch] {
				close(ch)
				closed[ch] = true
			}
		}
	}
	b.subscribers = make(map[api.EventType][]chan api.Event)
	b.closed = true
}
