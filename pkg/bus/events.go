package bus

import (
	"context"
	"sync"
	"time"
)

type EventType string

const (
	EventLifecycleTransition EventType = "lifecycle_transition"
	EventWebhookApplied      EventType = "webhook_applied"
	EventDispatched          EventType = "dispatched"
	EventHandlerFailed       EventType = "handler_failed"
	EventDrainTimeout        EventType = "drain_timeout"
)

type Event struct {
	Type     EventType         `json:"type"`
	At       time.Time         `json:"at"`
	Seq      int64             `json:"seq,omitempty"`
	Handler  string            `json:"handler,omitempty"`
	State    string            `json:"state,omitempty"`
	Payload  map[string]string `json:"payload,omitempty"`
	Error    string            `json:"error,omitempty"`
	Dispatch string            `json:"dispatch,omitempty"`
}

// Publish delivers event to every subscriber with room in its buffer. It
// reports false once the bus is closed. A nil bus drops events.
func (b *Bus) Publish(event Event) bool {
	if b == nil {
		return false
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed() {
		return false
	}

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Drop instead of blocking the publisher on slow subscribers.
		}
	}

	return true
}

// Subscribe registers a buffered subscription that ends when ctx is done,
// the bus closes, or the returned unsubscribe function is called.
func (b *Bus) Subscribe(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Event, buffer)

	b.mu.Lock()
	if b.closed() {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}

	id := b.nextSubscriberID
	b.nextSubscriberID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			if eventCh, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(eventCh)
			}
			b.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-b.done:
			unsubscribe()
		}
	}()

	return ch, unsubscribe
}
