// Package events provides the in-process event bus. Modules publish typed
// events; subscribers (the websocket stream, tests) receive them on buffered
// channels. Delivery is best-effort: a slow subscriber drops events rather
// than blocking publishers.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies a category of event
type EventType string

const (
	// Graph lifecycle
	GraphBuildStarted   EventType = "graph_build_started"
	GraphBuildCompleted EventType = "graph_build_completed"
	GraphBuildFailed    EventType = "graph_build_failed"
	GraphRefreshed      EventType = "graph_refreshed"

	// Registry changes
	AssetAdded          EventType = "asset_added"
	AnchorAdded         EventType = "anchor_added"
	AnchorHealthChanged EventType = "anchor_health_changed"

	// Quote lifecycle
	QuoteCreated  EventType = "quote_created"
	QuoteConsumed EventType = "quote_consumed"
	QuoteExpired  EventType = "quote_expired"

	// Cache
	RouteCacheCleared EventType = "route_cache_cleared"

	// Scheduled job lifecycle
	JobStarted   EventType = "job_started"
	JobCompleted EventType = "job_completed"
	JobFailed    EventType = "job_failed"

	// Errors surfaced to operators
	ErrorOccurred EventType = "error_occurred"
)

// Event is a published event with its typed payload
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// Bus is the in-process publish/subscribe hub
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
	closed      bool
	log         zerolog.Logger
}

// NewBus creates an event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[int]chan Event),
		log:         log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a new subscriber and returns its id and receive
// channel. The channel is closed on Unsubscribe or bus Close.
func (b *Bus) Subscribe(buffer int) (int, <-chan Event) {
	if buffer <= 0 {
		buffer = 64
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan Event, buffer)
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Publish delivers an event built from the payload to all subscribers.
// The event type is taken from the payload; timestamp is stamped here.
func (b *Bus) Publish(module string, data EventData) {
	if data == nil {
		return
	}

	evt := Event{
		Type:      data.EventType(),
		Timestamp: time.Now().UTC(),
		Module:    module,
		Data:      data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for id, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			// Subscriber buffer full, drop rather than stall the publisher
			b.log.Debug().
				Int("subscriber", id).
				Str("event", string(evt.Type)).
				Msg("dropping event for slow subscriber")
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close shuts down the bus and closes all subscriber channels
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
