package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventRecordCreated EventType = "RECORD_CREATED"
	EventRecordUpdated EventType = "RECORD_UPDATED"
	EventRecordDeleted EventType = "RECORD_DELETED"

	// Presence channel
	EventConnected            EventType = "CONNECTED"
	EventPresenceUpdate       EventType = "PRESENCE_UPDATE"
	EventChatMessage          EventType = "CHAT_MESSAGE"
	EventDashboardInvalidated EventType = "DASHBOARD_INVALIDATED"
	EventError                EventType = "ERROR"
)

// RecordEventTypes are the types published on every record write.
var RecordEventTypes = []EventType{EventRecordCreated, EventRecordUpdated, EventRecordDeleted}

// Event represents a system event. UserID is set for events that concern a
// single user and is empty for broadcasts.
type Event struct {
	Type      EventType              `json:"type"`
	UserID    string                 `json:"userId,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for the given event types
func (eb *EventBus) Subscribe(subscriber Subscriber, eventTypes ...EventType) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, t := range eventTypes {
		eb.subscribers[t] = append(eb.subscribers[t], subscriber)
	}
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Each subscriber runs in its
// own goroutine, so delivery order between events is not guaranteed.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, sub := range eb.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishRecordChange announces a write to one of userID's records.
func (eb *EventBus) PublishRecordChange(eventType EventType, userID, kind, recordID string) {
	eb.Publish(Event{
		Type:   eventType,
		UserID: userID,
		Data: map[string]interface{}{
			"kind":      kind,
			"record_id": recordID,
		},
	})
}

// PublishPresence announces the current set of online users.
func (eb *EventBus) PublishPresence(online []string) {
	eb.Publish(Event{
		Type: EventPresenceUpdate,
		Data: map[string]interface{}{
			"online": online,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
