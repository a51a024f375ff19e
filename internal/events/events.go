package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventSeriesCreated       = "series_created"
	EventSeriesPaused        = "series_paused"
	EventSeriesResumed       = "series_resumed"
	EventOccurrenceCompleted = "occurrence_completed"
	EventOccurrenceCanceled  = "occurrence_canceled"
	EventOccurrencePaid      = "occurrence_paid"
	EventOccurrenceMoved     = "occurrence_moved"
	EventTimeOffRequested    = "timeoff_requested"
)

// SeriesEventPayload describes the minimal series snapshot for event consumers.
type SeriesEventPayload struct {
	OccurrenceID int64     `json:"occurrence_id"`
	SeriesID     int64     `json:"series_id,omitempty"`
	ClientID     int64     `json:"client_id"`
	CleanerID    int64     `json:"cleaner_id"`
	Frequency    string    `json:"frequency,omitempty"`
	Status       string    `json:"status"`
	ScheduledAt  time.Time `json:"scheduled_at"`
	Generated    int       `json:"generated,omitempty"`
	Removed      int       `json:"removed,omitempty"`
}

// TimeOffEventPayload accompanies timeoff_requested events.
type TimeOffEventPayload struct {
	TimeOffID int64     `json:"timeoff_id"`
	CleanerID int64     `json:"cleaner_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Conflicts int       `json:"conflicts"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
	Processed bool
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
