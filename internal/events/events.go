package events

import (
	"sync"
	"time"
)

// Calendar change event types.
const (
	BlockCreated          = "block.created"
	BlockUpdated          = "block.updated"
	BlockDeleted          = "block.deleted"
	HappyHoursReplaced    = "happy_hours.replaced"
	CalendarSettingsSaved = "calendar_settings.saved"
	StudioSynced          = "studio.synced"
)

// Event describes a change to one studio's calendar.
type Event struct {
	Type      string
	StudioID  string
	RoomID    string
	BlockID   string
	CreatedAt time.Time
}

// Handler reacts to an event.
type Handler func(event Event) error

// Bus provides in-process pub/sub for calendar changes.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for the given event types.
func (b *Bus) Subscribe(handler Handler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range eventTypes {
		b.subscribers[t] = append(b.subscribers[t], handler)
	}
}

// Publish notifies subscribers synchronously and returns the first handler
// error. Every handler runs even when an earlier one fails. A nil bus is a no-op.
func (b *Bus) Publish(event Event) error {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	var first error
	for _, handler := range handlers {
		if err := handler(event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
