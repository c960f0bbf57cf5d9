package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Type identifies a control event
type Type string

const (
	ParameterChange Type = "parameter_change"
	SyncUpdate      Type = "sync_update"
	SourceSwitch    Type = "source_switch"
)

// Event is published by the controller and estimator to in-process listeners.
type Event struct {
	Type      Type        `json:"type"`
	Parameter string      `json:"parameter,omitempty"`
	Value     interface{} `json:"value,omitempty"`
	Source    string      `json:"source,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// SourceSwitchData is the Value of a SourceSwitch event.
type SourceSwitchData struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Handler receives published events. A returned error is logged and does not
// stop delivery to other handlers.
type Handler func(Event) error

// ListenerID identifies a registered handler
type ListenerID uint64

type listener struct {
	id      ListenerID
	handler Handler
}

// Bus is a synchronous fan-out of events to registered handlers in
// registration order.
type Bus struct {
	mu        sync.RWMutex
	nextID    ListenerID
	listeners []listener
	logger    zerolog.Logger
}

// NewBus creates an empty bus logging through logger as given; the owner
// tags it with its own component.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers handler and returns the id used to remove it.
func (b *Bus) Subscribe(handler Handler) ListenerID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.listeners = append(b.listeners, listener{id: b.nextID, handler: handler})
	b.logger.Debug().Uint64("listener_id", uint64(b.nextID)).Msg("event listener added")
	return b.nextID
}

// Unsubscribe removes the handler registered under id.
func (b *Bus) Unsubscribe(id ListenerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, l := range b.listeners {
		if l.id == id {
			b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
			b.logger.Debug().Uint64("listener_id", uint64(id)).Msg("event listener removed")
			return true
		}
	}
	return false
}

// Publish delivers e to every handler and returns how many handled it without
// error. Handlers run on the caller's goroutine; the bus lock is not held while
// they run.
func (b *Bus) Publish(e Event) int {
	b.mu.RLock()
	listeners := make([]listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.RUnlock()

	delivered := 0
	for _, l := range listeners {
		if err := b.deliver(l, e); err != nil {
			b.logger.Warn().
				Err(err).
				Uint64("listener_id", uint64(l.id)).
				Str("event_type", string(e.Type)).
				Msg("event listener failed")
			continue
		}
		delivered++
	}
	return delivered
}

func (b *Bus) deliver(l listener, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return l.handler(e)
}

// Len returns the number of registered handlers
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Clear removes every handler.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = nil
}
