package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	TypeDownloadAdd   = "download.add"
	TypeSearchDone    = "search.done"
	TypeCommandDenied = "command.denied"
)

// Event is a single notification published on the bus
type Event struct {
	ID      string
	Type    string
	Payload map[string]any
	At      time.Time
}

// Handler consumes events of one type
type Handler func(ctx context.Context, ev Event) error

// Bus is a synchronous in-process event bus
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *slog.Logger
}

// NewBus creates a new event bus
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger.With("component", "event_bus"),
	}
}

// Subscribe registers a handler for an event type
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// Emit delivers an event to every subscriber of its type.
// All handlers run; their errors are joined.
func (b *Bus) Emit(ctx context.Context, eventType string, payload map[string]any) error {
	ev := Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		Payload: payload,
		At:      time.Now(),
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[eventType]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.logger.Debug("event has no subscribers", "type", eventType, "event_id", ev.ID)
		return nil
	}

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to deliver %s event %s: %w", eventType, ev.ID, errors.Join(errs...))
	}

	b.logger.Debug("event delivered", "type", eventType, "event_id", ev.ID, "handlers", len(handlers))
	return nil
}
