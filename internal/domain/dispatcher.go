package domain

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"pdsno.io/controller/internal/pkg/logger"
)

// EventHandler processes a domain event after it has been durably appended
// to the NIB. Handlers are notification fan-out only — they must not be the
// system of record for the event itself.
type EventHandler func(ctx context.Context, event *Event) error

// EventDispatcher routes appended domain events to in-process subscribers
// (e.g. the operator websocket feed, metrics counters).
type EventDispatcher struct {
	handlers map[EventType][]EventHandler
	mu       sync.RWMutex
}

// NewEventDispatcher creates a new EventDispatcher.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{handlers: make(map[EventType][]EventHandler)}
}

// Register registers a handler for a specific event type.
func (d *EventDispatcher) Register(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

// Dispatch notifies all registered handlers for event.EventType.
// Handlers run sequentially; a failing handler is logged and does not block
// the remaining handlers (best-effort fan-out, not part of the audit guarantee).
func (d *EventDispatcher) Dispatch(ctx context.Context, event *Event) {
	if event == nil {
		return
	}
	d.mu.RLock()
	handlers := append([]EventHandler(nil), d.handlers[event.EventType]...)
	d.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			logger.Warn("event handler failed",
				zap.String("event_type", string(event.EventType)),
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
		}
	}
}
