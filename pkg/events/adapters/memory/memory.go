// Package memory implements pkg/events.Bus as an in-process fan-out: each
// topic keeps its own slice of handlers, invoked synchronously on Publish.
package memory

import (
	"context"
	"sync"

	"github.com/chris-alexander-pop/agentfabric/pkg/events"
	"github.com/chris-alexander-pop/agentfabric/pkg/logger"
)

// Bus is a process-local events.Bus. It holds no persistent state: once
// Close is called, or the process exits, every subscription is gone.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]events.Handler
	closed   bool
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{handlers: make(map[string][]events.Handler)}
}

// Publish invokes every handler subscribed to topic, in subscription
// order, on the calling goroutine. A handler error is logged and does not
// stop delivery to the remaining handlers.
func (b *Bus) Publish(ctx context.Context, topic string, event events.Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return events.ErrClosed
	}
	handlers := make([]events.Handler, len(b.handlers[topic]))
	copy(handlers, b.handlers[topic])
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			logger.L().WarnContext(ctx, "events handler failed", "topic", topic, "event_type", event.Type, "error", err)
		}
	}
	return nil
}

// Subscribe registers handler against topic. It never returns an error
// except after Close.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler events.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return events.ErrClosed
	}
	b.handlers[topic] = append(b.handlers[topic], handler)
	return nil
}

// Close discards every subscription. Publish and Subscribe return
// events.ErrClosed afterward.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = nil
	return nil
}

var _ events.Bus = (*Bus)(nil)
