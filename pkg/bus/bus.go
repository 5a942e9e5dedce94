// Package bus provides the in-process trigger event bus. The bus is built by
// the composition root and passed by reference to emitters and the dispatcher;
// there is no package-level instance, so tests run isolated buses freely.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/storeflow/storeflow/pkg/log"
	"github.com/storeflow/storeflow/pkg/triggers"
)

// Handler consumes one trigger event. A returned error is logged by the bus
// and never reaches the emitter or sibling handlers.
type Handler func(ctx context.Context, event triggers.Event) error

type subscription struct {
	id      uint64
	handler Handler
}

// Bus fans trigger events out to subscribed handlers. Fan-out is synchronous
// and runs handlers in registration order; each invocation is isolated so a
// panic or error in one handler cannot affect the others or the caller of
// Emit.
type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[triggers.Kind][]subscription
}

func New(logger *slog.Logger) *Bus {
	return &Bus{
		logger: logger.With("module", "bus"),
		subs:   make(map[triggers.Kind][]subscription),
	}
}

// Subscribe registers a handler for a trigger kind and returns its
// unsubscribe function. Multiple handlers per kind are invoked in registration
// order.
func (b *Bus) Subscribe(kind triggers.Kind, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[kind] = append(b.subs[kind], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subs[kind]
		for i, sub := range subs {
			if sub.id == id {
				b.subs[kind] = append(subs[:i:i], subs[i+1:]...)

				break
			}
		}
	}
}

// Emit constructs an event from the payload and fans it out. Fire-and-forget
// for the caller: handler failures are absorbed and logged, never returned.
// The built envelope is returned so emitters can log its correlation id.
func (b *Bus) Emit(ctx context.Context, payload triggers.Payload) triggers.Event {
	event := triggers.NewEvent(payload)
	b.EmitEvent(ctx, event)

	return event
}

// EmitEvent fans out an already built envelope.
func (b *Bus) EmitEvent(ctx context.Context, event triggers.Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs[event.Kind]))
	copy(subs, b.subs[event.Kind])
	b.mu.RUnlock()

	logger := log.WithEvent(b.logger, event)

	if len(subs) == 0 {
		logger.DebugContext(ctx, "No handlers subscribed for trigger kind")

		return
	}

	for _, sub := range subs {
		err := b.invoke(ctx, sub.handler, event)
		if err != nil {
			logger.ErrorContext(ctx, "Trigger handler failed", "error", err)
		}
	}
}

// invoke runs one handler behind an error boundary. A panic becomes an error
// result so isolation holds even for misbehaving handlers.
func (b *Bus) invoke(ctx context.Context, handler Handler, event triggers.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("trigger handler panicked: %v", r)
		}
	}()

	return handler(ctx, event)
}
