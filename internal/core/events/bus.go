// Package events implements the harness's fire-and-forget event bus:
// subscribers register by EventType or wildcard, emit fans out
// concurrently, and a capped ring buffer retains recent history for
// late subscribers.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/pkg/harnesstypes"
)

const defaultHistoryCap = 200

// Handler receives one event. Panics inside a Handler are recovered by
// the bus and passed to the panic handler set with WithPanicHandler (a
// no-op unless one is set), never propagated to Emit's caller.
type Handler func(harnesstypes.AgentEvent)

// Bus is the harness's event bus. Zero value is not usable; use New.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[harnesstypes.EventType][]Handler
	wildcard    []Handler
	history     []harnesstypes.AgentEvent
	historyCap  int
	onPanic     func(recovered any)
}

// Option configures a Bus at construction.
type Option func(*Bus)

// WithHistoryCap overrides the default capped history buffer size.
func WithHistoryCap(n int) Option {
	return func(b *Bus) { b.historyCap = n }
}

// WithPanicHandler overrides how a recovered handler panic is reported.
// Defaults to a no-op; the harness's observability logger should be
// wired in here by the caller that constructs the Bus.
func WithPanicHandler(fn func(recovered any)) Option {
	return func(b *Bus) { b.onPanic = fn }
}

// New constructs an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subscribers: make(map[harnesstypes.EventType][]Handler),
		historyCap:  defaultHistoryCap,
		onPanic:     func(any) {},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for a specific EventType. Use "*" via
// SubscribeAll to receive every event.
func (b *Bus) Subscribe(t harnesstypes.EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[t] = append(b.subscribers[t], h)
}

// SubscribeAll registers a handler that receives every event regardless
// of type.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wildcard = append(b.wildcard, h)
}

// Emit publishes an event: data gains a generated ID if it has no
// "event_id", the event is stamped with the current time, the event is
// appended to the capped history, and
// every matching subscriber runs in its own goroutine. Emit never
// blocks on handler execution and never returns an error — handler
// panics are recovered and reported via the configured panic handler.
func (b *Bus) Emit(t harnesstypes.EventType, data map[string]any) {
	if data == nil {
		data = make(map[string]any)
	}
	if _, ok := data["event_id"]; !ok {
		data["event_id"] = uuid.NewString()
	}
	ev := harnesstypes.AgentEvent{Type: t, Data: data, Timestamp: time.Now()}

	b.mu.Lock()
	b.history = append(b.history, ev)
	if len(b.history) > b.historyCap {
		b.history = b.history[len(b.history)-b.historyCap:]
	}
	handlers := append([]Handler(nil), b.subscribers[t]...)
	handlers = append(handlers, b.wildcard...)
	b.mu.Unlock()

	for _, h := range handlers {
		go b.dispatch(h, ev)
	}
}

func (b *Bus) dispatch(h Handler, ev harnesstypes.AgentEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.onPanic(r)
		}
	}()
	h(ev)
}

// History returns a snapshot of the capped event history, oldest first.
func (b *Bus) History() []harnesstypes.AgentEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]harnesstypes.AgentEvent, len(b.history))
	copy(out, b.history)
	return out
}
