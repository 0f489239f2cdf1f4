package events

import (
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/conductorsdk/worker-go/internal/logger"
)

// Listener receives events published on the bus. Implementations must be
// safe for concurrent calls; publish happens from runner and transport
// goroutines.
type Listener interface {
	OnEvent(e Event)
}

// ListenerFunc adapts a plain function to the Listener interface.
type ListenerFunc func(e Event)

func (f ListenerFunc) OnEvent(e Event) { f(e) }

// Bus is a synchronous in-process event publisher. Listener panics are
// recovered, logged, and counted; they never propagate into the runtime.
type Bus struct {
	mu        sync.RWMutex
	listeners []Listener
	errors    atomic.Int64
}

// NewBus creates an empty bus.
func NewBus(listeners ...Listener) *Bus {
	return &Bus{listeners: listeners}
}

// Register adds a listener. Listeners are registered at handler
// construction, before any runner starts.
func (b *Bus) Register(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Publish delivers e to every listener in registration order.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	listeners := b.listeners
	b.mu.RUnlock()

	for _, l := range listeners {
		b.dispatch(l, e)
	}
}

func (b *Bus) dispatch(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.errors.Add(1)
			logger.Error().
				Str("event_type", string(e.EventType())).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("event listener panicked")
		}
	}()
	l.OnEvent(e)
}

// ListenerErrors returns how many listener panics have been swallowed.
func (b *Bus) ListenerErrors() int64 {
	return b.errors.Load()
}
