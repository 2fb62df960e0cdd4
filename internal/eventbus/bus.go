package eventbus

import (
	"sync"
	"time"

	"github.com/chris17453/echomatrix/internal/commons"
)

// Listener receives events. It must not block for long — it runs
// synchronously on the emitting goroutine.
type Listener func(Event)

// Bus is a synchronous, in-process publish/subscribe registry. Emit walks a
// snapshot of subscribers taken under lock, then invokes them outside the
// lock so a listener calling back into Subscribe/Unsubscribe cannot
// deadlock. A listener that panics is isolated and logged, never
// propagated to the emitter or to other listeners.
type Bus struct {
	mu        sync.Mutex
	listeners map[Tag][]Listener
	logger    commons.Logger
}

// New creates an empty Bus.
func New(logger commons.Logger) *Bus {
	return &Bus{listeners: make(map[Tag][]Listener), logger: logger}
}

// Subscribe registers a listener for a tag and returns an unsubscribe
// function.
func (b *Bus) Subscribe(tag Tag, l Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := len(b.listeners[tag])
	b.listeners[tag] = append(b.listeners[tag], l)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		ls := b.listeners[tag]
		if id < len(ls) {
			ls[id] = nil
		}
	}
}

// Emit synchronously delivers ev to every listener subscribed to ev.Tag. If
// ev.Timestamp is unset, it is filled in before delivery; ev.AgentID is
// passed through as given (Scoped.Emit is what stamps it).
func (b *Bus) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	snapshot := make([]Listener, len(b.listeners[ev.Tag]))
	copy(snapshot, b.listeners[ev.Tag])
	b.mu.Unlock()

	for _, l := range snapshot {
		if l == nil {
			continue
		}
		b.dispatch(l, ev)
	}
}

func (b *Bus) dispatch(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Errorw("eventbus: listener panicked", "tag", ev.Tag, "recover", r)
		}
	}()
	l(ev)
}
