// Package bus is a synchronous publish/subscribe channel keyed by event tag.
//
// It decouples the call sites that want to influence playback (track rows,
// list pages, context menus, HTTP handlers) from the component that owns the
// player state. Emit is fire-and-forget: events with no subscriber are dropped.
package bus

import "sync"

// Tag identifies an event kind.
type Tag string

// Event is anything that can travel on the bus.
type Event interface {
	Tag() Tag
}

// Handler receives events for the tag it subscribed to.
type Handler func(Event)

type registration struct {
	id      uint64
	handler Handler
}

// Bus dispatches events to handlers synchronously, in subscription order.
type Bus struct {
	mutex    sync.RWMutex
	handlers map[Tag][]registration
	nextID   uint64
}

// New creates an empty bus
func New() *Bus {
	return &Bus{
		handlers: make(map[Tag][]registration),
	}
}

// Subscribe registers handler for tag and returns a func that removes it.
// The returned func is safe to call more than once.
func (b *Bus) Subscribe(tag Tag, handler Handler) func() {
	b.mutex.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[tag] = append(b.handlers[tag], registration{id: id, handler: handler})
	b.mutex.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(tag, id) })
	}
}

func (b *Bus) remove(tag Tag, id uint64) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	regs := b.handlers[tag]
	for i, r := range regs {
		if r.id == id {
			// Copy so that an Emit iterating the old slice is unaffected
			next := make([]registration, 0, len(regs)-1)
			next = append(next, regs[:i]...)
			next = append(next, regs[i+1:]...)
			if len(next) == 0 {
				delete(b.handlers, tag)
			} else {
				b.handlers[tag] = next
			}
			return
		}
	}
}

// Emit invokes every handler subscribed to the event's tag when Emit is called.
// Handlers run on the caller's goroutine; the lock is not held while they run,
// so a handler may itself Emit or Subscribe.
func (b *Bus) Emit(event Event) {
	if event == nil {
		return
	}

	b.mutex.RLock()
	regs := b.handlers[event.Tag()]
	b.mutex.RUnlock()

	for _, r := range regs {
		r.handler(event)
	}
}

// Subscribers returns the number of handlers registered for tag.
func (b *Bus) Subscribers(tag Tag) int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.handlers[tag])
}
