package engine

import "sync"

// Renderer events emitted once per frame.
const (
	EventFrameTick = "frameTick"
	EventIdle      = "idle"
)

// Emitter is a minimal named-event emitter. Handlers run synchronously in
// registration order; a handler added during Emit is not called for that
// emission.
type Emitter struct {
	mu       sync.Mutex
	nextID   int
	handlers map[string][]handler
}

type handler struct {
	id int
	fn func(data any)
}

// On subscribes fn to event and returns a function removing it.
func (e *Emitter) On(event string, fn func(data any)) (off func()) {
	if fn == nil {
		return func() {}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[string][]handler)
	}
	e.nextID++
	id := e.nextID
	e.handlers[event] = append(e.handlers[event], handler{id: id, fn: fn})
	return func() { e.off(event, id) }
}

func (e *Emitter) off(event string, id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	hs := e.handlers[event]
	for i, h := range hs {
		if h.id == id {
			e.handlers[event] = append(hs[:i:i], hs[i+1:]...)
			return
		}
	}
}

// Emit calls every handler of event with data.
func (e *Emitter) Emit(event string, data any) {
	e.mu.Lock()
	hs := append([]handler(nil), e.handlers[event]...)
	e.mu.Unlock()
	for _, h := range hs {
		h.fn(data)
	}
}

// Len returns the number of handlers subscribed to event.
func (e *Emitter) Len(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers[event])
}
