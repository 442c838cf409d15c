package nfcservice

import (
	"sync"
)

// Handler receives the arguments of a triggered event.
type Handler func(args ...any)

// Subscription identifies a handler registered with On or One.
type Subscription struct {
	Event string
	id    uint64
}

// Emission is one event delivered through Stream.
type Emission struct {
	Event string
	Args  []any
}

type subscriber struct {
	id      uint64
	handler Handler
	once    bool
}

// Emitter is a synchronous publish/subscribe registry keyed by event name.
// Handlers run on the goroutine that calls Trigger, outside the emitter's
// lock, so they may subscribe or unsubscribe.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[string][]subscriber
	nextID   uint64
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[string][]subscriber)}
}

func (e *Emitter) subscribe(event string, h Handler, once bool) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[string][]subscriber)
	}
	e.nextID++
	e.handlers[event] = append(e.handlers[event], subscriber{id: e.nextID, handler: h, once: once})
	return Subscription{Event: event, id: e.nextID}
}

// On registers h for event.
func (e *Emitter) On(event string, h Handler) Subscription {
	return e.subscribe(event, h, false)
}

// One registers h for the next trigger of event only.
func (e *Emitter) One(event string, h Handler) Subscription {
	return e.subscribe(event, h, true)
}

// Off removes a subscription. It reports whether it was still registered.
func (e *Emitter) Off(sub Subscription) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	subs := e.handlers[sub.Event]
	for i, s := range subs {
		if s.id == sub.id {
			e.handlers[sub.Event] = append(subs[:i:i], subs[i+1:]...)
			if len(e.handlers[sub.Event]) == 0 {
				delete(e.handlers, sub.Event)
			}
			return true
		}
	}
	return false
}

// Has reports whether event has at least one handler.
func (e *Emitter) Has(event string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers[event]) > 0
}

// Trigger calls every handler of event with args and returns how many were
// called.
func (e *Emitter) Trigger(event string, args ...any) int {
	e.mu.Lock()
	subs := e.handlers[event]
	if len(subs) == 0 {
		e.mu.Unlock()
		return 0
	}
	snapshot := append([]subscriber(nil), subs...)
	kept := subs[:0:0]
	for _, s := range subs {
		if !s.once {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(e.handlers, event)
	} else {
		e.handlers[event] = kept
	}
	e.mu.Unlock()

	for _, s := range snapshot {
		s.handler(args...)
	}
	return len(snapshot)
}

type stream struct {
	mu     sync.Mutex
	ch     chan Emission
	closed bool
}

func (s *stream) send(em Emission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- em:
	default:
		// Slow consumer, drop.
	}
}

// Stream delivers the named events on a buffered channel. Events are
// dropped while the buffer is full. The returned function unsubscribes and
// closes the channel.
func (e *Emitter) Stream(buffer int, events ...string) (<-chan Emission, func()) {
	if buffer < 1 {
		buffer = 1
	}
	s := &stream{ch: make(chan Emission, buffer)}
	subs := make([]Subscription, 0, len(events))
	for _, name := range events {
		name := name
		subs = append(subs, e.On(name, func(args ...any) {
			s.send(Emission{Event: name, Args: args})
		}))
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			for _, sub := range subs {
				e.Off(sub)
			}
			s.mu.Lock()
			s.closed = true
			close(s.ch)
			s.mu.Unlock()
		})
	}
	return s.ch, cancel
}
