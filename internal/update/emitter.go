package update

import (
	"sync"

	"ferry/internal/debug"
)

var logUpdates = debug.Scope("Updates")

// Handler receives events of the kind it subscribed to.
type Handler func(Event)

// Source is anything updater events can be subscribed on.
type Source interface {
	On(kind Kind, fn Handler) *Subscription
}

// Emitter dispatches events to subscribed handlers. The zero value is ready
// to use. Handlers run synchronously on the emitting goroutine, in
// subscription order.
type Emitter struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[Kind][]subscriber
}

type subscriber struct {
	id uint64
	fn Handler
}

// Subscription is the handle returned by On.
type Subscription struct {
	emitter *Emitter
	kind    Kind
	id      uint64
	once    sync.Once
}

// On subscribes fn to events of kind.
func (e *Emitter) On(kind Kind, fn Handler) *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[Kind][]subscriber)
	}
	e.nextID++
	e.handlers[kind] = append(e.handlers[kind], subscriber{id: e.nextID, fn: fn})
	return &Subscription{emitter: e, kind: kind, id: e.nextID}
}

// Unsubscribe removes the handler. Calling it more than once is harmless.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.emitter == nil {
		return
	}
	s.once.Do(func() {
		s.emitter.remove(s.kind, s.id)
	})
}

// Kind returns the event kind the subscription listens for.
func (s *Subscription) Kind() Kind {
	return s.kind
}

func (e *Emitter) remove(kind Kind, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	subs := e.handlers[kind]
	for i, sub := range subs {
		if sub.id == id {
			e.handlers[kind] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Listeners returns how many handlers are subscribed to kind.
func (e *Emitter) Listeners(kind Kind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers[kind])
}

// Emit delivers ev to every handler subscribed to its kind.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	subs := append([]subscriber(nil), e.handlers[ev.Kind]...)
	e.mu.Unlock()

	logUpdates.Logf("event %s (%d listeners)", ev, len(subs))
	for _, sub := range subs {
		sub.fn(ev)
	}
}
