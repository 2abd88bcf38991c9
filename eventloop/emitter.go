package eventloop

import (
	"fmt"
	"sync"

	"github.com/joeycumines/go-faultcatalog/fault"
)

// EventError is the distinguished event carrying a fault.
const EventError = "error"

// Listener is a callback registered with [Emitter.On].
type Listener func(args ...any)

// ListenerID uniquely identifies a listener for removal purposes, since Go
// function values cannot be compared.
type ListenerID uint64

// listenerEntry pairs a listener with its unique ID for removal.
type listenerEntry struct { //nolint:govet // betteralign:ignore
	id       ListenerID
	listener Listener
	once     bool // if true, remove after first dispatch
}

// UnhandledErrorEvent is thrown by [Emitter.Emit] for an [EventError] with
// no listeners, when the first argument is not an error.
type UnhandledErrorEvent struct {
	Value any
}

func (e *UnhandledErrorEvent) Error() string {
	return fmt.Sprintf("eventloop: unhandled error event (%v)", e.Value)
}

// Emitter is a named-event source with fan-out to listeners.
//
// Listeners for an event are invoked synchronously, in registration order,
// and all of them are invoked. The [EventError] event is special: emitting it
// with no listeners registered throws the fault (see [fault.Throw]) from the
// emitting call, which escaping a loop task terminates the loop as an
// uncaught fault. It is never silently dropped.
//
// Thread Safety:
// Emitter is safe for concurrent use, but events are intended to be emitted
// from the loop goroutine (via Submit/callbacks).
//
// Usage:
//
//	em := eventloop.NewEmitter()
//	em.On(eventloop.EventError, func(args ...any) {
//	    fmt.Println("Caught emitter error:", args[0])
//	})
//	em.EmitError(fault.Simulated("Simulated emitter error"))
type Emitter struct {
	listeners      map[string][]listenerEntry
	nextListenerID ListenerID
	mu             sync.RWMutex
}

// NewEmitter creates an emitter with no listeners.
func NewEmitter() *Emitter {
	return &Emitter{
		listeners:      make(map[string][]listenerEntry),
		nextListenerID: 1,
	}
}

// On registers listener for event, returning its ID. A nil listener is
// ignored and returns 0.
func (em *Emitter) On(event string, listener Listener) ListenerID {
	return em.addListener(event, listener, false)
}

// Once registers a listener that is removed before its first invocation.
func (em *Emitter) Once(event string, listener Listener) ListenerID {
	return em.addListener(event, listener, true)
}

func (em *Emitter) addListener(event string, listener Listener, once bool) ListenerID {
	if listener == nil {
		return 0
	}

	em.mu.Lock()
	defer em.mu.Unlock()

	id := em.nextListenerID
	em.nextListenerID++

	em.listeners[event] = append(em.listeners[event], listenerEntry{
		id:       id,
		listener: listener,
		once:     once,
	})
	return id
}

// Off removes the listener with the given ID, reporting whether it existed.
func (em *Emitter) Off(event string, id ListenerID) bool {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.removeLocked(event, id)
}

func (em *Emitter) removeLocked(event string, id ListenerID) bool {
	entries := em.listeners[event]
	for i, entry := range entries {
		if entry.id == id {
			em.listeners[event] = append(entries[:i:i], entries[i+1:]...)
			if len(em.listeners[event]) == 0 {
				delete(em.listeners, event)
			}
			return true
		}
	}
	return false
}

// Emit invokes every listener for event with args, returning whether any
// listener was registered. Listener panics propagate to the caller, and
// stop the remaining listeners.
//
// For [EventError] with no listeners, Emit throws: the first argument if it
// is an error, else an [*UnhandledErrorEvent].
func (em *Emitter) Emit(event string, args ...any) bool {
	em.mu.Lock()
	entries := em.listeners[event]
	snapshot := make([]listenerEntry, len(entries))
	copy(snapshot, entries)
	// once listeners are removed before dispatch, so re-entrant emits skip them
	for _, entry := range snapshot {
		if entry.once {
			em.removeLocked(event, entry.id)
		}
	}
	em.mu.Unlock()

	if len(snapshot) == 0 {
		if event == EventError {
			var err error = &UnhandledErrorEvent{}
			if len(args) > 0 {
				if e, ok := args[0].(error); ok && e != nil {
					err = e
				} else {
					err = &UnhandledErrorEvent{Value: args[0]}
				}
			}
			fault.Throw(err)
		}
		return false
	}

	for _, entry := range snapshot {
		entry.listener(args...)
	}
	return true
}

// EmitError emits err, as a fault, on [EventError].
func (em *Emitter) EmitError(err error) bool {
	f := fault.Wrap(err)
	if f == nil {
		return false
	}
	return em.Emit(EventError, f)
}

// ListenerCount returns the number of listeners for event.
func (em *Emitter) ListenerCount(event string) int {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return len(em.listeners[event])
}

// RemoveAllListeners removes all listeners for event, or for every event if
// event is empty.
func (em *Emitter) RemoveAllListeners(event string) {
	em.mu.Lock()
	defer em.mu.Unlock()

	if event == "" {
		em.listeners = make(map[string][]listenerEntry)
	} else {
		delete(em.listeners, event)
	}
}
