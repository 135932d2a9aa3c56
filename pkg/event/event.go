// Package event provides a lightweight notification system.
//
// Design principles:
// - Each event type is a separate Go type for type safety
// - Events carry small identifying payloads; clients fetch full data via HTTP
// - Listeners are isolated: a panicking listener never takes down the emitter
package event

import (
	"log/slog"
	"sync"

	"github.com/phoenixchat/phoenixchat/pkg/utils"
)

// Event is the interface all event types must implement.
type Event interface {
	// EventName returns the unique name for this event type (e.g., "user.changed")
	EventName() string
}

// Listener is a callback function for handling events.
type Listener func(Event)

type listenerEntry struct {
	id uint64
	fn Listener
}

// Emitter manages event subscriptions and dispatching.
type Emitter struct {
	mu           sync.RWMutex
	nextID       uint64
	listeners    map[string][]listenerEntry // eventName -> listeners
	allListeners []listenerEntry            // listeners for all events
	logger       *slog.Logger
}

// NewEmitter creates a new event emitter.
func NewEmitter() *Emitter {
	return &Emitter{
		listeners: make(map[string][]listenerEntry),
		logger:    utils.GetLogger(),
	}
}

// On subscribes to a specific event type.
// Returns an unsubscribe function.
func (e *Emitter) On(eventName string, fn Listener) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.listeners[eventName] = append(e.listeners[eventName], listenerEntry{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		entries := e.listeners[eventName]
		for i, l := range entries {
			if l.id == id {
				e.listeners[eventName] = append(entries[:i], entries[i+1:]...)
				break
			}
		}
	}
}

// OnAny subscribes to all events.
func (e *Emitter) OnAny(fn Listener) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.allListeners = append(e.allListeners, listenerEntry{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, l := range e.allListeners {
			if l.id == id {
				e.allListeners = append(e.allListeners[:i], e.allListeners[i+1:]...)
				break
			}
		}
	}
}

// Emit dispatches an event to all matching listeners, in subscription order.
// A panic in one listener is logged and does not prevent delivery to the rest.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	// Copy listeners to avoid holding lock during callbacks
	specific := make([]listenerEntry, len(e.listeners[ev.EventName()]))
	copy(specific, e.listeners[ev.EventName()])
	all := make([]listenerEntry, len(e.allListeners))
	copy(all, e.allListeners)
	e.mu.RUnlock()

	for _, l := range specific {
		e.dispatch(ev, l.fn)
	}
	for _, l := range all {
		e.dispatch(ev, l.fn)
	}
}

func (e *Emitter) dispatch(ev Event, fn Listener) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event listener panicked", "event", ev.EventName(), "panic", r)
		}
	}()
	fn(ev)
}

// ---- Global Emitter ----

var globalEmitter *Emitter
var globalOnce sync.Once

// Global returns the global event emitter.
func Global() *Emitter {
	globalOnce.Do(func() {
		globalEmitter = NewEmitter()
	})
	return globalEmitter
}

// Emit is a shortcut for Global().Emit(ev).
func Emit(ev Event) {
	Global().Emit(ev)
}

// On is a shortcut for Global().On(eventName, fn).
func On(eventName string, fn Listener) func() {
	return Global().On(eventName, fn)
}
