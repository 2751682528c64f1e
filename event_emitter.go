package chatsdk

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

type listener[V any] func(V) error

// EventEmitter maps events (of type K) to ordered listeners receiving V.
// A listener that returns an error or panics is reported through onError and
// does not prevent the remaining listeners from running.
type EventEmitter[K comparable, V any] struct {
	listeners map[K][]listener[V]
	lock      sync.RWMutex
	onError   func(event K, err error)
}

// NewEventEmitter creates a new EventEmitter. onError may be nil.
func NewEventEmitter[K comparable, V any](onError func(K, error)) *EventEmitter[K, V] {
	return &EventEmitter[K, V]{
		listeners: make(map[K][]listener[V]),
		onError:   onError,
	}
}

// On registers a new listener for the given event.
func (e *EventEmitter[K, V]) On(event K, l func(V) error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.listeners[event] = append(e.listeners[event], l)
}

// Emit calls every listener of event synchronously, in registration order.
// It returns the number of listeners that failed.
func (e *EventEmitter[K, V]) Emit(event K, data V) int {
	e.lock.RLock()
	listeners := e.listeners[event]
	e.lock.RUnlock()

	failed := 0
	for _, l := range listeners {
		if err := safeCall[V](l, data); err != nil {
			failed++
			if e.onError != nil {
				e.onError(event, err)
			}
		}
	}
	return failed
}

// Len returns the number of listeners registered for event.
func (e *EventEmitter[K, V]) Len(event K) int {
	e.lock.RLock()
	defer e.lock.RUnlock()

	return len(e.listeners[event])
}

// Close removes all listeners.
func (e *EventEmitter[K, V]) Close() {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.listeners = make(map[K][]listener[V])
}

func safeCall[V any](l func(V) error, data V) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("handler panic: %s", fmt.Sprint(r))
		}
	}()
	return l(data)
}
