// Copyright (c) 2015 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package events carries notifications between the singleton components.
// Membership changes flow from a membership source to the notifiers and host
// manager through a SyncEventEmitter so their relative order is preserved;
// observational events (state changes, drops, handovers) are usually fanned out
// to stats listeners through an AsyncEventEmitter so that slow reporters never
// stall the host manager.
package events

import (
	"sync"
)

// Event is an empty interface that is type switched when handled.
type Event interface{}

// An EventListener handles events given to it. HandleEvent should be thread
// safe.
type EventListener interface {
	HandleEvent(event Event)
}

// EventEmitter can have listeners attached and emits events to them.
type EventEmitter interface {
	// AddListener registers l. It returns false when l is nil or already
	// registered.
	AddListener(l EventListener) bool
	// RemoveListener deregisters l. It returns false when l was not
	// registered.
	RemoveListener(l EventListener) bool
	// EmitEvent hands the event to every registered listener.
	EmitEvent(event Event)
}

// registry keeps a copy-on-write list of listeners: the slice is never
// mutated in place so a snapshot can be iterated without holding the lock,
// which allows listeners to add or remove listeners from HandleEvent.
type registry struct {
	mu        sync.RWMutex
	listeners []EventListener
}

func (r *registry) AddListener(l EventListener) bool {
	if l == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(l) >= 0 {
		return false
	}

	next := make([]EventListener, 0, len(r.listeners)+1)
	next = append(next, r.listeners...)
	r.listeners = append(next, l)
	return true
}

func (r *registry) RemoveListener(l EventListener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(l)
	if i < 0 {
		return false
	}

	next := make([]EventListener, 0, len(r.listeners)-1)
	next = append(next, r.listeners[:i]...)
	r.listeners = append(next, r.listeners[i+1:]...)
	return true
}

// indexOf must be called with the lock held.
func (r *registry) indexOf(l EventListener) int {
	if l == nil {
		return -1
	}
	for i, listener := range r.listeners {
		if listener == l {
			return i
		}
	}
	return -1
}

func (r *registry) snapshot() []EventListener {
	r.mu.RLock()
	listeners := r.listeners
	r.mu.RUnlock()
	return listeners
}

// SyncEventEmitter emits events to its listeners in the calling goroutine, in
// registration order.
type SyncEventEmitter struct {
	registry
}

// EmitEvent will send the event to all registered listeners.
func (e *SyncEventEmitter) EmitEvent(event Event) {
	for _, listener := range e.snapshot() {
		listener.HandleEvent(event)
	}
}

// AsyncEventEmitter emits every event to every listener in its own goroutine.
// No ordering between events is guaranteed.
type AsyncEventEmitter struct {
	registry
}

// EmitEvent will send the event to all registered listeners.
func (e *AsyncEventEmitter) EmitEvent(event Event) {
	for _, listener := range e.snapshot() {
		go listener.HandleEvent(event)
	}
}
