// Package registry stores event and lifecycle callbacks and dispatches
// incoming events to them.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Recognized lifecycle event names. Lifecycle registration is restricted
// to this closed set; data events may use any name.
const (
	LifecycleConnected    = "connected"
	LifecycleDisconnected = "disconnected"
)

// ErrUnknownLifecycleEvent is returned when a lifecycle callback is
// registered under a name outside the recognized set.
var ErrUnknownLifecycleEvent = errors.New("unknown lifecycle event")

// Registry maps event names to ordered callback lists. Registration and
// dispatch may happen concurrently; the read loop dispatches against a
// snapshot taken under the lock, so callbacks never run while the lock
// is held.
type Registry struct {
	mu        sync.Mutex
	events    map[string][]func([]byte)
	lifecycle map[string][]func()

	// report receives errors raised while dispatching, such as a
	// panicking callback. Never nil.
	report func(error)
}

// New creates an empty registry. Dispatch errors are passed to report;
// if report is nil they are logged.
func New(report func(error)) *Registry {
	if report == nil {
		report = func(err error) {
			slog.Error("callback dispatch error", "error", err)
		}
	}
	return &Registry{
		events: make(map[string][]func([]byte)),
		lifecycle: map[string][]func(){
			LifecycleConnected:    nil,
			LifecycleDisconnected: nil,
		},
		report: report,
	}
}

// OnEvent appends a callback for the named data event, creating the
// name's list if it does not exist yet. Duplicate registrations
// accumulate; there is no per-callback removal.
func (r *Registry) OnEvent(name string, fn func([]byte)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[name] = append(r.events[name], fn)
}

// OnLifecycle appends a callback for one of the recognized lifecycle
// events. Registering under any other name fails and leaves the
// registry unchanged.
func (r *Registry) OnLifecycle(kind string, fn func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lifecycle[kind]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLifecycleEvent, kind)
	}
	r.lifecycle[kind] = append(r.lifecycle[kind], fn)
	return nil
}

// Dispatch invokes every callback registered for the named event, in
// registration order. A panicking callback is reported and does not
// prevent the remaining callbacks from running.
func (r *Registry) Dispatch(name string, payload []byte) {
	r.mu.Lock()
	callbacks := slices.Clone(r.events[name])
	r.mu.Unlock()

	for _, fn := range callbacks {
		r.invoke(name, func() { fn(payload) })
	}
}

// DispatchLifecycle invokes every callback registered for the given
// lifecycle event, with the same ordering and isolation as Dispatch.
func (r *Registry) DispatchLifecycle(kind string) {
	r.mu.Lock()
	callbacks := slices.Clone(r.lifecycle[kind])
	r.mu.Unlock()

	for _, fn := range callbacks {
		r.invoke(kind, fn)
	}
}

func (r *Registry) invoke(name string, fn func()) {
	defer func() {
		if v := recover(); v != nil {
			r.report(fmt.Errorf("callback for %q panicked: %v", name, v))
		}
	}()
	fn()
}

// ClearEvents removes all data-event callbacks.
func (r *Registry) ClearEvents() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = make(map[string][]func([]byte))
}

// ClearLifecycle removes all lifecycle callbacks but keeps the
// recognized set of lifecycle names.
func (r *Registry) ClearLifecycle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for kind := range r.lifecycle {
		r.lifecycle[kind] = nil
	}
}
