package runtime

import (
	"github.com/dop251/goja"

	"github.com/seaborne/amxjs/amx"
)

// EventField describes one payload property of a registered event type.
type EventField struct {
	Name string
	Kind amx.ValueKind
}

// EventShape materializes event payload objects from an Arguments bag. One
// shape is registered per event type before the runtime initializes.
type EventShape struct {
	Fields []EventField
}

// NewInstance builds the payload object for a dispatch, copying the shaped
// fields out of args and attaching the default-action machinery.
func (s *EventShape) NewInstance(vm *goja.Runtime, args *amx.Arguments) *goja.Object {
	obj := vm.NewObject()
	for _, field := range s.Fields {
		switch field.Kind {
		case amx.KindInteger:
			obj.Set(field.Name, args.GetInteger(field.Name))
		case amx.KindFloat:
			obj.Set(field.Name, args.GetFloat(field.Name))
		case amx.KindString:
			obj.Set(field.Name, args.GetString(field.Name))
		}
	}
	obj.Set("defaultPrevented", false)
	obj.Set("preventDefault", func(call goja.FunctionCall) goja.Value {
		obj.Set("defaultPrevented", true)
		return goja.Undefined()
	})
	return obj
}

// DefaultPrevented reports whether a listener marked the payload's default
// action as prevented.
func DefaultPrevented(payload goja.Value) bool {
	obj, ok := payload.(*goja.Object)
	if !ok {
		return false
	}
	// Get returns nil for absent keys; a payload without the property
	// was simply never prevented.
	v := obj.Get("defaultPrevented")
	if v == nil {
		return false
	}
	return v.ToBoolean()
}

type deferredEvent struct {
	eventType string
	arguments *amx.Arguments
}

// DeferredEvent is one drained entry: the event type and its materialized
// payload.
type DeferredEvent struct {
	Type    string
	Payload *goja.Object
}

// GlobalScope is the event-dispatch surface of the runtime: the registry
// of event types and their shapes, the per-type listener lists, and the
// buffer for events raised before the script side signaled readiness.
// Everything here is tick-thread state; no locking.
type GlobalScope struct {
	vm         *goja.Runtime
	exceptions *ExceptionHandler

	events    map[string]*EventShape
	listeners map[string][]goja.Value
	deferred  []deferredEvent
}

// NewGlobalScope creates an empty scope bound to the script engine.
func NewGlobalScope(vm *goja.Runtime, exceptions *ExceptionHandler) *GlobalScope {
	return &GlobalScope{
		vm:         vm,
		exceptions: exceptions,
		events:     make(map[string]*EventShape),
		listeners:  make(map[string][]goja.Value),
	}
}

// RegisterEvent associates an event type with its payload shape.
// Re-registration overwrites. Must happen before Runtime.Initialize.
func (g *GlobalScope) RegisterEvent(eventType string, shape *EventShape) {
	g.events[eventType] = shape
}

// GetEvent returns the registered shape for eventType, or nil.
func (g *GlobalScope) GetEvent(eventType string) *EventShape {
	return g.events[eventType]
}

// AddEventListener appends listener to the ordered list for eventType.
// The same listener may be registered multiple times and is counted per
// registration.
func (g *GlobalScope) AddEventListener(eventType string, listener goja.Value) {
	g.listeners[eventType] = append(g.listeners[eventType], listener)
}

// RemoveEventListener removes every occurrence of listener, matched by
// identity, from eventType's list. A nil listener clears the whole list.
func (g *GlobalScope) RemoveEventListener(eventType string, listener goja.Value) {
	list, ok := g.listeners[eventType]
	if !ok {
		return
	}
	if listener == nil {
		delete(g.listeners, eventType)
		return
	}
	kept := list[:0]
	for _, registered := range list {
		if !registered.StrictEquals(listener) {
			kept = append(kept, registered)
		}
	}
	g.listeners[eventType] = kept
}

// DispatchEvent invokes every listener registered for eventType with the
// payload. Dispatch runs over a snapshot taken at entry, so listeners that
// add or remove listeners mid-dispatch cannot corrupt the iteration; the
// original snapshot keeps being used. Returns false without further work
// when no listeners exist, which is a normal outcome for optional
// host-defined hooks; otherwise returns whether any listener prevented the
// payload's default action.
func (g *GlobalScope) DispatchEvent(eventType string, payload goja.Value) bool {
	list, ok := g.listeners[eventType]
	if !ok || len(list) == 0 {
		return false
	}
	if payload == nil {
		payload = goja.Null()
	}

	snapshot := make([]goja.Value, len(list))
	copy(snapshot, list)

	for _, listener := range snapshot {
		fn, ok := goja.AssertFunction(listener)
		if !ok {
			log.Warningf("non-function listener found for event %s", eventType)
			continue
		}
		if _, err := fn(goja.Undefined(), payload); err != nil {
			log.Warningf("listener for event %s threw: %v", eventType, err)
			g.exceptions.Enqueue("dispatched event `"+eventType+"`", 0, err.Error())
		}
	}

	return DefaultPrevented(payload)
}

// HasEventListeners reports whether any listener is registered for
// eventType.
func (g *GlobalScope) HasEventListeners(eventType string) bool {
	return len(g.listeners[eventType]) > 0
}

// EventHandlerCount returns the total number of registered listeners
// across all event types.
func (g *GlobalScope) EventHandlerCount() int {
	count := 0
	for _, list := range g.listeners {
		count += len(list)
	}
	return count
}

// StoreDeferredEvent buffers the raw arguments of an event raised before
// the runtime was ready.
func (g *GlobalScope) StoreDeferredEvent(eventType string, arguments *amx.Arguments) {
	g.deferred = append(g.deferred, deferredEvent{eventType: eventType, arguments: arguments})
}

// DeferredEventCount returns the number of buffered entries.
func (g *GlobalScope) DeferredEventCount() int {
	return len(g.deferred)
}

// DrainDeferredEvents materializes every buffered entry through its
// registered shape and clears the buffer unconditionally. Entries whose
// type has no registered shape are dropped with a diagnostic rather than
// surfaced; callers must drain completely or not at all.
func (g *GlobalScope) DrainDeferredEvents() []DeferredEvent {
	buffered := g.deferred
	g.deferred = nil

	drained := make([]DeferredEvent, 0, len(buffered))
	for _, entry := range buffered {
		shape := g.events[entry.eventType]
		if shape == nil {
			log.Errorf("unrecognized event name: %s, dropping deferred event", entry.eventType)
			continue
		}
		drained = append(drained, DeferredEvent{
			Type:    entry.eventType,
			Payload: shape.NewInstance(g.vm, entry.arguments),
		})
	}
	return drained
}

// VerifyNoEventHandlersLeft runs at orderly shutdown. Remaining listeners
// indicate a feature that failed to detach; the registry is kept intact in
// that case to aid post-mortem inspection, and cleared only when empty.
func (g *GlobalScope) VerifyNoEventHandlersLeft() {
	warnings := 0
	for eventType, list := range g.listeners {
		if len(list) == 0 {
			continue
		}
		log.Warningf("the event %s still has %d attached listeners", eventType, len(list))
		warnings++
	}
	if warnings > 0 {
		log.Warning("not clearing the event listener map")
		return
	}
	g.listeners = make(map[string][]goja.Value)
}
