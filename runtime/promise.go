package runtime

import (
	"github.com/dop251/goja"
)

// Promise is a single-resolution deferred value handed to script code. It
// transitions Pending → Resolved exactly once; a second Resolve is a no-op.
// Continuations registered through the script-visible then() run
// synchronously, in registration order, the moment the promise resolves on
// the tick thread. A promise whose runtime is torn down before resolution
// is simply dropped.
type Promise struct {
	resolved      bool
	value         goja.Value
	continuations []goja.Callable

	// errh receives failures thrown by continuations; resolution itself
	// never fails.
	errh func(source string, err error)
}

// NewPromise creates a pending promise. errh may be nil.
func NewPromise(errh func(source string, err error)) *Promise {
	return &Promise{errh: errh}
}

// Resolved reports whether the promise has settled.
func (p *Promise) Resolved() bool {
	return p.resolved
}

// Value returns the resolution value, or nil while pending.
func (p *Promise) Value() goja.Value {
	return p.value
}

// Resolve settles the promise with value and synchronously invokes every
// registered continuation with it. Resolving an already-resolved promise
// does nothing; the first value wins.
func (p *Promise) Resolve(value goja.Value) {
	if p.resolved {
		return
	}
	if value == nil {
		value = goja.Undefined()
	}
	p.resolved = true
	p.value = value

	continuations := p.continuations
	p.continuations = nil
	for _, fn := range continuations {
		p.invoke(fn)
	}
}

// Then registers a continuation. When the promise has already resolved the
// continuation runs immediately with the settled value.
func (p *Promise) Then(fn goja.Callable) {
	if p.resolved {
		p.invoke(fn)
		return
	}
	p.continuations = append(p.continuations, fn)
}

func (p *Promise) invoke(fn goja.Callable) {
	if _, err := fn(goja.Undefined(), p.value); err != nil && p.errh != nil {
		p.errh("promise continuation", err)
	}
}

// ScriptObject materializes the script-side handle: then(fn) registers a
// continuation, settled() reports resolution.
func (p *Promise) ScriptObject(vm *goja.Runtime) *goja.Object {
	obj := vm.NewObject()
	obj.Set("then", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("unable to execute then(): expected a function for argument 1."))
		}
		p.Then(fn)
		return obj
	})
	obj.Set("settled", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(p.resolved)
	})
	return obj
}
