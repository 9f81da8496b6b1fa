// Package bridge routes native calls between the host VM and script code
// in both directions: it intercepts the host's native-dispatch entry so
// script-provided handlers can satisfy named natives, and it lets script
// code invoke any declared native through the preserved original path.
package bridge

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"github.com/tliron/commonlog"

	"github.com/seaborne/amxjs/amx"
)

var log = commonlog.GetLogger("amxjs.bridge")

var (
	// ErrNotInstalled is returned when a call needs the intercept but the
	// bridge is not installed.
	ErrNotInstalled = errors.New("bridge: not installed")
)

// ErrorSink receives diagnostics raised by script handlers; the runtime's
// exception queue satisfies it.
type ErrorSink interface {
	Enqueue(source string, line int, message string)
}

// providedNative is one script handler registration.
type providedNative struct {
	name      string
	signature string
	handler   goja.Callable
}

// NativeBridge intercepts the host VM's native-dispatch entry and keeps
// the registry of script-provided handlers keyed by name and parameter
// signature. All state is tick-thread only.
type NativeBridge struct {
	vm      *goja.Runtime
	machine *amx.AMX
	sink    ErrorSink

	intercept *amx.Intercept
	handlers  map[string]*providedNative
}

// New creates an uninstalled bridge. sink may be nil.
func New(vm *goja.Runtime, machine *amx.AMX, sink ErrorSink) *NativeBridge {
	return &NativeBridge{
		vm:       vm,
		machine:  machine,
		sink:     sink,
		handlers: make(map[string]*providedNative),
	}
}

func handlerKey(name, signature string) string {
	return name + "/" + signature
}

// Install places the intercept over the dispatch entry so every native
// call passes through the bridge first. Natives whose implementation the
// host has not resolved yet are fine: lookup happens per call, so they are
// picked up lazily once resolved.
func (b *NativeBridge) Install() error {
	intercept, err := amx.InstallIntercept(b.machine, b.dispatch)
	if err != nil {
		return fmt.Errorf("bridge: installing intercept: %w", err)
	}
	b.intercept = intercept
	return nil
}

// Installed reports whether the intercept is in place.
func (b *NativeBridge) Installed() bool {
	return b.intercept != nil && b.intercept.Installed()
}

// Uninstall restores the original dispatch path. Registered handlers
// become unreachable and are never invoked again, even by a call routed
// through a stale cached pointer. A restore failure means subsequent
// native calls would crash; callers must treat it as fatal.
func (b *NativeBridge) Uninstall() error {
	if b.intercept == nil {
		return ErrNotInstalled
	}
	if err := b.intercept.Uninstall(); err != nil {
		return fmt.Errorf("bridge: restoring dispatch path: %w", err)
	}
	b.handlers = make(map[string]*providedNative)
	return nil
}

// RegisterHandler stores a script handler for the (name, signature) pair.
// Registering an identical pair twice fails and leaves the first handler
// active. The signature must consist of decodable value tags, or every
// intercepted call would fail at decode time.
func (b *NativeBridge) RegisterHandler(name, signature string, handler goja.Callable) error {
	tags, err := amx.ParseSignature(signature)
	if err != nil {
		return fmt.Errorf("bridge: registering %s: %w", name, err)
	}
	for _, tag := range tags {
		switch tag {
		case amx.TagInteger, amx.TagFloat, amx.TagString:
		default:
			return fmt.Errorf("bridge: registering %s: tag %q cannot be decoded from a native frame", name, string(tag))
		}
	}
	key := handlerKey(name, signature)
	if _, ok := b.handlers[key]; ok {
		return fmt.Errorf("bridge: native %s with signature %q is already provided", name, signature)
	}
	b.handlers[key] = &providedNative{name: name, signature: signature, handler: handler}
	return nil
}

// HandlerCount returns the number of registered handlers.
func (b *NativeBridge) HandlerCount() int {
	return len(b.handlers)
}

// dispatch is the interception path, called for every native the host VM
// invokes. A registered handler is called synchronously with the decoded
// arguments; anything else forwards to the original implementation with
// the pristine, undecoded frame.
func (b *NativeBridge) dispatch(m *amx.AMX, n *amx.Native, params []amx.Cell) (amx.Cell, error) {
	provided := b.handlers[handlerKey(n.Name, n.Signature)]
	if provided == nil {
		return b.intercept.Trampoline(m, n, params)
	}

	args, err := amx.DecodeArgs(m, provided.signature, params, nil)
	if err != nil {
		// Never risk misreading the frame; fail this call only.
		return 0, fmt.Errorf("bridge: dispatching %s: %w", n.Name, err)
	}

	scriptArgs := make([]goja.Value, 0, args.Len())
	for _, name := range args.Names() {
		value, _ := args.Get(name)
		scriptArgs = append(scriptArgs, b.toScript(value))
	}

	result, err := provided.handler(goja.Undefined(), scriptArgs...)
	if err != nil {
		log.Warningf("provided native %s threw: %v", n.Name, err)
		if b.sink != nil {
			b.sink.Enqueue("provided native `"+n.Name+"`", 0, err.Error())
		}
		return 0, nil
	}
	return cellFromScript(result), nil
}

// toScript converts one decoded argument into its script representation.
func (b *NativeBridge) toScript(value amx.Value) goja.Value {
	switch value.Kind {
	case amx.KindInteger:
		return b.vm.ToValue(value.Integer)
	case amx.KindFloat:
		return b.vm.ToValue(value.Float)
	case amx.KindString:
		return b.vm.ToValue(value.Str)
	}
	return goja.Undefined()
}

// cellFromScript converts a handler's return value into the native ABI
// return slot: numbers keep their value, everything else collapses to
// truthiness.
func cellFromScript(v goja.Value) amx.Cell {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0
	}
	switch exported := v.Export().(type) {
	case int64:
		return amx.Cell(exported)
	case float64:
		return amx.CellFromFloat(float32(exported))
	case bool:
		if exported {
			return 1
		}
		return 0
	}
	if v.ToBoolean() {
		return 1
	}
	return 0
}

// CallFromScript invokes a declared native on behalf of script code: the
// arguments are encoded into the host's raw call form, the call goes
// through the preserved original path (bypassing the intercept so the
// bridge never re-enters itself), and the return value plus any
// out-parameters are decoded back into a script value.
func (b *NativeBridge) CallFromScript(name, signature string, args []goja.Value) (goja.Value, error) {
	if !b.Installed() {
		return nil, ErrNotInstalled
	}
	native := b.machine.FindNative(name)
	if native == nil {
		return nil, fmt.Errorf("bridge: unknown native %q", name)
	}
	if native.Signature != "" && native.Signature != signature {
		return nil, fmt.Errorf("bridge: native %q declares signature %q, not %q", name, native.Signature, signature)
	}

	tags, err := amx.ParseSignature(signature)
	if err != nil {
		return nil, err
	}
	raw, err := rawArguments(tags, args, signature)
	if err != nil {
		return nil, err
	}

	call, err := amx.EncodeCall(b.machine, signature, raw)
	if err != nil {
		return nil, err
	}
	defer call.Release()

	result, err := b.intercept.Trampoline(b.machine, native, call.Params)
	if err != nil {
		return nil, fmt.Errorf("bridge: invoking %s: %w", name, err)
	}

	if len(call.Outs) == 0 {
		return b.vm.ToValue(int64(result)), nil
	}

	outs := make([]goja.Value, 0, len(call.Outs))
	for _, out := range call.Outs {
		value, err := amx.ReadOut(b.machine, out)
		if err != nil {
			return nil, fmt.Errorf("bridge: reading result of %s: %w", name, err)
		}
		outs = append(outs, b.toScript(value))
	}
	if len(outs) == 1 {
		return outs[0], nil
	}
	return b.vm.ToValue(outs), nil
}

// rawArguments converts script arguments into the Go-native forms the
// codec expects, one entry per input-consuming tag.
func rawArguments(tags []amx.Tag, args []goja.Value, signature string) ([]interface{}, error) {
	raw := make([]interface{}, 0, len(args))
	next := 0
	take := func() (goja.Value, error) {
		if next >= len(args) {
			return nil, fmt.Errorf("bridge: signature %q expects more than the %d arguments provided", signature, len(args))
		}
		v := args[next]
		next++
		return v, nil
	}

	for i, tag := range tags {
		switch tag {
		case amx.TagInteger:
			v, err := take()
			if err != nil {
				return nil, err
			}
			raw = append(raw, v.ToInteger())
		case amx.TagFloat:
			v, err := take()
			if err != nil {
				return nil, err
			}
			raw = append(raw, v.ToFloat())
		case amx.TagString:
			v, err := take()
			if err != nil {
				return nil, err
			}
			raw = append(raw, v.String())
		case amx.TagArray:
			v, err := take()
			if err != nil {
				return nil, err
			}
			exported, ok := v.Export().([]interface{})
			if !ok {
				return nil, fmt.Errorf("bridge: argument %d: expected an array for tag %q", i+1, string(tag))
			}
			cells := make([]amx.Cell, len(exported))
			for j, element := range exported {
				n, ok := element.(int64)
				if !ok {
					return nil, fmt.Errorf("bridge: argument %d: array element %d is not an integer", i+1, j)
				}
				cells[j] = amx.Cell(n)
			}
			raw = append(raw, cells)
		case amx.TagStringRef:
			v, err := take()
			if err != nil {
				return nil, err
			}
			raw = append(raw, v.ToInteger())
		case amx.TagIntegerRef, amx.TagFloatRef:
			// Out-cells consume no script argument.
		}
	}
	if next != len(args) {
		return nil, fmt.Errorf("bridge: signature %q consumed %d of %d arguments", signature, next, len(args))
	}
	return raw, nil
}
