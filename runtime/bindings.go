package runtime

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"

	"github.com/seaborne/amxjs/cryptolib"
	"github.com/seaborne/amxjs/storage"
)

// installBindings populates the execution context with the global surface
// script code programs against. Argument failures throw TypeErrors shaped
// "unable to execute X(): ...", which is what scripts historically match
// on in their own error handling.
func (r *Runtime) installBindings() {
	vm := r.vm

	vm.Set("addEventListener", r.bindAddEventListener)
	vm.Set("removeEventListener", r.bindRemoveEventListener)
	vm.Set("dispatchEvent", r.bindDispatchEvent)
	vm.Set("hasEventListener", r.bindHasEventListener)

	vm.Set("wait", r.bindWait)
	vm.Set("highResolutionTime", r.bindHighResolutionTime)
	vm.Set("frameCounter", r.bindFrameCounter)

	vm.Set("pawnInvoke", r.bindPawnInvoke)
	vm.Set("provideNative", r.bindProvideNative)

	vm.Set("getRuntimeStatistics", r.bindGetRuntimeStatistics)
	vm.Set("flushExceptionQueue", r.bindFlushExceptionQueue)
	vm.Set("getDeferredEvents", r.bindGetDeferredEvents)
	vm.Set("notifyReady", r.bindNotifyReady)
	vm.Set("reportTestsFinished", r.bindReportTestsFinished)
	vm.Set("killServer", r.bindKillServer)
	vm.Set("clearModuleCache", r.bindClearModuleCache)

	vm.Set("readFile", r.bindReadFile)
	vm.Set("glob", r.bindGlob)
	vm.Set("exec", r.bindExec)

	vm.Set("atob", r.bindAtob)
	vm.Set("btoa", r.bindBtoa)
	vm.Set("hmac", r.bindHmac)
	vm.Set("signMessage", r.bindSignMessage)
	vm.Set("verifyMessage", r.bindVerifyMessage)

	vm.Set("openDatabase", r.bindOpenDatabase)

	vm.Set("startTrace", r.bindStartTrace)
	vm.Set("stopTrace", r.bindStopTrace)

	vm.Set("console", r.consoleObject())

	// Aliases many scripts assume a browser-like environment for.
	vm.Set("self", vm.GlobalObject())
	vm.Set("global", vm.GlobalObject())
}

// ---------------------------------------------------------------------------
// Argument helpers
// ---------------------------------------------------------------------------

func (r *Runtime) typeError(name, format string, args ...interface{}) *goja.Object {
	prefixed := append([]interface{}{name}, args...)
	return r.vm.NewTypeError(fmt.Sprintf("unable to execute %s(): "+format, prefixed...))
}

func (r *Runtime) stringArg(name string, call goja.FunctionCall, index int) string {
	v := call.Argument(index)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		panic(r.typeError(name, "expected a string for argument %d.", index+1))
	}
	return v.String()
}

func (r *Runtime) numberArg(name string, call goja.FunctionCall, index int) float64 {
	v := call.Argument(index)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		panic(r.typeError(name, "expected a number for argument %d.", index+1))
	}
	return v.ToFloat()
}

func (r *Runtime) callableArg(name string, call goja.FunctionCall, index int) goja.Callable {
	fn, ok := goja.AssertFunction(call.Argument(index))
	if !ok {
		panic(r.typeError(name, "expected a function for argument %d.", index+1))
	}
	return fn
}

// ---------------------------------------------------------------------------
// Event target
// ---------------------------------------------------------------------------

func (r *Runtime) bindAddEventListener(call goja.FunctionCall) goja.Value {
	eventType := r.stringArg("addEventListener", call, 0)
	listener := call.Argument(1)
	if _, ok := goja.AssertFunction(listener); !ok {
		panic(r.typeError("addEventListener", "expected a function for argument 2."))
	}
	r.scope.AddEventListener(eventType, listener)
	return goja.Undefined()
}

func (r *Runtime) bindRemoveEventListener(call goja.FunctionCall) goja.Value {
	eventType := r.stringArg("removeEventListener", call, 0)

	// The one-argument form clears every listener for the type.
	listener := call.Argument(1)
	if goja.IsUndefined(listener) || goja.IsNull(listener) {
		r.scope.RemoveEventListener(eventType, nil)
		return goja.Undefined()
	}
	r.scope.RemoveEventListener(eventType, listener)
	return goja.Undefined()
}

func (r *Runtime) bindDispatchEvent(call goja.FunctionCall) goja.Value {
	eventType := r.stringArg("dispatchEvent", call, 0)

	payload := call.Argument(1)
	if goja.IsUndefined(payload) {
		payload = goja.Null()
	}
	prevented := r.scope.DispatchEvent(eventType, payload)
	return r.vm.ToValue(!prevented)
}

func (r *Runtime) bindHasEventListener(call goja.FunctionCall) goja.Value {
	eventType := r.stringArg("hasEventListener", call, 0)
	return r.vm.ToValue(r.scope.HasEventListeners(eventType))
}

// ---------------------------------------------------------------------------
// Scheduling and time
// ---------------------------------------------------------------------------

func (r *Runtime) bindWait(call goja.FunctionCall) goja.Value {
	millis := r.numberArg("wait", call, 0)
	if millis < 0 {
		millis = 0
	}
	return r.Wait(int64(millis)).ScriptObject(r.vm)
}

func (r *Runtime) bindHighResolutionTime(call goja.FunctionCall) goja.Value {
	return r.vm.ToValue(r.HighResolutionTime())
}

func (r *Runtime) bindFrameCounter(call goja.FunctionCall) goja.Value {
	duration, fps := r.GetAndResetFrameCounter()
	result := r.vm.NewObject()
	result.Set("duration", duration)
	result.Set("fps", fps)
	return result
}

// ---------------------------------------------------------------------------
// Native bridge
// ---------------------------------------------------------------------------

func (r *Runtime) bindPawnInvoke(call goja.FunctionCall) goja.Value {
	name := r.stringArg("pawnInvoke", call, 0)

	signature := ""
	var args []goja.Value
	if len(call.Arguments) > 1 {
		signature = r.stringArg("pawnInvoke", call, 1)
		args = call.Arguments[2:]
	}

	result, err := r.bridge.CallFromScript(name, signature, args)
	if err != nil {
		panic(r.typeError("pawnInvoke", "%s", err.Error()))
	}
	return result
}

func (r *Runtime) bindProvideNative(call goja.FunctionCall) goja.Value {
	name := r.stringArg("provideNative", call, 0)
	signature := r.stringArg("provideNative", call, 1)
	handler := r.callableArg("provideNative", call, 2)

	if err := r.bridge.RegisterHandler(name, signature, handler); err != nil {
		panic(r.typeError("provideNative", "%s", err.Error()))
	}
	return goja.Undefined()
}

// ---------------------------------------------------------------------------
// Lifecycle and diagnostics
// ---------------------------------------------------------------------------

func (r *Runtime) bindGetRuntimeStatistics(call goja.FunctionCall) goja.Value {
	stats := r.Statistics()
	result := r.vm.NewObject()
	result.Set("deferredEventQueueSize", stats.DeferredEventQueueSize)
	result.Set("eventHandlerCount", stats.EventHandlerCount)
	result.Set("exceptionQueueSize", stats.ExceptionQueueSize)
	result.Set("timerQueueSize", stats.TimerQueueSize)
	return result
}

func (r *Runtime) bindFlushExceptionQueue(call goja.FunctionCall) goja.Value {
	r.exceptions.FlushQueue()
	return goja.Undefined()
}

func (r *Runtime) bindGetDeferredEvents(call goja.FunctionCall) goja.Value {
	drained := r.scope.DrainDeferredEvents()
	events := make([]goja.Value, 0, len(drained))
	for _, deferred := range drained {
		entry := r.vm.NewObject()
		entry.Set("type", deferred.Type)
		entry.Set("event", deferred.Payload)
		events = append(events, entry)
	}
	return r.vm.ToValue(events)
}

func (r *Runtime) bindNotifyReady(call goja.FunctionCall) goja.Value {
	r.SetReady()
	return goja.Undefined()
}

func (r *Runtime) bindReportTestsFinished(call goja.FunctionCall) goja.Value {
	total := int(r.numberArg("reportTestsFinished", call, 0))
	failed := int(r.numberArg("reportTestsFinished", call, 1))

	r.scope.VerifyNoEventHandlersLeft()
	if r.delegate != nil {
		r.delegate.OnScriptTestsDone(total, failed)
	}
	return goja.Undefined()
}

func (r *Runtime) bindKillServer(call goja.FunctionCall) goja.Value {
	log.Noticef("script requested shutdown")
	if !r.ready {
		r.Abort(ErrKilled)
	}
	return goja.Undefined()
}

func (r *Runtime) bindClearModuleCache(call goja.FunctionCall) goja.Value {
	prefix := ""
	if len(call.Arguments) > 0 {
		prefix = r.stringArg("clearModuleCache", call, 0)
	}
	return r.vm.ToValue(r.modulator.ClearCache(prefix))
}

// ---------------------------------------------------------------------------
// Filesystem and processes
// ---------------------------------------------------------------------------

func (r *Runtime) bindReadFile(call goja.FunctionCall) goja.Value {
	name := r.stringArg("readFile", call, 0)
	contents, err := os.ReadFile(path.Join(r.modulator.Root(), path.Clean(name)))
	if err != nil {
		panic(r.typeError("readFile", "%s", err.Error()))
	}
	return r.vm.ToValue(string(contents))
}

func (r *Runtime) bindGlob(call goja.FunctionCall) goja.Value {
	pattern := r.stringArg("glob", call, 0)
	root := r.modulator.Root()

	matches, err := filepath.Glob(filepath.Join(root, pattern))
	if err != nil {
		panic(r.typeError("glob", "%s", err.Error()))
	}
	relative := make([]string, 0, len(matches))
	for _, match := range matches {
		relative = append(relative, strings.TrimPrefix(match, root+string(filepath.Separator)))
	}
	return r.vm.ToValue(relative)
}

func (r *Runtime) bindExec(call goja.FunctionCall) goja.Value {
	command := r.stringArg("exec", call, 0)
	args := make([]string, 0, len(call.Arguments)-1)
	for _, arg := range call.Arguments[1:] {
		args = append(args, arg.String())
	}
	return r.Exec(command, args).ScriptObject(r.vm)
}

// ---------------------------------------------------------------------------
// Cryptography
// ---------------------------------------------------------------------------

func (r *Runtime) bindAtob(call goja.FunctionCall) goja.Value {
	encoded := r.stringArg("atob", call, 0)
	decoded, err := cryptolib.Base64Decode(encoded)
	if err != nil {
		panic(r.typeError("atob", "%s", err.Error()))
	}
	return r.vm.ToValue(decoded)
}

func (r *Runtime) bindBtoa(call goja.FunctionCall) goja.Value {
	return r.vm.ToValue(cryptolib.Base64Encode(r.stringArg("btoa", call, 0)))
}

func (r *Runtime) bindHmac(call goja.FunctionCall) goja.Value {
	key := r.stringArg("hmac", call, 0)
	message := r.stringArg("hmac", call, 1)
	return r.vm.ToValue(cryptolib.Hmac(key, message))
}

func (r *Runtime) bindSignMessage(call goja.FunctionCall) goja.Value {
	key := r.stringArg("signMessage", call, 0)
	message := r.stringArg("signMessage", call, 1)

	signature, err := cryptolib.SignMessage(key, message)
	if err != nil {
		panic(r.typeError("signMessage", "%s", err.Error()))
	}
	return r.vm.ToValue(signature)
}

func (r *Runtime) bindVerifyMessage(call goja.FunctionCall) goja.Value {
	key := r.stringArg("verifyMessage", call, 0)
	message := r.stringArg("verifyMessage", call, 1)
	signature := r.stringArg("verifyMessage", call, 2)

	valid, err := cryptolib.VerifyMessage(key, message, signature)
	if err != nil {
		panic(r.typeError("verifyMessage", "%s", err.Error()))
	}
	return r.vm.ToValue(valid)
}

// ---------------------------------------------------------------------------
// Storage
// ---------------------------------------------------------------------------

// bindOpenDatabase opens a database file and wraps it in a script object
// whose query/execute methods run on the executor and resolve a promise on
// the tick thread.
func (r *Runtime) bindOpenDatabase(call goja.FunctionCall) goja.Value {
	file := r.stringArg("openDatabase", call, 0)

	database, err := storage.Open(file)
	if err != nil {
		panic(r.typeError("openDatabase", "%s", err.Error()))
	}
	r.databases = append(r.databases, database)

	handle := r.vm.NewObject()
	handle.Set("query", func(call goja.FunctionCall) goja.Value {
		statement := r.stringArg("query", call, 0)
		params := exportArguments(call.Arguments[1:])

		promise := NewPromise(r.reportContinuationError)
		r.executor.Post("query", func() func() {
			rows, err := database.Query(statement, params...)
			return func() {
				result := r.vm.NewObject()
				if err != nil {
					result.Set("error", err.Error())
				} else {
					result.Set("rows", r.vm.ToValue(rows))
				}
				promise.Resolve(result)
			}
		})
		return promise.ScriptObject(r.vm)
	})
	handle.Set("execute", func(call goja.FunctionCall) goja.Value {
		statement := r.stringArg("execute", call, 0)
		params := exportArguments(call.Arguments[1:])

		promise := NewPromise(r.reportContinuationError)
		r.executor.Post("execute", func() func() {
			outcome, err := database.Execute(statement, params...)
			return func() {
				result := r.vm.NewObject()
				if err != nil {
					result.Set("error", err.Error())
				} else {
					result.Set("affectedRows", outcome.AffectedRows)
					result.Set("insertId", outcome.LastInsertID)
				}
				promise.Resolve(result)
			}
		})
		return promise.ScriptObject(r.vm)
	})
	handle.Set("close", func(call goja.FunctionCall) goja.Value {
		if err := database.Close(); err != nil {
			panic(r.typeError("close", "%s", err.Error()))
		}
		return goja.Undefined()
	})
	return handle
}

func exportArguments(args []goja.Value) []interface{} {
	exported := make([]interface{}, 0, len(args))
	for _, arg := range args {
		exported = append(exported, arg.Export())
	}
	return exported
}

// ---------------------------------------------------------------------------
// Tracing
// ---------------------------------------------------------------------------

func (r *Runtime) bindStartTrace(call goja.FunctionCall) goja.Value {
	r.profiler.StartTrace()
	return goja.Undefined()
}

func (r *Runtime) bindStopTrace(call goja.FunctionCall) goja.Value {
	file := r.stringArg("stopTrace", call, 0)
	r.profiler.StopTrace()
	if err := r.profiler.Write(file, true); err != nil {
		panic(r.typeError("stopTrace", "%s", err.Error()))
	}
	return goja.Undefined()
}

// ---------------------------------------------------------------------------
// Console
// ---------------------------------------------------------------------------

func (r *Runtime) consoleObject() *goja.Object {
	write := func(prefix string) func(call goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(call.Arguments))
			for _, arg := range call.Arguments {
				parts = append(parts, arg.String())
			}
			if r.delegate != nil {
				r.delegate.OnScriptOutput(prefix + strings.Join(parts, " "))
			}
			return goja.Undefined()
		}
	}

	console := r.vm.NewObject()
	console.Set("log", write(""))
	console.Set("info", write(""))
	console.Set("warn", write("[warning] "))
	console.Set("error", write("[error] "))
	return console
}
