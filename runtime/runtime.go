// Package runtime owns the script engine's single execution context and
// everything scheduled on it: the tick-synchronized cooperative scheduler,
// the event-dispatch surface, the time-ordered promise queue, the exception
// sink and the asynchronous work executor. The host VM drives it by calling
// OnTick once per simulation tick; script code never runs anywhere else.
package runtime

import (
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/tliron/commonlog"

	"github.com/seaborne/amxjs/amx"
	"github.com/seaborne/amxjs/bridge"
	"github.com/seaborne/amxjs/modules"
	"github.com/seaborne/amxjs/storage"
)

var log = commonlog.GetLogger("amxjs.runtime")

var (
	// ErrAlreadyInitialized is returned when Initialize runs twice; the
	// host must treat this as fatal.
	ErrAlreadyInitialized = errors.New("runtime: already initialized")

	// ErrKilled is the bootstrap abort recorded when script code calls
	// killServer before readiness.
	ErrKilled = errors.New("runtime: script requested shutdown")
)

// Delegate receives output the script engine generates for its embedder.
type Delegate interface {
	OnScriptOutput(message string)
	OnScriptError(source string, line int, message string)
	OnScriptTestsDone(total, failed int)
}

// Options configures a Runtime.
type Options struct {
	// SourceDirectory is the root the module loader resolves scripts in.
	SourceDirectory string

	// ExecutorWorkers sizes the asynchronous work pool. Zero means one.
	ExecutorWorkers int
}

// Runtime binds the script engine's execution context to the host VM's
// simulation tick. Exactly one Runtime exists per execution context; every
// other component is reachable only through it.
type Runtime struct {
	vm       *goja.Runtime
	machine  *amx.AMX
	delegate Delegate

	scope      *GlobalScope
	timers     *TimerQueue
	exceptions *ExceptionHandler
	executor   *Executor
	profiler   *Profiler
	bridge     *bridge.NativeBridge
	modulator  *modules.Modulator
	databases  []*storage.Database

	initialized  bool
	ready        bool
	bootstrapErr error

	// Monotonic clock anchor for highResolutionTime and the timer queue.
	epoch time.Time

	frameCounter      int64
	frameCounterStart float64
}

// New creates the Runtime for the process. delegate may be nil.
func New(delegate Delegate, machine *amx.AMX, opts Options) *Runtime {
	vm := goja.New()

	r := &Runtime{
		vm:       vm,
		machine:  machine,
		delegate: delegate,
		epoch:    time.Now(),
	}
	r.exceptions = NewExceptionHandler(delegate)
	r.scope = NewGlobalScope(vm, r.exceptions)
	r.timers = NewTimerQueue()
	r.executor = NewExecutor(opts.ExecutorWorkers)
	r.profiler = NewProfiler()
	r.bridge = bridge.New(vm, machine, r.exceptions)
	r.modulator = modules.New(vm, opts.SourceDirectory)
	return r
}

// Initialize installs all script-visible bindings into the execution
// context and places the native-call intercept. It must run exactly once,
// after the dynamically defined event shapes are registered and before any
// script code runs.
func (r *Runtime) Initialize() error {
	if r.initialized {
		return ErrAlreadyInitialized
	}
	r.installBindings()
	if err := r.bridge.Install(); err != nil {
		return fmt.Errorf("runtime: installing native bridge: %w", err)
	}
	r.initialized = true
	r.frameCounterStart = r.HighResolutionTime()
	return nil
}

// OnTick performs one scheduling quantum: apply the executor completions
// queued so far (never blocking for more), then resolve every due timer.
// Script code running inside the quantum may raise events and schedule
// further timers; both are safe mid-tick.
func (r *Runtime) OnTick() {
	started := time.Now()
	r.frameCounter++

	r.executor.RunOneQuantum()
	r.timers.Tick(r.nowMillis())

	r.profiler.RecordTick(r.frameCounter, time.Since(started))
}

// SpinUntilReady pumps ticks until the script side signals readiness. A
// broken bootstrap script that never signals keeps the host here forever,
// by design; the only way out besides readiness is a fatal script error
// recorded through Abort.
func (r *Runtime) SpinUntilReady() error {
	for !r.ready {
		if r.bootstrapErr != nil {
			return r.bootstrapErr
		}
		r.OnTick()
	}
	return nil
}

// IsReady reports whether the script bootstrap has completed.
func (r *Runtime) IsReady() bool {
	return r.ready
}

// SetReady flips the readiness flag. Idempotent. Draining the deferred
// event buffer stays a deliberate script-initiated action.
func (r *Runtime) SetReady() {
	r.ready = true
}

// Abort records a fatal bootstrap error so SpinUntilReady can fail out.
func (r *Runtime) Abort(err error) {
	if r.bootstrapErr == nil {
		r.bootstrapErr = err
	}
}

// GetAndResetFrameCounter returns the elapsed duration in milliseconds and
// the average tick rate since the previous call, then resets both. A
// consuming read.
func (r *Runtime) GetAndResetFrameCounter() (durationMillis, averageFPS float64) {
	now := r.HighResolutionTime()
	durationMillis = now - r.frameCounterStart
	if durationMillis > 0 {
		averageFPS = float64(r.frameCounter) / (durationMillis / 1000)
	}
	r.frameCounter = 0
	r.frameCounterStart = now
	return durationMillis, averageFPS
}

// HighResolutionTime returns monotonic milliseconds since an arbitrary
// epoch.
func (r *Runtime) HighResolutionTime() float64 {
	return float64(time.Since(r.epoch)) / float64(time.Millisecond)
}

func (r *Runtime) nowMillis() int64 {
	return int64(time.Since(r.epoch) / time.Millisecond)
}

// Wait schedules a promise that resolves once millis have elapsed, on a
// later tick. The promise is returned immediately.
func (r *Runtime) Wait(millis int64) *Promise {
	promise := NewPromise(r.reportContinuationError)
	r.timers.Add(promise, r.nowMillis()+millis)
	return promise
}

// reportContinuationError routes continuation failures into the exception
// queue for a later flush.
func (r *Runtime) reportContinuationError(source string, err error) {
	log.Warningf("%s threw: %v", source, err)
	r.exceptions.Enqueue(source, 0, err.Error())
}

// Statistics is a point-in-time snapshot of the runtime's queues.
type Statistics struct {
	DeferredEventQueueSize int
	EventHandlerCount      int
	ExceptionQueueSize     int
	TimerQueueSize         int
}

// Statistics reports current queue sizes for diagnostics.
func (r *Runtime) Statistics() Statistics {
	return Statistics{
		DeferredEventQueueSize: r.scope.DeferredEventCount(),
		EventHandlerCount:      r.scope.EventHandlerCount(),
		ExceptionQueueSize:     r.exceptions.Size(),
		TimerQueueSize:         r.timers.Size(),
	}
}

// Dispose tears the runtime down at orderly shutdown: listeners still
// registered are reported (and preserved for diagnosis), queued exceptions
// are surfaced, the native bridge is uninstalled and the executor stopped.
// Pending promises are dropped unresolved. A bridge that cannot restore
// the original dispatch path is a fatal condition surfaced to the caller.
func (r *Runtime) Dispose() error {
	r.scope.VerifyNoEventHandlersLeft()

	if r.exceptions.HasQueued() {
		log.Warningf("%d unhandled exceptions still queued at shutdown", r.exceptions.Size())
		r.exceptions.FlushQueue()
	}

	var err error
	if r.bridge.Installed() {
		if err = r.bridge.Uninstall(); err != nil {
			log.Criticalf("failed to restore the native dispatch path: %v", err)
		}
	}

	r.executor.Stop()

	for _, db := range r.databases {
		if closeErr := db.Close(); closeErr != nil {
			log.Warningf("closing database %s: %v", db.Path(), closeErr)
		}
	}
	r.databases = nil

	return err
}

// VM returns the script engine's execution context.
func (r *Runtime) VM() *goja.Runtime { return r.vm }

// Machine returns the host VM this runtime is bound to.
func (r *Runtime) Machine() *amx.AMX { return r.machine }

// GlobalScope returns the event-dispatch surface.
func (r *Runtime) GlobalScope() *GlobalScope { return r.scope }

// TimerQueue returns the pending timer set.
func (r *Runtime) TimerQueue() *TimerQueue { return r.timers }

// ExceptionHandler returns the diagnostic queue.
func (r *Runtime) ExceptionHandler() *ExceptionHandler { return r.exceptions }

// Executor returns the asynchronous work pool.
func (r *Runtime) Executor() *Executor { return r.executor }

// Profiler returns the tick profiler.
func (r *Runtime) Profiler() *Profiler { return r.profiler }

// Bridge returns the native-call bridge.
func (r *Runtime) Bridge() *bridge.NativeBridge { return r.bridge }

// Modulator returns the module loader.
func (r *Runtime) Modulator() *modules.Modulator { return r.modulator }

// Delegate returns the embedder's delegate. May be nil.
func (r *Runtime) Delegate() Delegate { return r.delegate }

// LoadMainModule loads the entry-point script. Failures here are bootstrap
// failures: they are queued as script errors and recorded as the abort
// reason for SpinUntilReady.
func (r *Runtime) LoadMainModule(path string) error {
	if _, err := r.modulator.LoadModule(path); err != nil {
		r.exceptions.Enqueue(path, 0, err.Error())
		r.Abort(fmt.Errorf("runtime: loading main module: %w", err))
		return err
	}
	return nil
}

// OnHostEvent is the entry point the host's callback plumbing uses to
// raise an event toward script code. Before readiness the raw arguments
// are buffered for a later script-initiated drain; afterwards the payload
// is materialized through the registered shape and dispatched. Returns
// whether a listener prevented the default action.
func (r *Runtime) OnHostEvent(eventType string, arguments *amx.Arguments) bool {
	if !r.ready {
		r.scope.StoreDeferredEvent(eventType, arguments)
		return false
	}
	shape := r.scope.GetEvent(eventType)
	if shape == nil {
		log.Debugf("no shape registered for host event %s", eventType)
		return false
	}
	return r.scope.DispatchEvent(eventType, shape.NewInstance(r.vm, arguments))
}
