package runtime

import (
	"errors"
	"testing"

	"github.com/seaborne/amxjs/amx"
)

func newTestRuntime(t *testing.T) (*Runtime, *recordingDelegate) {
	t.Helper()
	delegate := &recordingDelegate{}
	r := New(delegate, amx.New(), Options{SourceDirectory: t.TempDir()})
	t.Cleanup(func() { r.Dispose() })
	return r, delegate
}

func TestInitializeTwiceFails(t *testing.T) {
	r, _ := newTestRuntime(t)

	if err := r.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	if err := r.Initialize(); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second Initialize() = %v, want ErrAlreadyInitialized", err)
	}
}

func TestWaitResolvesOnTickNotInline(t *testing.T) {
	r, _ := newTestRuntime(t)
	if err := r.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}

	p := r.Wait(0)
	if p.Resolved() {
		t.Fatal("wait(0) resolved before the next tick")
	}

	r.OnTick()
	if !p.Resolved() {
		t.Error("wait(0) not resolved by the next tick")
	}
}

func TestSpinUntilReadyReturnsOnReadiness(t *testing.T) {
	r, _ := newTestRuntime(t)
	if err := r.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}

	r.SetReady()
	r.SetReady() // idempotent

	if err := r.SpinUntilReady(); err != nil {
		t.Errorf("SpinUntilReady() = %v, want nil", err)
	}
}

func TestSpinUntilReadyAbortsOnBootstrapError(t *testing.T) {
	r, _ := newTestRuntime(t)
	if err := r.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}

	r.Abort(ErrKilled)
	if err := r.SpinUntilReady(); !errors.Is(err, ErrKilled) {
		t.Errorf("SpinUntilReady() = %v, want ErrKilled", err)
	}

	// The first recorded abort reason wins.
	r.Abort(errors.New("later failure"))
	if err := r.SpinUntilReady(); !errors.Is(err, ErrKilled) {
		t.Errorf("SpinUntilReady() after second abort = %v, want ErrKilled", err)
	}
}

func TestSetReadyDoesNotDrainDeferredEvents(t *testing.T) {
	r, _ := newTestRuntime(t)
	r.GlobalScope().RegisterEvent("ready", readyShape())
	if err := r.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}

	if r.OnHostEvent("ready", readyArguments()) {
		t.Error("buffered host event reported default-prevented")
	}
	r.SetReady()

	if got := r.Statistics().DeferredEventQueueSize; got != 1 {
		t.Errorf("deferred queue size = %d after SetReady, want 1", got)
	}
}

func TestOnHostEventDispatchesWhenReady(t *testing.T) {
	r, _ := newTestRuntime(t)
	r.GlobalScope().RegisterEvent("ready", readyShape())
	if err := r.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	r.SetReady()

	vm := r.VM()
	listener, err := vm.RunString(`(event => event.preventDefault())`)
	if err != nil {
		t.Fatalf("building listener failed: %v", err)
	}
	r.GlobalScope().AddEventListener("ready", listener)

	if !r.OnHostEvent("ready", readyArguments()) {
		t.Error("preventDefault() not propagated to the host")
	}
	r.GlobalScope().RemoveEventListener("ready", nil)
}

func TestFrameCounterConsumedOnRead(t *testing.T) {
	r, _ := newTestRuntime(t)
	if err := r.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		r.OnTick()
	}

	duration, fps := r.GetAndResetFrameCounter()
	if duration < 0 {
		t.Errorf("duration = %f, want >= 0", duration)
	}
	if fps < 0 {
		t.Errorf("fps = %f, want >= 0", fps)
	}

	// The read consumed the counter; an immediate second read sees no
	// frames.
	_, fps = r.GetAndResetFrameCounter()
	if fps != 0 {
		t.Errorf("fps after consuming read = %f, want 0", fps)
	}
}

func TestStatisticsReflectQueues(t *testing.T) {
	r, _ := newTestRuntime(t)
	if err := r.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}

	r.Wait(1000)
	r.ExceptionHandler().Enqueue("a.js", 1, "queued")

	stats := r.Statistics()
	if stats.TimerQueueSize != 1 {
		t.Errorf("TimerQueueSize = %d, want 1", stats.TimerQueueSize)
	}
	if stats.ExceptionQueueSize != 1 {
		t.Errorf("ExceptionQueueSize = %d, want 1", stats.ExceptionQueueSize)
	}
	r.ExceptionHandler().FlushQueue()
}

func TestHighResolutionTimeMonotonic(t *testing.T) {
	r, _ := newTestRuntime(t)

	first := r.HighResolutionTime()
	second := r.HighResolutionTime()
	if second < first {
		t.Errorf("time went backwards: %f then %f", first, second)
	}
}

func TestLoadMainModuleFailureIsBootstrapAbort(t *testing.T) {
	r, delegate := newTestRuntime(t)
	if err := r.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}

	if err := r.LoadMainModule("missing.js"); err == nil {
		t.Fatal("loading a missing module succeeded")
	}
	if err := r.SpinUntilReady(); err == nil {
		t.Error("SpinUntilReady() did not surface the bootstrap failure")
	}

	r.ExceptionHandler().FlushQueue()
	if len(delegate.errors) == 0 {
		t.Error("module failure not queued as a script error")
	}
}
