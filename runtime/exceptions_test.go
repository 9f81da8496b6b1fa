package runtime

import "testing"

type recordingDelegate struct {
	output []string
	errors []ExceptionRecord
	total  int
	failed int
	done   bool
}

func (d *recordingDelegate) OnScriptOutput(message string) {
	d.output = append(d.output, message)
}

func (d *recordingDelegate) OnScriptError(source string, line int, message string) {
	d.errors = append(d.errors, ExceptionRecord{Source: source, Line: line, Message: message})
}

func (d *recordingDelegate) OnScriptTestsDone(total, failed int) {
	d.total = total
	d.failed = failed
	d.done = true
}

func TestExceptionsQueueUntilFlushed(t *testing.T) {
	delegate := &recordingDelegate{}
	h := NewExceptionHandler(delegate)

	h.Enqueue("first.js", 10, "one")
	h.Enqueue("second.js", 20, "two")

	if len(delegate.errors) != 0 {
		t.Fatalf("delegate received %d errors before flush, want 0", len(delegate.errors))
	}
	if !h.HasQueued() || h.Size() != 2 {
		t.Fatalf("HasQueued()=%v Size()=%d, want true/2", h.HasQueued(), h.Size())
	}

	h.FlushQueue()

	if len(delegate.errors) != 2 {
		t.Fatalf("delegate received %d errors, want 2", len(delegate.errors))
	}
	if delegate.errors[0].Source != "first.js" || delegate.errors[1].Source != "second.js" {
		t.Errorf("flush order = %q, %q; want first.js, second.js",
			delegate.errors[0].Source, delegate.errors[1].Source)
	}
	if h.HasQueued() {
		t.Error("queue not cleared after flush")
	}
}

func TestExceptionsFlushWithoutDelegate(t *testing.T) {
	h := NewExceptionHandler(nil)
	h.Enqueue("a.js", 1, "lost")
	h.FlushQueue()

	if h.Size() != 0 {
		t.Errorf("Size() = %d after flush, want 0", h.Size())
	}
}
