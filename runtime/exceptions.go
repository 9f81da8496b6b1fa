package runtime

// ExceptionRecord is one queued diagnostic: where it happened and what.
type ExceptionRecord struct {
	Source  string
	Line    int
	Message string
}

// ExceptionHandler queues script diagnostics for a later, explicit flush.
// Flushing is pull-based so the script side can batch its error reporting;
// nothing is ever delivered implicitly on enqueue.
type ExceptionHandler struct {
	delegate Delegate
	queue    []ExceptionRecord
}

// NewExceptionHandler creates an empty sink reporting to delegate on flush.
func NewExceptionHandler(delegate Delegate) *ExceptionHandler {
	return &ExceptionHandler{delegate: delegate}
}

// Enqueue appends a record. The queue is unbounded until flushed.
func (h *ExceptionHandler) Enqueue(source string, line int, message string) {
	h.queue = append(h.queue, ExceptionRecord{Source: source, Line: line, Message: message})
}

// HasQueued reports whether any records are waiting.
func (h *ExceptionHandler) HasQueued() bool {
	return len(h.queue) > 0
}

// Size returns the number of queued records, for diagnostics.
func (h *ExceptionHandler) Size() int {
	return len(h.queue)
}

// FlushQueue delivers all queued records to the delegate in FIFO order,
// then clears the queue.
func (h *ExceptionHandler) FlushQueue() {
	queue := h.queue
	h.queue = nil
	if h.delegate == nil {
		return
	}
	for _, record := range queue {
		h.delegate.OnScriptError(record.Source, record.Line, record.Message)
	}
}
