package runtime

import (
	"container/heap"
)

// timerEntry pairs a wake time with the promise it resolves. seq breaks
// ties so that equal deadlines resolve in insertion order.
type timerEntry struct {
	due     int64 // milliseconds on the runtime's monotonic clock
	seq     uint64
	promise *Promise
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x interface{}) {
	*h = append(*h, x.(*timerEntry))
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return entry
}

// TimerQueue orders pending promises by wake time. It is driven once per
// tick and only ever touched from the tick thread.
type TimerQueue struct {
	entries timerHeap
	nextSeq uint64
}

// NewTimerQueue creates an empty queue.
func NewTimerQueue() *TimerQueue {
	return &TimerQueue{}
}

// Add schedules promise to resolve once the queue is ticked at or past due.
func (q *TimerQueue) Add(promise *Promise, due int64) {
	entry := &timerEntry{due: due, seq: q.nextSeq, promise: promise}
	q.nextSeq++
	heap.Push(&q.entries, entry)
}

// Tick resolves every entry whose wake time is at or before now, in
// ascending wake-time order, FIFO among equal deadlines. All due entries
// are processed in one pass so a slow tick never starves later ones;
// entries scheduled by continuations during the pass are picked up in the
// same pass when already due.
func (q *TimerQueue) Tick(now int64) int {
	resolved := 0
	for len(q.entries) > 0 && q.entries[0].due <= now {
		entry := heap.Pop(&q.entries).(*timerEntry)
		entry.promise.Resolve(nil)
		resolved++
	}
	return resolved
}

// Size returns the number of pending entries, for diagnostics.
func (q *TimerQueue) Size() int {
	return len(q.entries)
}
