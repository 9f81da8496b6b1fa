package runtime

import (
	"sync"

	"github.com/google/uuid"
)

// executorJob is one unit of off-thread work. The work function runs on a
// worker goroutine and returns the completion to apply on the tick thread;
// a nil completion means the job has nothing to hand back.
type executorJob struct {
	id   string
	name string
	work func() func()
}

// Executor runs host-side work (process spawning, database queries) on its
// own goroutines while keeping all script-visible effects on the tick
// thread: completions are queued thread-safely and applied by
// RunOneQuantum, which the runtime calls exactly once per tick. This is
// the only place true concurrency appears below the script boundary.
type Executor struct {
	jobs chan executorJob
	quit chan struct{}
	wg   sync.WaitGroup

	mu          sync.Mutex
	completions []func()
	stopped     bool
}

// NewExecutor starts an executor with the given number of workers.
func NewExecutor(workers int) *Executor {
	if workers < 1 {
		workers = 1
	}
	e := &Executor{
		jobs: make(chan executorJob, 64),
		quit: make(chan struct{}),
	}
	e.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go e.worker()
	}
	return e
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for {
		select {
		case job := <-e.jobs:
			e.run(job)
		case <-e.quit:
			return
		}
	}
}

func (e *Executor) run(job executorJob) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("job %s (%s) panicked: %v", job.name, job.id, r)
		}
	}()
	completion := job.work()
	if completion == nil {
		return
	}
	e.mu.Lock()
	if !e.stopped {
		e.completions = append(e.completions, completion)
	}
	e.mu.Unlock()
}

// Post submits work for off-thread execution. The completion it returns is
// applied on the tick thread during a later quantum. Posting to a stopped
// executor drops the job with a warning.
func (e *Executor) Post(name string, work func() func()) {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		log.Warningf("dropping job %s: executor is stopped", name)
		return
	}

	job := executorJob{id: uuid.New().String(), name: name, work: work}
	log.Debugf("posting job %s (%s)", job.name, job.id)
	select {
	case e.jobs <- job:
	case <-e.quit:
		log.Warningf("dropping job %s: executor stopped while posting", name)
	}
}

// RunOneQuantum applies the completions queued at the moment of the call
// and returns how many ran. It never blocks waiting for more work;
// completions arriving while the quantum runs wait for the next tick.
func (e *Executor) RunOneQuantum() int {
	e.mu.Lock()
	completions := e.completions
	e.completions = nil
	e.mu.Unlock()

	for _, completion := range completions {
		completion()
	}
	return len(completions)
}

// PendingCompletions returns the number of queued completions.
func (e *Executor) PendingCompletions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.completions)
}

// Stop shuts the workers down and discards any unapplied completions.
// Jobs still waiting in the queue never run.
func (e *Executor) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()

	close(e.quit)
	e.wg.Wait()

	e.mu.Lock()
	dropped := len(e.completions)
	e.completions = nil
	e.mu.Unlock()
	if dropped > 0 {
		log.Debugf("dropped %d unapplied completions at executor stop", dropped)
	}
}
