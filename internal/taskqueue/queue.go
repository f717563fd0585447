package taskqueue

import (
	"context"
	"log"
	"sync"

	"messaging-gateway/internal/observability"
)

// Func is the body of a deferred unit of work. Arguments are captured by the
// closure at enqueue time.
type Func func(ctx context.Context) error

type task struct {
	name string
	fn   Func
}

// Queue is an unbounded in-process FIFO queue drained by a single worker.
// Enqueue never blocks; tasks run exactly once in enqueue order, failures are
// logged and never retried. Bounding the queue and rejecting or parking
// producers when full is the production extension point.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   []task
	stopped bool
	done    chan struct{}
}

// New constructs a stopped queue; call Start to launch the worker.
func New() *Queue {
	q := &Queue{done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start launches the worker loop. It must be called exactly once.
func (q *Queue) Start() {
	go q.run()
	log.Println("task queue worker started")
}

// Stop halts the worker after the task in flight, if any, has finished.
// Tasks still pending are dropped.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.cond.Signal()
	q.mu.Unlock()
	<-q.done
}

// Enqueue adds a task to the queue and returns immediately. Tasks enqueued
// after Stop are dropped.
func (q *Queue) Enqueue(name string, fn Func) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		log.Printf("task queue stopped, dropping task %s", name)
		return
	}
	q.tasks = append(q.tasks, task{name: name, fn: fn})
	observability.SetTaskQueueDepth(len(q.tasks))
	q.cond.Signal()
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.stopped {
			q.cond.Wait()
		}
		if q.stopped {
			q.mu.Unlock()
			return
		}
		t := q.tasks[0]
		q.tasks = q.tasks[1:]
		observability.SetTaskQueueDepth(len(q.tasks))
		q.mu.Unlock()

		q.execute(t)
	}
}

func (q *Queue) execute(t task) {
	defer func() {
		if r := recover(); r != nil {
			observability.IncTaskExecuted(t.name, "panic")
			log.Printf("task %s panicked: %v", t.name, r)
		}
	}()

	if err := t.fn(context.Background()); err != nil {
		observability.IncTaskExecuted(t.name, "error")
		log.Printf("task %s failed: %v", t.name, err)
		return
	}
	observability.IncTaskExecuted(t.name, "ok")
}
