package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/multimind-ai/multimind/internal/logger"
)

type task struct {
	name string
	fn   func(ctx context.Context) error
}

// Executor runs fire-and-forget background work on a fixed worker pool.
// Submit never blocks the caller; failures and panics land in the
// supervising logger, never with the submitter.
type Executor struct {
	jobs    chan task
	wg      sync.WaitGroup
	log     *logger.Logger
	timeout time.Duration

	closeOnce sync.Once
}

func NewExecutor(workers, buffer int, timeout time.Duration, log *logger.Logger) *Executor {
	if workers <= 0 {
		workers = 2
	}
	if buffer <= 0 {
		buffer = workers * 8
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	e := &Executor{
		jobs:    make(chan task, buffer),
		log:     log,
		timeout: timeout,
	}
	e.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go e.worker()
	}
	return e
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for t := range e.jobs {
		e.runOne(t)
	}
}

func (e *Executor) runOne(t task) {
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Error("background task panic", "task", t.name, "panic", rec)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	if err := t.fn(ctx); err != nil {
		e.log.Error("background task failed", "task", t.name, "err", err)
	}
}

// Submit enqueues a task. When the buffer is full the task is dropped with
// an error log rather than stalling the caller.
func (e *Executor) Submit(name string, fn func(ctx context.Context) error) {
	select {
	case e.jobs <- task{name: name, fn: fn}:
	default:
		e.log.Error("task queue full, dropping task", "task", name)
	}
}

// Close stops intake and waits for in-flight tasks to finish.
func (e *Executor) Close() {
	e.closeOnce.Do(func() {
		close(e.jobs)
	})
	e.wg.Wait()
}
