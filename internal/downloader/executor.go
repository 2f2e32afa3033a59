package downloader

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ErrExecutorClosed is returned by Submit after Shutdown.
var ErrExecutorClosed = errors.New("executor is shut down")

// Task is a unit of work run on the executor.
type Task func(ctx context.Context) error

// Executor is a long-lived fixed pool of worker goroutines draining an
// unbounded FIFO of tasks. Download jobs and catalog refreshes share it.
type Executor struct {
	ctx     context.Context
	cancel  context.CancelFunc
	workers int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Task
	closed bool

	wg sync.WaitGroup
}

// NewExecutor starts workers goroutines. Cancelling ctx (or calling Stop)
// cancels the context handed to running and queued tasks.
func NewExecutor(ctx context.Context, workers int) *Executor {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	e := &Executor{ctx: ctx, cancel: cancel, workers: workers}
	e.cond = sync.NewCond(&e.mu)

	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker(i + 1)
	}

	log.Debugf("[Executor] Started %d workers", workers)
	return e
}

// Workers returns the pool size.
func (e *Executor) Workers() int { return e.workers }

// Context returns the context passed to tasks.
func (e *Executor) Context() context.Context { return e.ctx }

// Submit queues task.
func (e *Executor) Submit(task Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrExecutorClosed
	}
	e.queue = append(e.queue, task)
	e.cond.Signal()
	return nil
}

// Shutdown stops accepting tasks, runs what is queued and waits for the
// workers to exit.
func (e *Executor) Shutdown() {
	e.mu.Lock()
	e.closed = true
	e.cond.Broadcast()
	e.mu.Unlock()
	e.wg.Wait()
	e.cancel()
}

// Stop cancels the executor context and then shuts down. Queued tasks still
// run, but see a cancelled context.
func (e *Executor) Stop() {
	e.cancel()
	e.Shutdown()
}

func (e *Executor) next() (Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.queue) == 0 {
		if e.closed {
			return nil, false
		}
		e.cond.Wait()
	}
	task := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	return task, true
}

func (e *Executor) worker(id int) {
	defer e.wg.Done()
	for {
		task, ok := e.next()
		if !ok {
			log.Debugf("[Executor] Worker %d exiting", id)
			return
		}
		if err := e.run(task); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Errorf("[Executor] Worker %d task failed", id)
		}
	}
}

func (e *Executor) run(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return task(e.ctx)
}
