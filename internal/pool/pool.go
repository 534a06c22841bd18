// Package pool implements the WorkerPool capability (spec component I): a
// bounded priority queue of capacity QUEUE_MAX, drained by a dispatcher
// that bounds concurrent workflow execution to N_WORKERS via a counting
// semaphore, in the same acquire/dispatch/release shape the scheduler this
// module is modeled on uses.
package pool

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reinvent-insight/orchestrator/internal/domain"
	orcherrors "github.com/reinvent-insight/orchestrator/internal/errors"
	"github.com/reinvent-insight/orchestrator/internal/task"
)

// slots is a counting semaphore bounding concurrent task execution to
// N_WORKERS, in the same acquire/release shape the scheduler this package
// is modeled on uses.
type slots chan struct{}

func newSlots(n int) slots { return make(slots, n) }
func (s slots) acquire()   { s <- struct{}{} }
func (s slots) release()   { <-s }

// Handler runs one task to completion (or failure); the dispatcher never
// interprets its return value itself beyond logging, since every handler
// is responsible for calling task.Manager.SendResult/SetError before
// returning (spec §7: "never leaves a task stuck in processing").
type Handler func(ctx context.Context, t domain.Task)

// Stats mirrors the spec §4.I stats() operation.
type Stats struct {
	Queued     int
	Processing int
	Completed  int64
	Failed     int64
	Capacity   int
	Workers    int
}

// ListEntry is one row of the spec §4.I list() operation.
type ListEntry struct {
	Task  domain.Task
	State domain.Status
}

// WorkerPool is the bounded priority queue plus fixed worker budget.
type WorkerPool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    priorityQueue
	capacity int
	seq      uint64

	processing map[string]domain.Task

	manager  *task.Manager
	handlers map[domain.TaskKind]Handler

	taskTimeout time.Duration
	slots       slots
	workers     int

	completed atomic.Int64
	failed    atomic.Int64

	stopped atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger *slog.Logger
}

// Options configures a new WorkerPool.
type Options struct {
	Capacity    int
	NWorkers    int
	TaskTimeout time.Duration
	Manager     *task.Manager
	Logger      *slog.Logger
}

// New builds a WorkerPool. Call Start to begin dispatching; Register adds
// handlers for each domain.TaskKind the pool must be able to run before
// Start is called.
func New(opt Options) *WorkerPool {
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &WorkerPool{
		capacity:    opt.Capacity,
		processing:  make(map[string]domain.Task),
		manager:     opt.Manager,
		handlers:    make(map[domain.TaskKind]Handler),
		taskTimeout: opt.TaskTimeout,
		slots:       newSlots(opt.NWorkers),
		workers:     opt.NWorkers,
		logger:      logger,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Register wires a Handler for a task kind (spec §4.I dispatch table).
func (p *WorkerPool) Register(kind domain.TaskKind, h Handler) {
	p.handlers[kind] = h
}

// ErrQueueFull is returned by Submit when the queue is at capacity.
var ErrQueueFull = orcherrors.New(orcherrors.KindQueueFull, "task queue is full")

// Submit enqueues t by priority. The caller must have already created the
// task's state via task.Manager.Create before calling this (spec §4.I).
func (p *WorkerPool) Submit(t domain.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) >= p.capacity {
		return ErrQueueFull
	}
	p.seq++
	t.EnqueueSeq = p.seq
	heap.Push(&p.queue, t)
	p.cond.Signal()
	return nil
}

// InProcessingOrQueue reports whether a task with the given source
// identifier and mode is already queued or processing, for the dedup check
// spec §3 invariant 6 requires: "at most one in-flight task exists per
// (source_identifier, mode) pair unless the submitter passes force." A
// video resubmitted under a different mode is a distinct in-flight
// submission, not a duplicate of the one already running.
func (p *WorkerPool) InProcessingOrQueue(sourceIdentifier string, mode domain.Mode) (domain.Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.processing {
		if t.SourceIdentifier == sourceIdentifier && t.Mode == mode {
			return t, true
		}
	}
	for _, t := range p.queue {
		if t.SourceIdentifier == sourceIdentifier && t.Mode == mode {
			return t, true
		}
	}
	return domain.Task{}, false
}

// Stats implements spec §4.I stats().
func (p *WorkerPool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Queued:     len(p.queue),
		Processing: len(p.processing),
		Completed:  p.completed.Load(),
		Failed:     p.failed.Load(),
		Capacity:   p.capacity,
		Workers:    p.workers,
	}
}

// List implements spec §4.I list().
func (p *WorkerPool) List() []ListEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	entries := make([]ListEntry, 0, len(p.queue)+len(p.processing))
	for _, t := range p.queue {
		entries = append(entries, ListEntry{Task: t, State: domain.StatusQueued})
	}
	for _, t := range p.processing {
		entries = append(entries, ListEntry{Task: t, State: domain.StatusProcessing})
	}
	return entries
}

// Start launches the dispatcher goroutine. It returns immediately; call
// Stop to drain and shut down.
func (p *WorkerPool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Add(1)
	go p.dispatch(ctx)
}

// Stop signals the dispatcher to stop pulling new work and cancels the
// context of every in-flight task. A task whose handler has not already
// returned is then marked failed with a timeout error. Stop waits for the
// dispatcher and each task's run to return, but not for a handler goroutine
// that keeps running after its context is cancelled.
func (p *WorkerPool) Stop() {
	p.stopped.Store(true)
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *WorkerPool) dequeue(ctx context.Context) (domain.Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.stopped.Load() && ctx.Err() == nil {
		p.cond.Wait()
	}
	if p.stopped.Load() || ctx.Err() != nil {
		return domain.Task{}, false
	}
	t := heap.Pop(&p.queue).(domain.Task)
	p.processing[t.TaskID] = t
	return t, true
}

// dispatch mirrors the scheduler.Scheduler.run acquire/release loop this
// package is grounded on: block for a slot, dequeue, then run the task on
// its own goroutine so a slow task never blocks the dispatcher itself.
func (p *WorkerPool) dispatch(ctx context.Context) {
	defer p.wg.Done()
	for {
		p.slots.acquire()
		if p.stopped.Load() || ctx.Err() != nil {
			p.slots.release()
			return
		}
		t, ok := p.dequeue(ctx)
		if !ok {
			p.slots.release()
			return
		}
		p.wg.Add(1)
		go func(t domain.Task) {
			defer p.wg.Done()
			defer p.slots.release()
			defer p.finish(t.TaskID)
			p.run(ctx, t)
		}(t)
	}
}

func (p *WorkerPool) finish(taskID string) {
	p.mu.Lock()
	delete(p.processing, taskID)
	p.mu.Unlock()
}

func (p *WorkerPool) run(ctx context.Context, t domain.Task) {
	handler, ok := p.handlers[t.Kind]
	if !ok {
		p.failed.Add(1)
		_ = p.manager.SetError(t.TaskID, orcherrors.New(orcherrors.KindConfigError,
			fmt.Sprintf("no handler registered for task kind %q", t.Kind)))
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, p.taskTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler(taskCtx, t)
	}()

	select {
	case <-done:
		// The handler returned on its own; consult the task's terminal
		// status rather than inferring success from which select branch
		// fired, since a handler can call SetError for a business reason
		// (e.g. KindChapterCountExceeded, retries exhausted) without ever
		// hitting the timeout.
		if state, ok := p.manager.Snapshot(t.TaskID); ok && state.Status == domain.StatusFailed {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
	case <-taskCtx.Done():
		p.failed.Add(1)
		p.logger.Warn("task timed out", slog.String("task_id", t.TaskID))
		_ = p.manager.SetError(t.TaskID, orcherrors.New(orcherrors.KindTimeout,
			"task exceeded its time budget"))
		// The handler goroutine may still be running; it owns the
		// TaskState and must stop touching it once its own ctx is done.
		// We do not wait for it here so a wedged handler cannot stall
		// the pool's shutdown.
	}
}
