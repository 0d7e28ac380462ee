package utils

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrQueueFull is returned by Submit when the queue buffer is exhausted.
var ErrQueueFull = errors.New("task queue is full")

// ErrQueueClosed is returned by Submit after Close.
var ErrQueueClosed = errors.New("task queue is closed")

type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// TaskQueue runs fire-and-forget side effects on a fixed set of workers
// supervised by a BackgroundProcessManager. A task error or panic is logged
// and never reaches the submitter.
type TaskQueue struct {
	name    string
	tasks   chan Task
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

type TaskQueueStats struct {
	Processed int64
	Failed    int64
	Dropped   int64
	Pending   int
}

// NewTaskQueue starts workers goroutines under bpm. Each task gets its own
// timeout derived from the worker context.
func NewTaskQueue(bpm *BackgroundProcessManager, name string, workers, size int, timeout time.Duration) *TaskQueue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 1
	}
	q := &TaskQueue{
		name:    name,
		tasks:   make(chan Task, size),
		timeout: timeout,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		bpm.StartProcess(fmt.Sprintf("%s-worker-%d", name, i), "side-effect worker for "+name, q.work)
	}
	return q
}

// Submit enqueues a task without blocking.
func (q *TaskQueue) Submit(task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- task:
		return nil
	default:
		q.dropped.Add(1)
		slog.Warn("Dropping side-effect task, queue full",
			slog.String("type", "sys"),
			slog.String("queue", q.name),
			slog.String("task", task.Name))
		return ErrQueueFull
	}
}

// Close stops accepting tasks and waits for the queued ones to finish or ctx to end.
func (q *TaskQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *TaskQueue) Stats() TaskQueueStats {
	return TaskQueueStats{
		Processed: q.processed.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
		Pending:   len(q.tasks),
	}
}

func (q *TaskQueue) work(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case task, ok := <-q.tasks:
			if !ok {
				return
			}
			q.run(ctx, task)
		case <-ctx.Done():
			return
		}
	}
}

func (q *TaskQueue) run(ctx context.Context, task Task) {
	taskCtx := ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		// Queued tasks still drain during shutdown.
		taskCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), q.timeout)
		defer cancel()
	}

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		return task.Run(taskCtx)
	}()

	q.processed.Add(1)
	if err != nil {
		q.failed.Add(1)
		slog.Warn("Side-effect task failed",
			slog.String("type", "sys"),
			slog.String("queue", q.name),
			slog.String("task", task.Name),
			slog.Duration("took", time.Since(start)),
			slog.String("error", err.Error()))
	}
}
