package transfer

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// Task is one unit of work executed by a pool worker
type Task func(ctx context.Context) error

// Worker executes tasks from a shared queue until it is closed
type Worker struct {
	ID        int
	logger    *zap.Logger
	processed int
	mu        sync.RWMutex
}

// NewWorker creates a new worker
func NewWorker(id int, logger *zap.Logger) *Worker {
	return &Worker{
		ID:     id,
		logger: logger.With(zap.Int("workerID", id)),
	}
}

// Processed returns the number of tasks the worker has finished
func (w *Worker) Processed() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.processed
}

// Start runs tasks until the queue is closed and drained. A failing task
// does not stop the worker; the first error it saw is returned at the end.
func (w *Worker) Start(ctx context.Context, tasks <-chan Task) error {
	w.logger.Debug("Worker started")

	var firstErr error
	for task := range tasks {
		if err := w.runTask(ctx, task); err != nil {
			w.logger.Error("Task failed", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}

		w.mu.Lock()
		w.processed++
		w.mu.Unlock()
	}

	w.logger.Debug("Worker stopping due to closed task queue", zap.Int("processed", w.Processed()))
	return firstErr
}

// runTask converts a panic into an error so one bad task cannot take down the pool
func (w *Worker) runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Task panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("worker %d: task panicked: %v", w.ID, r)
		}
	}()
	return task(ctx)
}
