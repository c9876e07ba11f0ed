package transfer

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pool is a fixed set of workers fed through a bounded queue. Submit blocks
// while the queue holds queueLimit tasks, which bounds memory regardless of
// input size.
type Pool struct {
	tasks     chan Task
	group     errgroup.Group
	workers   []*Worker
	logger    *zap.Logger
	closeOnce sync.Once
}

// NewPool starts workerCount workers. Tasks receive ctx.
func NewPool(ctx context.Context, workerCount, queueLimit int, logger *zap.Logger) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueLimit < 1 {
		queueLimit = 1
	}

	p := &Pool{
		tasks:  make(chan Task, queueLimit),
		logger: logger,
	}

	p.workers = make([]*Worker, workerCount)
	for i := 0; i < workerCount; i++ {
		w := NewWorker(i, logger)
		p.workers[i] = w
		p.group.Go(func() error {
			return w.Start(ctx, p.tasks)
		})
	}

	logger.Debug("Worker pool started",
		zap.Int("workers", workerCount),
		zap.Int("queueLimit", queueLimit))
	return p
}

// Submit enqueues task, blocking while the queue is full
func (p *Pool) Submit(ctx context.Context, task Task) error {
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Queued returns the number of tasks waiting for a worker
func (p *Pool) Queued() int {
	return len(p.tasks)
}

// Wait closes the queue, waits for every submitted task to finish and
// returns the first task error. Must be called exactly once after the last Submit.
func (p *Pool) Wait() error {
	p.closeOnce.Do(func() { close(p.tasks) })
	err := p.group.Wait()

	processed := 0
	for _, w := range p.workers {
		processed += w.Processed()
	}
	p.logger.Debug("Worker pool drained", zap.Int("tasks", processed))
	return err
}
