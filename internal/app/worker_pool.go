package app

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

var (
	ErrQueueFull  = errors.New("job queue is full")
	ErrPoolClosed = errors.New("worker pool is closed")
)

// Task runs on a pool worker. Its context is cancelled when the pool is
// shut down before the task finishes.
type Task func(ctx context.Context)

type WorkerPool struct {
	mu     sync.Mutex
	closed bool
	queue  chan Task
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		queue:  make(chan Task, queueSize),
		group:  &errgroup.Group{},
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		p.group.Go(func() error {
			for task := range p.queue {
				task(p.ctx)
			}
			return nil
		})
	}
	return p
}

// Submit enqueues task without blocking.
func (p *WorkerPool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops intake and waits for queued and running tasks. If ctx ends
// first, task contexts are cancelled and Shutdown still waits for the
// workers to return.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- p.group.Wait() }()

	select {
	case err := <-done:
		p.cancel()
		return err
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *WorkerPool) Close() error {
	return p.Shutdown(context.Background())
}
