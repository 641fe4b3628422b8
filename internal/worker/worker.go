package worker

import (
	"context"
	"fmt"
	"sync"
)

// Pool runs one goroutine per key, so jobs for the same key are handled in
// arrival order while jobs for different keys interleave. A shared semaphore
// bounds how many handlers run at once across all keys.
type Pool[K comparable, J any] struct {
	ctx       context.Context
	sem       chan struct{}
	queueSize int
	handle    func(context.Context, K, J)

	mu      sync.Mutex
	workers map[K]chan J
}

type PoolOptions[K comparable, J any] struct {
	Ctx            context.Context
	MaxConcurrency int
	QueueSize      int
	Handle         func(context.Context, K, J)
}

func NewPool[K comparable, J any](opts PoolOptions[K, J]) (*Pool[K, J], error) {
	if opts.Handle == nil {
		return nil, fmt.Errorf("handle func is required")
	}
	ctx := opts.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	maxConc := opts.MaxConcurrency
	if maxConc <= 0 {
		maxConc = 8
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Pool[K, J]{
		ctx:       ctx,
		sem:       make(chan struct{}, maxConc),
		queueSize: queueSize,
		handle:    opts.Handle,
		workers:   make(map[K]chan J),
	}, nil
}

// Enqueue queues a job on the key's worker, starting the worker on first use.
// Blocks while the key's queue is full; fails once either context is done.
func (p *Pool[K, J]) Enqueue(ctx context.Context, key K, job J) error {
	if ctx == nil {
		ctx = p.ctx
	}
	jobs := p.workerChan(key)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return p.ctx.Err()
	case jobs <- job:
		return nil
	}
}

func (p *Pool[K, J]) workerChan(key K) chan J {
	p.mu.Lock()
	defer p.mu.Unlock()
	jobs, ok := p.workers[key]
	if ok {
		return jobs
	}
	jobs = make(chan J, p.queueSize)
	p.workers[key] = jobs

	go func() {
		for {
			select {
			case <-p.ctx.Done():
				return
			case job, ok := <-jobs:
				if !ok {
					return
				}
				select {
				case p.sem <- struct{}{}:
				case <-p.ctx.Done():
					return
				}
				func() {
					defer func() { <-p.sem }()
					p.handle(p.ctx, key, job)
				}()
			}
		}
	}()

	return jobs
}
