package worker

import (
	"context"
	"sync"
)

// Pool bounds the number of concurrently running pipeline executions.
// Submit never blocks the caller; the spawned goroutine waits for a slot
// or gives up when the context is canceled.
type Pool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewPool creates a Pool allowing up to maxWorkers concurrent runs.
func NewPool(maxWorkers int) *Pool {
	return &Pool{
		sem: make(chan struct{}, maxWorkers),
	}
}

// Submit schedules run on the pool.
func (p *Pool) Submit(ctx context.Context, run func(context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
			run(ctx)
		case <-ctx.Done():
		}
	}()
}

// Wait blocks until all submitted runs have finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}
