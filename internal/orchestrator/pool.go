package orchestrator

import (
	"context"
	"sync"
)

// Pool bounds concurrent task executions. The dispatch queue is logically
// unbounded (callers submit as many tasks as they like); at most size
// submissions run at once. Pool size is the sum of agent capacities.
type Pool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewPool creates a Pool running at most size functions concurrently.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Go runs fn on a pool slot, blocking until a slot frees or ctx is
// cancelled. Returns false if the context was cancelled before dispatch.
func (p *Pool) Go(ctx context.Context, fn func()) bool {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return false
	}

	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()
		fn()
	}()
	return true
}

// Wait blocks until every dispatched function has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
