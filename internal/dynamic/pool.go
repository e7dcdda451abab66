package dynamic

import (
	"fmt"
	"sync"
)

// Pool is a bounded worker pool running branch bodies as independent
// parallel tasks. Both branches of a race execute as real concurrent units
// of work that may block on I/O, subprocess completion or network calls.
//
// Submit may block when all workers are busy and the queue is full; this
// cannot deadlock a race, because a branch cancelled while still queued is
// settled by the canceller without ever occupying a worker.
type Pool struct {
	work chan func()
	wg   sync.WaitGroup

	closeOnce sync.Once
}

// NewPool starts a pool with the given number of worker goroutines.
func NewPool(workers int) (*Pool, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("workers must be > 0")
	}

	p := &Pool{work: make(chan func(), workers)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for fn := range p.work {
				fn()
			}
		}()
	}
	return p, nil
}

// Submit queues fn for execution on a worker.
func (p *Pool) Submit(fn func()) {
	p.work <- fn
}

// Close stops accepting work and waits for all queued work to finish.
// Submitting after Close panics.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.work)
		p.wg.Wait()
	})
}
