package runner

import "sync"

// Pool runs submitted functions on their own goroutines, at most size at a
// time. Submission never blocks; waiting for a slot happens inside the
// goroutine.
type Pool struct {
	slots chan struct{}
	wg    sync.WaitGroup
}

// NewPool returns a pool of the given size; zero means 5.
func NewPool(size uint) *Pool {
	if size == 0 {
		size = 5
	}
	return &Pool{slots: make(chan struct{}, size)}
}

func (p *Pool) Go(fn func()) {
	p.wg.Go(func() {
		p.slots <- struct{}{}
		defer func() { <-p.slots }()
		fn()
	})
}

// Wait blocks until every submitted function has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
