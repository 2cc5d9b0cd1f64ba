package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

// ErrClosed is returned by Submit once the pool has been closed.
var ErrClosed = errors.New("worker pool closed")

// Task is one unit of work. It runs on a pool goroutine.
type Task func()

// Pool is a fixed-size worker pool with a bounded input queue.
type Pool struct {
	mu     sync.RWMutex
	closed bool
	tasks  chan Task
	wg     sync.WaitGroup
}

// New creates a worker pool. Size defaults to NumCPU when size<=0; a negative
// queue is treated as zero (hand-off only).
func New(size, queue int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	if queue < 0 {
		queue = 0
	}
	p := &Pool{tasks: make(chan Task, queue)}
	p.start(size)
	return p
}

func (p *Pool) start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for t := range p.tasks {
				t()
			}
		}()
	}
}

// Submit blocks until the task is queued or ctx is done.
func (p *Pool) Submit(ctx context.Context, t Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.tasks <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit enqueues the task only if a worker or queue slot is free. Returns false if dropped.
func (p *Pool) TrySubmit(t Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.tasks <- t:
		return true
	default:
		return false
	}
}

// Close stops the pool after draining queued work.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
