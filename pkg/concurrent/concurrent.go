// Package concurrent provides the bounded worker pool that runs local request
// handlers away from transport goroutines.
package concurrent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

var (
	ErrPoolFull    = errors.New("worker pool queue is full")
	ErrPoolClosed  = errors.New("worker pool is closed")
	ErrPoolStarted = errors.New("worker pool already started")
)

// Executor runs submitted tasks asynchronously.
type Executor interface {
	Submit(task func()) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(task func()) error

func (f ExecutorFunc) Submit(task func()) error {
	return f(task)
}

// Pool is a fixed set of workers draining a bounded task queue. Submit never
// blocks: a full queue is reported as ErrPoolFull.
type Pool struct {
	size  int
	tasks chan func()

	mu      sync.RWMutex
	closed  bool
	started atomic.Bool
	group   *errgroup.Group
	cancel  context.CancelFunc

	panics atomic.Uint64
}

func NewPool(size, queueSize int) *Pool {
	if size <= 0 {
		size = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		size:  size,
		tasks: make(chan func(), queueSize),
	}
}

// Start launches the workers. They exit when ctx is done or Stop is called.
func (p *Pool) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrPoolStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)
	p.group = group
	p.cancel = cancel

	for i := 0; i < p.size; i++ {
		group.Go(func() error {
			return p.work(ctx)
		})
	}
	return nil
}

func (p *Pool) work(ctx context.Context) error {
	for {
		select {
		case task, ok := <-p.tasks:
			if !ok {
				return nil
			}
			p.run(task)
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
		}
	}()
	task()
}

func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return fmt.Errorf("%w (capacity %d)", ErrPoolFull, cap(p.tasks))
	}
}

// Stop rejects new tasks, lets workers drain what is queued and waits for
// them to exit.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	if !p.started.Load() {
		return nil
	}
	err := p.group.Wait()
	p.cancel()
	return err
}

// Panics counts tasks that panicked.
func (p *Pool) Panics() uint64 {
	return p.panics.Load()
}
