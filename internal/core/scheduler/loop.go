// Package scheduler runs delayed tasks on a single control goroutine.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeusync/zeusrpc/internal/core/observability/log"
)

// Task is a handle to a posted action.
type Task struct {
	fn        func()
	timer     *time.Timer
	cancelled atomic.Bool
}

// Cancelled reports whether Cancel was called on the task.
func (t *Task) Cancelled() bool {
	return t.cancelled.Load()
}

// Loop executes posted tasks one at a time, in the order they become due.
type Loop struct {
	queue    chan *Task
	done     chan struct{}
	stopOnce sync.Once
	logger   log.Log
}

func New(queueSize int, logger log.Log) *Loop {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = log.Provide()
	}
	return &Loop{
		queue:  make(chan *Task, queueSize),
		done:   make(chan struct{}),
		logger: logger.With(log.String("component", "scheduler")),
	}
}

// Run executes tasks until ctx is done or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug("Control loop started")
	defer l.logger.Debug("Control loop stopped")

	for {
		select {
		case t := <-l.queue:
			if !t.cancelled.Load() {
				l.execute(t)
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		}
	}
}

func (l *Loop) execute(t *Task) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Task panicked", log.String("panic", fmt.Sprint(r)))
		}
	}()
	t.fn()
}

// Post queues fn for immediate execution on the loop.
func (l *Loop) Post(fn func()) *Task {
	t := &Task{fn: fn}
	go l.enqueue(t)
	return t
}

// PostDelayed queues fn for execution on the loop after d.
func (l *Loop) PostDelayed(d time.Duration, fn func()) *Task {
	t := &Task{fn: fn}
	t.timer = time.AfterFunc(d, func() { l.enqueue(t) })
	return t
}

// Cancel prevents t from running if it has not started yet. Nil is ignored.
func (l *Loop) Cancel(t *Task) {
	if t == nil {
		return
	}
	t.cancelled.Store(true)
	if t.timer != nil {
		t.timer.Stop()
	}
}

// Stop terminates Run. Tasks that become due afterwards are dropped.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

func (l *Loop) enqueue(t *Task) {
	if t.cancelled.Load() {
		return
	}
	select {
	case l.queue <- t:
	case <-l.done:
	}
}
