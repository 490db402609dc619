// Package control serialises every state transition onto one goroutine.
// Platform callbacks, timers and IPC handlers hand work to the loop instead
// of touching the orchestrator directly.
package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// DefaultQueueSize bounds the number of pending tasks.
const DefaultQueueSize = 64

var (
	ErrQueueFull = errors.New("control queue full")
	ErrStopped   = errors.New("control loop stopped")
)

type task struct {
	name   string
	fn     func() error
	result chan error
}

// Loop runs posted tasks one at a time, in order.
type Loop struct {
	tasks  chan task
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// NewLoop creates a loop with a queue of size tasks. Run must be called to
// start processing.
func NewLoop(size int, logger *slog.Logger) *Loop {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loop{
		tasks:  make(chan task, size),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Run processes tasks until ctx is cancelled. Tasks still queued at that
// point are dropped.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-l.tasks:
			err := l.exec(t)
			if t.result != nil {
				t.result <- err
			}
		}
	}
}

func (l *Loop) exec(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("control task panic recovered", "task", t.name, "error", r)
			err = fmt.Errorf("task %s panicked: %v", t.name, r)
		}
	}()
	return t.fn()
}

// Post queues fn without waiting. It fails when the queue is full or the
// loop has stopped; callers drop the event in that case.
func (l *Loop) Post(name string, fn func()) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	t := task{name: name, fn: func() error { fn(); return nil }}
	select {
	case l.tasks <- t:
		return nil
	default:
		l.logger.Warn("control queue full, dropping task", "task", name)
		return ErrQueueFull
	}
}

// Do queues fn and waits for its result.
func (l *Loop) Do(ctx context.Context, name string, fn func() error) error {
	t := task{name: name, fn: fn, result: make(chan error, 1)}
	select {
	case l.tasks <- t:
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-t.result:
		return err
	case <-l.done:
		select {
		case err := <-t.result:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
