// Package task provides a trackable handle for background work.
package task

import (
	"context"
	"sync"
)

// Task is a handle to work running in its own goroutine. Callers can
// wait on it deterministically instead of relying on fire-and-forget.
type Task struct {
	done chan struct{}
	once sync.Once
	err  error
}

// Go starts fn in a new goroutine and returns its handle.
func Go(fn func() error) *Task {
	t := &Task{done: make(chan struct{})}
	go func() {
		defer t.finish()
		t.err = fn()
	}()
	return t
}

// Completed returns a task that has already finished with err.
func Completed(err error) *Task {
	t := &Task{done: make(chan struct{}), err: err}
	t.finish()
	return t
}

func (t *Task) finish() {
	t.once.Do(func() { close(t.done) })
}

// Done is closed once the task has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx is cancelled.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the task's error. It is only meaningful after Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}
