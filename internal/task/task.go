// Package task runs a cancellable operation in the background so an
// interactive caller stays responsive while a send or test is in progress.
package task

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/vitaminmoo/blebench/internal/config"
)

// Task is one background operation.
type Task struct {
	Name string

	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	running atomic.Bool
}

// Go starts fn on its own goroutine with a context derived from ctx.
// A panic inside fn is recovered and reported by Wait as an error.
func Go(ctx context.Context, name string, fn func(ctx context.Context) error) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{Name: name, cancel: cancel, done: make(chan struct{})}
	t.running.Store(true)

	go func() {
		defer close(t.done)
		defer t.running.Store(false)
		defer cancel()
		defer func() {
			if p := recover(); p != nil {
				config.Debugf("task %s panicked: %v\n%s", name, p, debug.Stack())
				t.err = fmt.Errorf("task %s: panic: %v", name, p)
			}
		}()
		t.err = fn(ctx)
	}()
	return t
}

// Cancel requests the task to stop. It does not wait.
func (t *Task) Cancel() { t.cancel() }

// Done is closed when the task has returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task returns and yields its error.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// Running reports whether fn has not yet returned.
func (t *Task) Running() bool { return t.running.Load() }
