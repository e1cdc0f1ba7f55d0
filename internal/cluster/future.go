package cluster

import (
	"context"
	"errors"
	"sync"
)

// ErrTaskCancelled is the completion error of a task whose cancel
// flag was honored before the transfer started.
var ErrTaskCancelled = errors.New("task cancelled")

// ErrAlreadyCancelled is returned by Cancel when the task's cancel
// flag was already set. Cancellation races are expected during
// failure cleanup and are not fatal.
var ErrAlreadyCancelled = errors.New("task already cancelled")

// Future is the client-side handle of one submitted task. It is
// completed exactly once, by the goroutine watching the task's reply
// queue.
type Future struct {
	task Task

	once sync.Once
	done chan struct{}

	mu  sync.Mutex
	key string
	err error
}

// NewFuture creates the pending handle for a task. Client
// implementations complete it exactly once when the task's result
// arrives.
func NewFuture(task Task) *Future {
	return &Future{task: task, done: make(chan struct{})}
}

// Task returns the submitted task spec.
func (f *Future) Task() Task { return f.task }

// Done is closed when the task has completed, successfully or not.
func (f *Future) Done() <-chan struct{} { return f.done }

// Finished reports completion without blocking.
func (f *Future) Finished() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Key returns the destination key of a successful task. Only valid
// after Done.
func (f *Future) Key() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.key
}

// Err returns the task's failure, or nil. Only valid after Done.
func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Complete records the task's outcome and unblocks Done. Later calls
// are no-ops.
func (f *Future) Complete(key string, err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.key = key
		f.err = err
		f.mu.Unlock()
		close(f.done)
	})
}

// AsCompleted merges the completion signals of the given futures into
// one channel that yields them in arrival order, not submission
// order. The channel closes once every future has been delivered or
// the context ends.
func AsCompleted(ctx context.Context, futures []*Future) <-chan *Future {
	out := make(chan *Future)
	var wg sync.WaitGroup
	for _, f := range futures {
		wg.Add(1)
		go func(f *Future) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case <-f.Done():
			}
			select {
			case <-ctx.Done():
			case out <- f:
			}
		}(f)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
