package cluster

import "context"

// Client is the orchestrator's contract with the compute cluster.
// Submit is non-blocking; completions are consumed through
// AsCompleted in arrival order.
type Client interface {
	// Submit schedules a task for remote execution and returns its
	// handle immediately.
	Submit(ctx context.Context, task Task) (*Future, error)

	// AsCompleted yields the given futures as they finish.
	AsCompleted(ctx context.Context, futures []*Future) <-chan *Future

	// Cancel flags a not-yet-started task so workers skip it. A task
	// whose flag is already set yields ErrAlreadyCancelled.
	Cancel(ctx context.Context, future *Future) error

	// WorkerCount reports how many workers currently heartbeat
	// against the cluster.
	WorkerCount(ctx context.Context) (int, error)

	// Close releases the client-side connection. Idempotent.
	Close() error
}
