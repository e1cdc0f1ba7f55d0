package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Store persists Job records. Implementations must tolerate
// concurrent calls; the Tracker serializes read-modify-write cycles
// on top of it.
type Store interface {
	Put(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context) ([]Job, error)
}

// ErrJobNotFound is returned when no record exists for a job id.
var ErrJobNotFound = fmt.Errorf("job not found")

// Tracker owns the lifecycle of Job records. Status updates arrive
// both from the request path and from task-result reconciliation, so
// the read-modify-write is guarded by a mutex. Once a job reaches a
// terminal status, further updates are dropped.
type Tracker struct {
	mu    sync.Mutex
	store Store
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// Create inserts the record for a new staging request. A store
// failure here is fatal to the whole request.
func (t *Tracker) Create(ctx context.Context, job *Job) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := job.Status.Validate(); err != nil {
		return err
	}
	if err := t.store.Put(ctx, job); err != nil {
		return fmt.Errorf("failed to create job %s: %w", job.ID, err)
	}
	return nil
}

// Update overwrites the mutable fields of the matching job. A nil
// progress keeps the stored value. Updates against a job already in
// a terminal state are logged and dropped.
func (t *Tracker) Update(ctx context.Context, id string, status Status, progress *int, detail string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := status.Validate(); err != nil {
		return err
	}

	job, err := t.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", id, err)
	}

	if job.Status.Terminal() {
		log.Debug().
			Str("job", id).
			Str("current", job.Status.String()).
			Str("requested", status.String()).
			Msg("Ignoring update for terminal job")
		return nil
	}

	job.Status = status
	if progress != nil {
		job.Progress = progress
	}
	job.Detail = detail
	job.UpdatedAt = time.Now().UTC()

	if err := t.store.Put(ctx, job); err != nil {
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}
	return nil
}

// Get returns the record for one job id.
func (t *Tracker) Get(ctx context.Context, id string) (*Job, error) {
	return t.store.Get(ctx, id)
}

// List returns every tracked job.
func (t *Tracker) List(ctx context.Context) ([]Job, error) {
	return t.store.List(ctx)
}
