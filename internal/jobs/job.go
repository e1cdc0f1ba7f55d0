package jobs

import "time"

// Job is the tracked lifecycle record of one staging request. The
// record outlives the request and is read by external pollers; all
// other staging state is discarded when the request finishes.
type Job struct {
	ID        string    `json:"job_id"`
	Status    Status    `json:"status"`
	Progress  *int      `json:"progress"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewJob returns a Job in the created state.
func NewJob(id string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        id,
		Status:    StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Progress wraps a percentage for Tracker.Update. A nil *int leaves
// the job's progress untouched on the wire as null.
func Progress(v int) *int { return &v }
