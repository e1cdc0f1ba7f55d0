// Package cluster submits streaming transfer tasks to a remote pool
// of workers and surfaces their completions in arrival order. The
// queue, per-task replies, cancel flags and worker heartbeats all
// live in redis; workers run as separate processes (cmd/worker).
package cluster

// Task describes one streaming transfer executed on a remote worker:
// stream the asset at SourceURL, authenticated with the bearer Token,
// into Bucket under Key.
type Task struct {
	ID        string `json:"id"`
	JobID     string `json:"job_id"`
	SourceURL string `json:"source_url"`
	Token     string `json:"token"`
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
}

// Result is what a worker reports back for one task. Exactly one of
// Key and Error is meaningful: Key echoes the destination key on
// success, Error carries the transfer failure otherwise.
type Result struct {
	TaskID string `json:"task_id"`
	Key    string `json:"key,omitempty"`
	Error  string `json:"error,omitempty"`
}
