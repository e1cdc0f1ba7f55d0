package jobs

import "fmt"

// Status represents the lifecycle state of a staging job as exposed
// to pollers. The wire strings are the canonical lowercase values
// stored in the tracker; both conversion directions reject values
// outside the closed set.
type Status string

const (
	StatusCreated    Status = "created"
	StatusQueued     Status = "queued"
	StatusStarted    Status = "started"
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
	StatusFailed     Status = "failed"
)

// UnknownStatusError reports a string that maps to no Status.
type UnknownStatusError struct {
	Value string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unknown job status %q", e.Value)
}

// ParseStatus converts a wire string into a Status. Unknown input is
// an error, never a silent default.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusCreated, StatusQueued, StatusStarted, StatusInProgress, StatusFinished, StatusFailed:
		return Status(s), nil
	}
	return "", &UnknownStatusError{Value: s}
}

// String returns the canonical wire form.
func (s Status) String() string {
	return string(s)
}

// Validate rejects Status values outside the closed set.
func (s Status) Validate() error {
	switch s {
	case StatusCreated, StatusQueued, StatusStarted, StatusInProgress, StatusFinished, StatusFailed:
		return nil
	}
	return &UnknownStatusError{Value: string(s)}
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusFailed
}
