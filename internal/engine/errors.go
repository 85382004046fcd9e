package engine

import (
	"errors"
	"fmt"
)

// JobError reports a job that did not complete.
type JobError struct {
	// Code identifies the failure category.
	Code JobErrorCode

	// Job is the job name, e.g. "reload_parent".
	Job string

	// Key is the entity the job works on.
	Key string

	// Seq is the seq stamped on the job when it was scheduled.
	Seq int64

	// Err is the job's own error, nil for panics.
	Err error

	// Panic holds the recovered value for ErrCodeJobPanicked.
	Panic any
}

// JobErrorCode categorizes job failures.
type JobErrorCode string

const (
	// ErrCodeJobFailed indicates the job returned an error.
	ErrCodeJobFailed JobErrorCode = "JOB_FAILED"

	// ErrCodeJobPanicked indicates the job panicked.
	ErrCodeJobPanicked JobErrorCode = "JOB_PANICKED"
)

// Error implements the error interface.
func (e *JobError) Error() string {
	if e.Code == ErrCodeJobPanicked {
		return fmt.Sprintf("%s: %s (key=%s, seq=%d): %v", e.Code, e.Job, e.Key, e.Seq, e.Panic)
	}
	return fmt.Sprintf("%s: %s (key=%s, seq=%d): %v", e.Code, e.Job, e.Key, e.Seq, e.Err)
}

// Unwrap returns the job's error.
func (e *JobError) Unwrap() error {
	return e.Err
}

// IsPanicError reports whether err is a recovered job panic.
func IsPanicError(err error) bool {
	var je *JobError
	if errors.As(err, &je) {
		return je.Code == ErrCodeJobPanicked
	}
	return false
}
