package editing

import (
	"errors"
	"fmt"

	"github.com/roach88/wpedit/internal/statecache"
)

var (
	// ErrMissingID is returned by ChangesetFor for a nil work package or
	// one without an id.
	ErrMissingID = errors.New("editing: work package has no id")

	// ErrLoadPending is returned by ChangesetFor while the session for the
	// id is still loading. ChangesetFor never waits; use Require.
	ErrLoadPending = fmt.Errorf("editing: %w", statecache.ErrPending)

	// ErrSchedulerClosed is reported when a parent reload could not be
	// scheduled.
	ErrSchedulerClosed = errors.New("editing: scheduler rejected job")
)

// Save hook steps, as reported in HookError.Step.
const (
	StepClearActivity   = "clear_activity"
	StepReloadParent    = "reload_parent"
	StepUpdateCanonical = "update_canonical"
)

// HookError reports one failed step of the default save hook. Steps are
// independent: a HookError for one step says nothing about the others.
type HookError struct {
	Step string
	ID   string
	Err  error
}

// Error implements the error interface.
func (e *HookError) Error() string {
	return fmt.Sprintf("editing: %s for %s: %v", e.Step, e.ID, e.Err)
}

// Unwrap returns the step's error.
func (e *HookError) Unwrap() error {
	return e.Err
}

// PanicError wraps a value recovered from a panicking hook step.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
