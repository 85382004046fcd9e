package statecache

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrEmptyID is returned when an operation receives an empty key.
var ErrEmptyID = errors.New("statecache: empty id")

// LoadError reports a failed load for one id. The slot is pristine again
// after a LoadError, so the next access retries.
type LoadError struct {
	ID  string
	Err error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("statecache: load %q: %v", e.ID, e.Err)
}

// Unwrap returns the loader's error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// BatchError collects the per-id failures of RequireAll. Successful ids are
// not part of it; their values are returned alongside.
type BatchError struct {
	Errors []*LoadError
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	ids := e.IDs()
	return fmt.Sprintf("statecache: %d of batch failed: %s", len(ids), strings.Join(ids, ", "))
}

// Unwrap exposes every LoadError to errors.Is/As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, le := range e.Errors {
		errs[i] = le
	}
	return errs
}

// IDs returns the failed ids in sorted order.
func (e *BatchError) IDs() []string {
	ids := make([]string, len(e.Errors))
	for i, le := range e.Errors {
		ids[i] = le.ID
	}
	sort.Strings(ids)
	return ids
}

// FailedIDs returns the ids named by a LoadError or BatchError anywhere in
// err's chain.
func FailedIDs(err error) []string {
	var be *BatchError
	if errors.As(err, &be) {
		return be.IDs()
	}
	var le *LoadError
	if errors.As(err, &le) {
		return []string{le.ID}
	}
	return nil
}
