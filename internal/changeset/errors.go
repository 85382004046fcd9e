package changeset

import (
	"errors"
	"fmt"
)

var (
	// ErrSaveInFlight is returned by Save while another save of the same
	// changeset has not returned.
	ErrSaveInFlight = errors.New("changeset: save already in flight")

	// ErrNoSaver is returned by Save when edits exist but no Saver is wired.
	ErrNoSaver = errors.New("changeset: no saver configured")

	// ErrNoWorkPackage is returned when an edit targets a changeset without
	// a work package.
	ErrNoWorkPackage = errors.New("changeset: no work package")
)

// ValidationError reports an edit rejected by the schema.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("changeset: invalid value for %q: %s", e.Field, e.Message)
}

// IsValidationError reports whether err contains a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
