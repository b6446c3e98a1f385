// Package apperr defines the error taxonomy shared by the draft engine and its surfaces.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")

	// ErrEmptyList is returned when an optimize is attempted on a list with no items.
	ErrEmptyList = errors.New("list has no items")
	// ErrOptimizationInProgress is returned when a second optimize is issued for a list
	// whose previous call has not completed.
	ErrOptimizationInProgress = errors.New("optimization already in progress")
	// ErrOptimizerRejected matches any RejectedError.
	ErrOptimizerRejected  = errors.New("optimizer rejected request")
	ErrTransportFailure   = errors.New("optimizer unreachable")
	ErrPersistenceFailure = errors.New("persist draft failed")
)

// RejectedError carries the optimizer's own message for a success:false response.
// The message is shown to the user verbatim.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return ErrOptimizerRejected.Error()
	}
	return e.Message
}

// Is reports ErrOptimizerRejected as a match so callers can use errors.Is.
func (e *RejectedError) Is(target error) bool {
	return target == ErrOptimizerRejected
}
