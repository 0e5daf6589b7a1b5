package train

import (
	"errors"
	"fmt"
)

// ErrRunInProgress is returned when another run holds the integration branch.
var ErrRunInProgress = errors.New("a release train run is already in progress")

// ValidationError reports input the train refuses to work with, such as a
// missing trunk or a changelog without a contributor block.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ExternalServiceError reports a host operation that failed and aborted the run.
type ExternalServiceError struct {
	Op  string
	Err error
}

func (e *ExternalServiceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// ConflictSkipped records a proposal that could not be merged. It is kept in
// the proposal's MergeOutcome and never aborts a run.
type ConflictSkipped struct {
	Number int
	Err    error
}

func (e *ConflictSkipped) Error() string {
	return fmt.Sprintf("proposal #%d skipped: %v", e.Number, e.Err)
}

func (e *ConflictSkipped) Unwrap() error { return e.Err }

func external(op string, err error) error {
	return &ExternalServiceError{Op: op, Err: err}
}
