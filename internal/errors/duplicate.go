package errors

import (
	"errors"
	"fmt"
)

// DuplicateWorkError means a concurrent writer created the same work (or
// the same external id) between the orchestrator's existence check and its
// insert. Callers treat it as "already exists, skip".
type DuplicateWorkError struct {
	WorkID string
	Err    error
}

func (e *DuplicateWorkError) Error() string {
	return fmt.Sprintf("work %s already exists: %v", e.WorkID, e.Err)
}

func (e *DuplicateWorkError) Unwrap() error {
	return e.Err
}

// NewDuplicateWorkError wraps a uniqueness violation for workID.
func NewDuplicateWorkError(workID string, err error) *DuplicateWorkError {
	return &DuplicateWorkError{WorkID: workID, Err: err}
}

// IsDuplicateWorkError reports whether err is a DuplicateWorkError (even when wrapped).
func IsDuplicateWorkError(err error) bool {
	var dupErr *DuplicateWorkError
	return errors.As(err, &dupErr)
}
