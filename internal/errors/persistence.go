package errors

import (
	"errors"
	"fmt"
)

// PersistenceError means a store operation or transaction failed. The
// per-identifier transaction is rolled back and the identifier reported as
// failed; the batch continues.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError wraps err as a PersistenceError for the named operation.
func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

// IsPersistenceError reports whether err is a PersistenceError (even when wrapped).
func IsPersistenceError(err error) bool {
	var persErr *PersistenceError
	return errors.As(err, &persErr)
}
