// Package errors defines the typed failures the ingestion pipeline
// distinguishes between. Each type gets its own file, a constructor and an
// errors.As helper so callers never match on message text.
package errors

import (
	"errors"
	"fmt"
)

// FetchError means a page could not be retrieved: network failure, bad
// status, timeout, or retries exhausted. It aborts one identifier's
// processing and leaves it eligible for a later run.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s failed: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError wraps err as a FetchError for the given URL.
func NewFetchError(url string, attempts int, err error) *FetchError {
	return &FetchError{URL: url, Attempts: attempts, Err: err}
}

// IsFetchError reports whether err is a FetchError (even when wrapped).
func IsFetchError(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr)
}
