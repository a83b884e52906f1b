package errors

import (
	"errors"
	"fmt"
)

// ParseError means a page was fetched but a required attribute could not
// be extracted from it. Treated as a resolver failure, not a crash.
type ParseError struct {
	ID        string
	Attribute string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: missing %s", e.ID, e.Attribute)
}

// NewParseError reports the named attribute as unextractable for id.
func NewParseError(id, attribute string) *ParseError {
	return &ParseError{ID: id, Attribute: attribute}
}

// IsParseError reports whether err is a ParseError (even when wrapped).
func IsParseError(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}
