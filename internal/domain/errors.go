package domain

import (
	"errors"
	"fmt"
)

// ErrGridMismatch is returned when datasets merged into one group do not
// share the same coordinate axes.
var ErrGridMismatch = errors.New("grid mismatch")

// ErrMergeConflict is returned when two artifacts of a group write the same
// table cell.
var ErrMergeConflict = errors.New("merge conflict")

// LocatorError reports an unsupported parameter before any I/O happens.
type LocatorError struct {
	Param  string
	Value  string
	Reason string
}

func (e *LocatorError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Param, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q", e.Param, e.Value)
}

// ExtractionError reports a failure while reducing a fetched dataset to a point.
type ExtractionError struct {
	Group Group
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Group, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
