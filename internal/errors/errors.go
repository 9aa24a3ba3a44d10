// Package errors wraps github.com/pkg/errors so that every package in this
// repository constructs and inspects errors through a single, consistent
// API, the same way restic's internal/errors does.
package errors

import (
	"github.com/pkg/errors"
)

// New, Wrap, Wrapf, Errorf and Cause re-export the pkg/errors functions so
// that callers never need to import both packages.
var (
	New     = errors.New
	Wrap    = errors.Wrap
	Wrapf   = errors.Wrapf
	Errorf  = errors.Errorf
	Cause   = errors.Cause
	Is      = errors.Is
	As      = errors.As
	Unwrap  = errors.Unwrap
)

// fatalError marks errors that should abort the process rather than be
// reported to a caller, e.g. backend registration failures at startup.
type fatalError struct {
	s string
}

func (e *fatalError) Error() string {
	return e.s
}

// Fatal constructs an error that IsFatal() will report as fatal.
func Fatal(s string) error {
	return &fatalError{s: s}
}

// Fatalf is like Fatal but formats the message first.
func Fatalf(format string, args ...interface{}) error {
	return &fatalError{s: errors.Errorf(format, args...).Error()}
}

// IsFatal returns whether err (or one of its causes) was created via Fatal
// or Fatalf.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}
